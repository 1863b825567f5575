package slo

import (
	"sort"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// ConsumedMinutes sums qualifying downtime over chronologically ordered
// results. A run of failing results lasts from its first result until the
// next healthy one, or until now when still open. Only the part of a run
// longer than grace counts. Results of non-availability kinds are ignored.
func ConsumedMinutes(results []domain.CheckResult, grace time.Duration, now time.Time) float64 {
	var (
		total    time.Duration
		inRun    bool
		runStart time.Time
	)
	closeRun := func(end time.Time) {
		if d := end.Sub(runStart); d > grace {
			total += d - grace
		}
		inRun = false
	}
	for _, r := range results {
		if !r.Kind.CountsForAvailability() {
			continue
		}
		switch {
		case r.Status.IsFailing() && !inRun:
			inRun = true
			runStart = r.CheckedAt
		case !r.Status.IsFailing() && inRun:
			closeRun(r.CheckedAt)
		}
	}
	if inRun {
		closeRun(now)
	}
	return total.Minutes()
}

// ComputeBudget derives the budget row for one period. A zero budget (100%
// target) is breached by any downtime at all.
func ComputeBudget(t domain.SLOTarget, start, end time.Time, consumed float64) domain.ErrorBudget {
	if consumed < 0 {
		consumed = 0
	}
	total := end.Sub(start).Minutes()
	budget := (100 - t.TargetPercent) / 100 * total
	if budget < 0 {
		budget = 0
	}
	remaining := budget - consumed
	if remaining < 0 {
		remaining = 0
	}
	b := domain.ErrorBudget{
		SLOTargetID:      t.ID,
		PeriodStart:      start,
		PeriodEnd:        end,
		TotalMinutes:     total,
		BudgetMinutes:    budget,
		ConsumedMinutes:  consumed,
		RemainingMinutes: remaining,
		PercentConsumed:  0,
		PercentRemaining: 100,
	}
	if budget > 0 {
		b.PercentConsumed = consumed / budget * 100
		b.PercentRemaining = remaining / budget * 100
		b.Breached = consumed >= budget
	} else {
		b.Breached = consumed > 0
	}
	return b
}

// CurrentThreshold returns the lowest alert threshold band that
// percentRemaining has entered, or nil when it is above every threshold.
func CurrentThreshold(thresholds []float64, percentRemaining float64) *float64 {
	sorted := append([]float64(nil), thresholds...)
	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	var cur *float64
	for _, th := range sorted {
		if percentRemaining <= th {
			v := th
			cur = &v
		}
	}
	return cur
}

// crossedDown reports whether cur is a new, lower band than last.
func crossedDown(cur, last *float64) bool {
	return cur != nil && (last == nil || *cur < *last)
}

// UptimePercent is the share of the elapsed part of a period that was not
// consumed by downtime.
func UptimePercent(start, at time.Time, consumed float64) float64 {
	elapsed := at.Sub(start).Minutes()
	if elapsed <= 0 {
		return 100
	}
	up := (elapsed - consumed) / elapsed * 100
	if up < 0 {
		return 0
	}
	return up
}
