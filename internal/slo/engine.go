package slo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/notify"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

type Store interface {
	ActiveSLOTargets(ctx context.Context, f repo.SLOFilter) ([]domain.SLOTarget, error)
	Budget(ctx context.Context, targetID string, periodStart time.Time) (domain.ErrorBudget, bool, error)
	UpsertBudget(ctx context.Context, b domain.ErrorBudget) error
	AppendBreach(ctx context.Context, b domain.SLOBreach) error
}

type Results interface {
	Range(ctx context.Context, id domain.MonitorID, from, to time.Time) ([]domain.CheckResult, error)
}

type Notifier interface {
	Notify(ctx context.Context, org domain.OrganizationID, a notify.AlertContext) error
}

type gauge interface {
	SetBudgetRemaining(sloID string, pct float64)
}

// Engine recomputes error budgets from a full scan of each period's check
// results, so any number of runs over the same history agree.
type Engine struct {
	Store        Store
	Results      Results
	Notifier     Notifier
	Metrics      gauge
	Log          *zap.Logger
	DashboardURL string
	Now          func() time.Time
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Recomputed int
	Failed     int
}

// Sweep recomputes every active target matching f. A target that fails is
// logged and skipped.
func (e *Engine) Sweep(ctx context.Context, f repo.SLOFilter, full bool) (SweepReport, error) {
	var rep SweepReport
	targets, err := e.Store.ActiveSLOTargets(ctx, f)
	if err != nil {
		return rep, fmt.Errorf("list slo targets: %w", err)
	}
	for _, t := range targets {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if _, err := e.Recompute(ctx, t, full); err != nil {
			rep.Failed++
			e.log().Warn("slo_recompute_error",
				zap.String("slo_id", t.ID),
				zap.String("monitor_id", string(t.MonitorID)),
				zap.Error(err),
			)
			continue
		}
		rep.Recomputed++
	}
	e.log().Info("slo_sweep_completed",
		zap.Int("recomputed", rep.Recomputed),
		zap.Int("failed", rep.Failed),
		zap.Bool("full", full),
	)
	return rep, nil
}

// Recompute refreshes the current period's budget for t and, with full,
// closes out the previous period too. It returns the current budget.
func (e *Engine) Recompute(ctx context.Context, t domain.SLOTarget, full bool) (domain.ErrorBudget, error) {
	now := e.now().UTC()
	if full {
		start, end, err := PreviousPeriod(t.Window, now)
		if err != nil {
			return domain.ErrorBudget{}, err
		}
		if _, err := e.recomputePeriod(ctx, t, start, end, end); err != nil {
			return domain.ErrorBudget{}, fmt.Errorf("previous period: %w", err)
		}
	}
	start, end, err := PeriodBounds(t.Window, now)
	if err != nil {
		return domain.ErrorBudget{}, err
	}
	b, err := e.recomputePeriod(ctx, t, start, end, now)
	if err != nil {
		return b, err
	}
	if e.Metrics != nil {
		e.Metrics.SetBudgetRemaining(t.ID, b.PercentRemaining)
	}
	return b, nil
}

// recomputePeriod evaluates [start, end) as of at.
func (e *Engine) recomputePeriod(ctx context.Context, t domain.SLOTarget, start, end, at time.Time) (domain.ErrorBudget, error) {
	results, err := e.Results.Range(ctx, t.MonitorID, start, at)
	if err != nil {
		return domain.ErrorBudget{}, fmt.Errorf("load results: %w", err)
	}
	consumed := ConsumedMinutes(results, t.GracePeriod(), at)
	b := ComputeBudget(t, start, end, consumed)
	b.UpdatedAt = e.now().UTC()

	prev, hadPrev, err := e.Store.Budget(ctx, t.ID, start)
	if err != nil {
		return b, fmt.Errorf("load budget: %w", err)
	}
	var last *float64
	if hadPrev {
		last = prev.LastAlertThreshold
	}
	b.LastAlertThreshold = last
	cur := CurrentThreshold(t.AlertThresholds, b.PercentRemaining)
	fire := crossedDown(cur, last)
	if fire {
		b.LastAlertThreshold = cur
	}
	newBreach := b.Breached && !(hadPrev && prev.Breached)

	// the breach row goes in before the budget row records Breached, so a
	// failed insert is retried by the next recompute
	var breach domain.SLOBreach
	if newBreach {
		uptime := UptimePercent(start, at, consumed)
		breach = domain.SLOBreach{
			ID:              uuid.NewString(),
			SLOTargetID:     t.ID,
			PeriodStart:     start,
			ConsumedMinutes: b.ConsumedMinutes,
			BudgetMinutes:   b.BudgetMinutes,
			DowntimePercent: 100 - uptime,
			BudgetPercent:   b.PercentConsumed,
			UptimePercent:   uptime,
			BreachedAt:      at,
		}
		if err := e.Store.AppendBreach(ctx, breach); err != nil {
			return b, fmt.Errorf("append breach: %w", err)
		}
	}

	if err := e.Store.UpsertBudget(ctx, b); err != nil {
		return b, fmt.Errorf("save budget: %w", err)
	}

	if fire {
		e.notify(ctx, t, notify.AlertContext{
			Kind:     notify.KindSLOThreshold,
			Severity: domain.SeverityMajor,
			Message: fmt.Sprintf("%.1f%% of the error budget remains (threshold %.0f%%), %.1f of %.1f minutes used",
				b.PercentRemaining, *cur, b.ConsumedMinutes, b.BudgetMinutes),
		})
	}
	if newBreach {
		e.log().Warn("slo_breached",
			zap.String("slo_id", t.ID),
			zap.Float64("consumed_minutes", b.ConsumedMinutes),
			zap.Float64("budget_minutes", b.BudgetMinutes),
			zap.Float64("uptime_percent", breach.UptimePercent),
		)
		e.notify(ctx, t, notify.AlertContext{
			Kind:     notify.KindSLOBreach,
			Severity: domain.SeverityCritical,
			Message: fmt.Sprintf("uptime %.3f%% is below the %.3f%% target; %.1f of %.1f budget minutes used",
				breach.UptimePercent, t.TargetPercent, b.ConsumedMinutes, b.BudgetMinutes),
		})
	}
	return b, nil
}

func (e *Engine) notify(ctx context.Context, t domain.SLOTarget, a notify.AlertContext) {
	if e.Notifier == nil {
		return
	}
	a.OrganizationID = t.OrganizationID
	a.MonitorID = t.MonitorID
	a.SLOTargetID = t.ID
	a.DashboardURL = e.DashboardURL
	a.At = e.now().UTC()
	if err := e.Notifier.Notify(ctx, t.OrganizationID, a); err != nil {
		e.log().Warn("slo_alert_error",
			zap.String("slo_id", t.ID),
			zap.String("kind", string(a.Kind)),
			zap.Error(err),
		)
	}
}

func (e *Engine) log() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}
