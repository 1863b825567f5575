// Package slo derives error budgets from check history.
package slo

import (
	"fmt"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// PeriodBounds returns the [start, end) period of window that contains now.
// Bounds are computed in UTC; weeks start on Monday.
func PeriodBounds(w domain.TimeWindow, now time.Time) (time.Time, time.Time, error) {
	now = now.UTC()
	y, m, d := now.Date()
	switch w {
	case domain.WindowDaily:
		start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 1), nil
	case domain.WindowWeekly:
		offset := (int(now.Weekday()) + 6) % 7
		start := time.Date(y, m, d-offset, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 0, 7), nil
	case domain.WindowMonthly:
		start := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0), nil
	case domain.WindowQuarterly:
		q := (int(m) - 1) / 3
		start := time.Date(y, time.Month(q*3+1), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 3, 0), nil
	case domain.WindowAnnually:
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, 0), nil
	}
	return time.Time{}, time.Time{}, fmt.Errorf("unknown slo window %q", w)
}

// PreviousPeriod returns the period immediately before the one containing now.
func PreviousPeriod(w domain.TimeWindow, now time.Time) (time.Time, time.Time, error) {
	start, _, err := PeriodBounds(w, now)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return PeriodBounds(w, start.Add(-time.Nanosecond))
}
