package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

const sloColumns = `id, organization_id, monitor_id, target_percent, time_window, grace_period_minutes, alert_thresholds, active`

func scanSLO(row pgx.Row) (domain.SLOTarget, error) {
	var t domain.SLOTarget
	err := row.Scan(&t.ID, &t.OrganizationID, &t.MonitorID, &t.TargetPercent, &t.Window, &t.GracePeriodMinutes, &t.AlertThresholds, &t.Active)
	return t, err
}

func (s *Store) AddSLOTarget(ctx context.Context, t *domain.SLOTarget) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	th := t.AlertThresholds
	if th == nil {
		th = []float64{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO slo_targets (`+sloColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (id) DO UPDATE SET target_percent=EXCLUDED.target_percent, time_window=EXCLUDED.time_window,
		   grace_period_minutes=EXCLUDED.grace_period_minutes, alert_thresholds=EXCLUDED.alert_thresholds,
		   active=EXCLUDED.active`,
		t.ID, string(t.OrganizationID), string(t.MonitorID), t.TargetPercent, string(t.Window), t.GracePeriodMinutes, th, t.Active)
	if err != nil {
		return fmt.Errorf("upsert slo target: %w", err)
	}
	return nil
}

func (s *Store) ActiveSLOTargets(ctx context.Context, f repo.SLOFilter) ([]domain.SLOTarget, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sloColumns+`
		   FROM slo_targets
		  WHERE active AND ($1 = '' OR id = $1) AND ($2 = '' OR organization_id = $2)
		  ORDER BY id`, f.TargetID, string(f.OrganizationID))
	if err != nil {
		return nil, fmt.Errorf("list slo targets: %w", err)
	}
	defer rows.Close()
	var out []domain.SLOTarget
	for rows.Next() {
		t, err := scanSLO(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slo target: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SLOTarget(ctx context.Context, id string) (domain.SLOTarget, error) {
	t, err := scanSLO(s.pool.QueryRow(ctx, `SELECT `+sloColumns+` FROM slo_targets WHERE id = $1`, id))
	if err != nil {
		return domain.SLOTarget{}, notFound(err)
	}
	return t, nil
}

func (s *Store) Budget(ctx context.Context, targetID string, periodStart time.Time) (domain.ErrorBudget, bool, error) {
	var b domain.ErrorBudget
	err := s.pool.QueryRow(ctx,
		`SELECT slo_target_id, period_start, period_end, total_minutes, budget_minutes, consumed_minutes,
		        remaining_minutes, percent_consumed, percent_remaining, breached, last_alert_threshold, updated_at
		   FROM error_budgets
		  WHERE slo_target_id = $1 AND period_start = $2`, targetID, periodStart).
		Scan(&b.SLOTargetID, &b.PeriodStart, &b.PeriodEnd, &b.TotalMinutes, &b.BudgetMinutes, &b.ConsumedMinutes,
			&b.RemainingMinutes, &b.PercentConsumed, &b.PercentRemaining, &b.Breached, &b.LastAlertThreshold, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrorBudget{}, false, nil
	}
	if err != nil {
		return domain.ErrorBudget{}, false, fmt.Errorf("error budget: %w", err)
	}
	return b, true, nil
}

// UpsertBudget is last-write-wins on the aggregate columns; recomputes are
// deterministic from history so concurrent writers converge.
func (s *Store) UpsertBudget(ctx context.Context, b domain.ErrorBudget) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO error_budgets (slo_target_id, period_start, period_end, total_minutes, budget_minutes,
		   consumed_minutes, remaining_minutes, percent_consumed, percent_remaining, breached, last_alert_threshold, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 ON CONFLICT (slo_target_id, period_start) DO UPDATE SET
		   period_end=EXCLUDED.period_end, total_minutes=EXCLUDED.total_minutes, budget_minutes=EXCLUDED.budget_minutes,
		   consumed_minutes=EXCLUDED.consumed_minutes, remaining_minutes=EXCLUDED.remaining_minutes,
		   percent_consumed=EXCLUDED.percent_consumed, percent_remaining=EXCLUDED.percent_remaining,
		   breached=EXCLUDED.breached, last_alert_threshold=EXCLUDED.last_alert_threshold, updated_at=EXCLUDED.updated_at`,
		b.SLOTargetID, b.PeriodStart, b.PeriodEnd, b.TotalMinutes, b.BudgetMinutes, b.ConsumedMinutes,
		b.RemainingMinutes, b.PercentConsumed, b.PercentRemaining, b.Breached, b.LastAlertThreshold, b.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert error budget: %w", err)
	}
	return nil
}

func (s *Store) AppendBreach(ctx context.Context, b domain.SLOBreach) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO slo_breaches (id, slo_target_id, period_start, consumed_minutes, budget_minutes,
		   downtime_percent, budget_percent, uptime_percent, breached_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 ON CONFLICT (slo_target_id, period_start) DO NOTHING`,
		b.ID, b.SLOTargetID, b.PeriodStart, b.ConsumedMinutes, b.BudgetMinutes,
		b.DowntimePercent, b.BudgetPercent, b.UptimePercent, b.BreachedAt)
	if err != nil {
		return fmt.Errorf("insert slo breach: %w", err)
	}
	return nil
}

func (s *Store) Breaches(ctx context.Context, targetID string) ([]domain.SLOBreach, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, slo_target_id, period_start, consumed_minutes, budget_minutes,
		        downtime_percent, budget_percent, uptime_percent, breached_at
		   FROM slo_breaches WHERE slo_target_id = $1 ORDER BY breached_at`, targetID)
	if err != nil {
		return nil, fmt.Errorf("list slo breaches: %w", err)
	}
	defer rows.Close()
	var out []domain.SLOBreach
	for rows.Next() {
		var b domain.SLOBreach
		if err := rows.Scan(&b.ID, &b.SLOTargetID, &b.PeriodStart, &b.ConsumedMinutes, &b.BudgetMinutes,
			&b.DowntimePercent, &b.BudgetPercent, &b.UptimePercent, &b.BreachedAt); err != nil {
			return nil, fmt.Errorf("scan slo breach: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
