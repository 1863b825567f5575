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

const alertColumns = `id, organization_id, monitor_id, status, severity, message, response_time_ms, status_code,
       escalation_policy_id, escalation_step, escalated_at, created_at`

func scanAlert(row pgx.Row) (domain.Alert, error) {
	var a domain.Alert
	err := row.Scan(&a.ID, &a.OrganizationID, &a.MonitorID, &a.Status, &a.Severity, &a.Message, &a.ResponseTimeMS, &a.StatusCode,
		&a.EscalationPolicyID, &a.EscalationStep, &a.EscalatedAt, &a.CreatedAt)
	return a, err
}

func (s *Store) CreateAlert(ctx context.Context, a *domain.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (`+alertColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		a.ID, string(a.OrganizationID), string(a.MonitorID), string(a.Status), string(a.Severity), a.Message, a.ResponseTimeMS,
		a.StatusCode, a.EscalationPolicyID, a.EscalationStep, a.EscalatedAt, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert alert: %w", err)
	}
	return nil
}

func (s *Store) Alert(ctx context.Context, id string) (domain.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, `SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if err != nil {
		return domain.Alert{}, notFound(err)
	}
	return a, nil
}

func (s *Store) ActiveAlert(ctx context.Context, id domain.MonitorID) (domain.Alert, bool, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+`
		   FROM alerts
		  WHERE monitor_id = $1 AND status <> $2
		  ORDER BY created_at DESC
		  LIMIT 1`, string(id), string(domain.AlertResolved)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Alert{}, false, nil
	}
	if err != nil {
		return domain.Alert{}, false, fmt.Errorf("active alert: %w", err)
	}
	return a, true, nil
}

func (s *Store) SetAlertStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET status=$2 WHERE id=$1`, id, string(status))
	if err != nil {
		return fmt.Errorf("set alert status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (s *Store) MarkEscalated(ctx context.Context, id string, step int, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `UPDATE alerts SET escalation_step=$2, escalated_at=$3 WHERE id=$1`, id, step, at)
	if err != nil {
		return fmt.Errorf("mark escalated: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- AlertStateStore ----

func (s *Store) AlertState(ctx context.Context, id domain.MonitorID) (*repo.AlertRecord, error) {
	const q = `SELECT last_failing, last_sent_at FROM alert_state WHERE monitor_id=$1`
	r := repo.AlertRecord{MonitorID: id}
	err := s.pool.QueryRow(ctx, q, string(id)).Scan(&r.LastFailing, &r.LastSentAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

func (s *Store) SetAlertState(ctx context.Context, id domain.MonitorID, failing bool, sentAt time.Time) error {
	const q = `
		INSERT INTO alert_state (monitor_id, last_failing, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (monitor_id)
		DO UPDATE SET last_failing=EXCLUDED.last_failing,
		              last_sent_at=COALESCE(EXCLUDED.last_sent_at, alert_state.last_sent_at)
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	_, err := s.pool.Exec(ctx, q, string(id), failing, ts)
	return err
}
