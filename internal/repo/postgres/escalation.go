package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func (s *Store) AddPolicy(ctx context.Context, p *domain.EscalationPolicy) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	sev := p.SeverityAckTimeout
	if sev == nil {
		sev = map[domain.Severity]int{}
	}
	steps := p.Steps
	if steps == nil {
		steps = []domain.EscalationStep{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO escalation_policies (id, organization_id, ack_timeout_minutes, severity_ack_timeout, steps)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (id) DO UPDATE SET ack_timeout_minutes=EXCLUDED.ack_timeout_minutes,
		   severity_ack_timeout=EXCLUDED.severity_ack_timeout, steps=EXCLUDED.steps`,
		p.ID, string(p.OrganizationID), p.AckTimeoutMinutes, sev, steps)
	if err != nil {
		return fmt.Errorf("upsert escalation policy: %w", err)
	}
	return nil
}

func (s *Store) Policy(ctx context.Context, id string) (domain.EscalationPolicy, error) {
	var p domain.EscalationPolicy
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, ack_timeout_minutes, severity_ack_timeout, steps
		   FROM escalation_policies WHERE id = $1`, id).
		Scan(&p.ID, &p.OrganizationID, &p.AckTimeoutMinutes, &p.SeverityAckTimeout, &p.Steps)
	if err != nil {
		return domain.EscalationPolicy{}, notFound(err)
	}
	return p, nil
}

func (s *Store) AddRotation(ctx context.Context, r *domain.OnCallRotation) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	participants := r.Participants
	if participants == nil {
		participants = []string{}
	}
	overrides := r.Overrides
	if overrides == nil {
		overrides = []domain.OnCallOverride{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO oncall_rotations (id, organization_id, participants, start_at, shift_duration_hours, active, overrides)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 ON CONFLICT (id) DO UPDATE SET participants=EXCLUDED.participants, start_at=EXCLUDED.start_at,
		   shift_duration_hours=EXCLUDED.shift_duration_hours, active=EXCLUDED.active, overrides=EXCLUDED.overrides`,
		r.ID, string(r.OrganizationID), participants, r.Start, r.ShiftDurationHours, r.Active, overrides)
	if err != nil {
		return fmt.Errorf("upsert rotation: %w", err)
	}
	return nil
}

func (s *Store) Rotation(ctx context.Context, id string) (domain.OnCallRotation, error) {
	var r domain.OnCallRotation
	err := s.pool.QueryRow(ctx,
		`SELECT id, organization_id, participants, start_at, shift_duration_hours, active, overrides
		   FROM oncall_rotations WHERE id = $1`, id).
		Scan(&r.ID, &r.OrganizationID, &r.Participants, &r.Start, &r.ShiftDurationHours, &r.Active, &r.Overrides)
	if err != nil {
		return domain.OnCallRotation{}, notFound(err)
	}
	return r, nil
}

func (s *Store) AddChannel(ctx context.Context, c *domain.NotificationChannel) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	cfg := c.Config
	if cfg == nil {
		cfg = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO notification_channels (id, organization_id, type, name, enabled, config)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (id) DO UPDATE SET type=EXCLUDED.type, name=EXCLUDED.name, enabled=EXCLUDED.enabled, config=EXCLUDED.config`,
		c.ID, string(c.OrganizationID), string(c.Type), c.Name, c.Enabled, cfg)
	if err != nil {
		return fmt.Errorf("upsert channel: %w", err)
	}
	return nil
}

func (s *Store) Channels(ctx context.Context, org domain.OrganizationID) ([]domain.NotificationChannel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, type, name, enabled, config
		   FROM notification_channels WHERE organization_id = $1 ORDER BY id`, string(org))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()
	var out []domain.NotificationChannel
	for rows.Next() {
		var c domain.NotificationChannel
		if err := rows.Scan(&c.ID, &c.OrganizationID, &c.Type, &c.Name, &c.Enabled, &c.Config); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
