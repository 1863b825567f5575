package repo

import (
	"context"
	"errors"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// ErrNotFound is returned by single-row lookups when no row matches.
var ErrNotFound = errors.New("not found")

// Ports (interfaces); memory and postgres adapters implement all of them.
type MonitorStore interface {
	Add(ctx context.Context, m *domain.Monitor) error
	Get(ctx context.Context, id domain.MonitorID) (domain.Monitor, error)
	List(ctx context.Context) ([]domain.Monitor, error)
	UpdateStatus(ctx context.Context, id domain.MonitorID, status domain.MonitorStatus, checkedAt time.Time) error
}

type ResultStore interface {
	Append(ctx context.Context, r *domain.CheckResult) error
	// Latest returns the most recent result of a monitor; ok is false when
	// the monitor has never been checked.
	Latest(ctx context.Context, id domain.MonitorID) (r domain.CheckResult, ok bool, err error)
	// Range returns results with from <= CheckedAt < to, oldest first.
	Range(ctx context.Context, id domain.MonitorID, from, to time.Time) ([]domain.CheckResult, error)
	AttachIncident(ctx context.Context, resultID, incidentID string) error
}

type IncidentStore interface {
	AddIncident(ctx context.Context, in *domain.Incident) error
	// OpenIncidents lists unresolved incidents whose affected set contains id.
	OpenIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error)
}

type SettingsStore interface {
	// Settings returns the organization's settings; an organization without a
	// row gets zero settings, not ErrNotFound.
	Settings(ctx context.Context, org domain.OrganizationID) (domain.OrgSettings, error)
	PutSettings(ctx context.Context, s domain.OrgSettings) error
}

// SLOFilter narrows an SLO listing; empty fields match everything.
type SLOFilter struct {
	TargetID       string
	OrganizationID domain.OrganizationID
}

type SLOStore interface {
	AddSLOTarget(ctx context.Context, t *domain.SLOTarget) error
	// ActiveSLOTargets lists active targets matching f.
	ActiveSLOTargets(ctx context.Context, f SLOFilter) ([]domain.SLOTarget, error)
	SLOTarget(ctx context.Context, id string) (domain.SLOTarget, error)
	Budget(ctx context.Context, targetID string, periodStart time.Time) (b domain.ErrorBudget, ok bool, err error)
	UpsertBudget(ctx context.Context, b domain.ErrorBudget) error
	// AppendBreach records at most one breach per target and period; a
	// repeat for the same period is a no-op.
	AppendBreach(ctx context.Context, b domain.SLOBreach) error
	Breaches(ctx context.Context, targetID string) ([]domain.SLOBreach, error)
}

type AlertStore interface {
	CreateAlert(ctx context.Context, a *domain.Alert) error
	Alert(ctx context.Context, id string) (domain.Alert, error)
	// ActiveAlert returns the monitor's unresolved alert, if any.
	ActiveAlert(ctx context.Context, id domain.MonitorID) (a domain.Alert, ok bool, err error)
	SetAlertStatus(ctx context.Context, id string, status domain.AlertStatus) error
	MarkEscalated(ctx context.Context, id string, step int, at time.Time) error
}

type EscalationStore interface {
	AddPolicy(ctx context.Context, p *domain.EscalationPolicy) error
	Policy(ctx context.Context, id string) (domain.EscalationPolicy, error)
	AddRotation(ctx context.Context, r *domain.OnCallRotation) error
	Rotation(ctx context.Context, id string) (domain.OnCallRotation, error)
	AddChannel(ctx context.Context, c *domain.NotificationChannel) error
	// Channels lists every channel of an organization, enabled or not.
	Channels(ctx context.Context, org domain.OrganizationID) ([]domain.NotificationChannel, error)
}
