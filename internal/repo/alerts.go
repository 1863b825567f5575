package repo

import (
	"context"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// AlertRecord holds the last-known failing state of a monitor and the last
// time an alert was raised for it (used for cooldown).
type AlertRecord struct {
	MonitorID   domain.MonitorID
	LastFailing bool
	LastSentAt  *time.Time
}

// AlertStateStore is implemented by a persistence layer to store alert state.
type AlertStateStore interface {
	// AlertState returns nil, nil if there's no record yet.
	AlertState(ctx context.Context, id domain.MonitorID) (*AlertRecord, error)
	// SetAlertState upserts the record. If sentAt.IsZero() the previous send
	// time is kept.
	SetAlertState(ctx context.Context, id domain.MonitorID, failing bool, sentAt time.Time) error
}

// Store is everything a deployment needs from persistence.
type Store interface {
	MonitorStore
	ResultStore
	IncidentStore
	SettingsStore
	SLOStore
	AlertStore
	AlertStateStore
	EscalationStore
}
