// Package incident attaches failing check results to open incidents.
package incident

import (
	"context"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

type Store interface {
	OpenIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error)
	AttachIncident(ctx context.Context, resultID, incidentID string) error
}

type Linker struct {
	Store Store
	Log   *zap.Logger
}

func NewLinker(store Store, log *zap.Logger) *Linker {
	if log == nil {
		log = zap.NewNop()
	}
	return &Linker{Store: store, Log: log}
}

// Link stamps a non-successful result with the most recently started open
// incident affecting its monitor. It returns the incident id, or nil when
// nothing was linked. Store errors are logged, never returned.
func (l *Linker) Link(ctx context.Context, resultID string, monitorID domain.MonitorID, status domain.Status) *string {
	if status == domain.StatusSuccess {
		return nil
	}
	open, err := l.Store.OpenIncidents(ctx, monitorID)
	if err != nil {
		l.Log.Warn("incident_link_error",
			zap.String("monitor_id", string(monitorID)),
			zap.String("result_id", resultID),
			zap.Error(err),
		)
		return nil
	}

	var pick *domain.Incident
	for i := range open {
		in := &open[i]
		if !in.Active() || !in.Affects(monitorID) {
			continue
		}
		if pick == nil || in.StartedAt.After(pick.StartedAt) {
			pick = in
		}
	}
	if pick == nil {
		return nil
	}

	if err := l.Store.AttachIncident(ctx, resultID, pick.ID); err != nil {
		l.Log.Warn("incident_link_error",
			zap.String("monitor_id", string(monitorID)),
			zap.String("result_id", resultID),
			zap.String("incident_id", pick.ID),
			zap.Error(err),
		)
		return nil
	}
	l.Log.Debug("incident_linked",
		zap.String("monitor_id", string(monitorID)),
		zap.String("result_id", resultID),
		zap.String("incident_id", pick.ID),
	)
	id := pick.ID
	return &id
}
