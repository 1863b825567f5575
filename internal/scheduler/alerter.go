package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/notify"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	DashboardURL    string
}

type alertStore interface {
	repo.AlertStateStore
	CreateAlert(ctx context.Context, a *domain.Alert) error
	ActiveAlert(ctx context.Context, id domain.MonitorID) (domain.Alert, bool, error)
	SetAlertStatus(ctx context.Context, id string, status domain.AlertStatus) error
}

type monitorReader interface {
	Get(ctx context.Context, id domain.MonitorID) (domain.Monitor, error)
}

type escalator interface {
	Start(ctx context.Context, a domain.Alert) (time.Time, error)
}

type broadcaster interface {
	Notify(ctx context.Context, org domain.OrganizationID, a notify.AlertContext) error
}

// Alerter opens an alert when a monitor starts failing and resolves it on
// recovery. Monitors with an escalation policy hand the alert to the
// escalation engine; the rest notify every enabled channel of their
// organization.
type Alerter struct {
	logger    *zap.Logger
	monitors  monitorReader
	alerts    alertStore
	escalator escalator
	notifier  broadcaster
	cfg       AlerterConfig
	now       func() time.Time
}

func NewAlerter(
	logger *zap.Logger,
	monitors monitorReader,
	alerts alertStore,
	esc escalator,
	notifier broadcaster,
	cfg AlerterConfig,
) *Alerter {
	return &Alerter{
		logger:    logger,
		monitors:  monitors,
		alerts:    alerts,
		escalator: esc,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

func (a *Alerter) Evaluate(ctx context.Context, ev Evaluation) error {
	rec, err := a.alerts.AlertState(ctx, ev.MonitorID)
	if err != nil {
		return fmt.Errorf("load alert state: %w", err)
	}
	now := a.now().UTC()
	failing := ev.Status.IsFailing()

	stateChanged := rec == nil || rec.LastFailing != failing
	// cooldown suppresses repeated openings for a flapping monitor
	cooled := true
	if rec != nil && rec.LastSentAt != nil {
		cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
	}

	switch {
	case failing && cooled:
		// also reached by a monitor that went down inside the cooldown and
		// stayed down: its alert opens once the cooldown has passed
		opened, err := a.open(ctx, ev, now)
		if err != nil {
			return err
		}
		if opened {
			return a.alerts.SetAlertState(ctx, ev.MonitorID, true, now)
		}
		if stateChanged {
			return a.alerts.SetAlertState(ctx, ev.MonitorID, true, time.Time{})
		}
		return nil

	case stateChanged && !failing && rec != nil:
		sent, err := a.recover(ctx, ev, now)
		if err != nil {
			return err
		}
		var sentAt time.Time
		if sent {
			sentAt = now
		}
		return a.alerts.SetAlertState(ctx, ev.MonitorID, false, sentAt)

	case stateChanged:
		// first sighting of a healthy monitor, or a failure inside the cooldown
		return a.alerts.SetAlertState(ctx, ev.MonitorID, failing, time.Time{})
	}
	return nil
}

// open creates an alert unless the monitor already has an unresolved one.
// It reports whether an alert was created.
func (a *Alerter) open(ctx context.Context, ev Evaluation, now time.Time) (bool, error) {
	if _, ok, err := a.alerts.ActiveAlert(ctx, ev.MonitorID); err != nil {
		return false, fmt.Errorf("load active alert: %w", err)
	} else if ok {
		return false, nil
	}
	m, err := a.monitors.Get(ctx, ev.MonitorID)
	if err != nil {
		return false, fmt.Errorf("load monitor: %w", err)
	}
	sev := m.Severity
	if sev == "" {
		sev = domain.SeverityMajor
	}
	alert := domain.Alert{
		OrganizationID:     ev.OrganizationID,
		MonitorID:          ev.MonitorID,
		Status:             domain.AlertActive,
		Severity:           sev,
		Message:            alertMessage(ev),
		ResponseTimeMS:     ev.ResponseTimeMS,
		StatusCode:         ev.StatusCode,
		EscalationPolicyID: m.EscalationPolicyID,
		CreatedAt:          now,
	}
	if err := a.alerts.CreateAlert(ctx, &alert); err != nil {
		return false, fmt.Errorf("create alert: %w", err)
	}
	a.logger.Info("alert_opened",
		zap.String("alert_id", alert.ID),
		zap.String("monitor_id", string(ev.MonitorID)),
		zap.String("severity", string(sev)),
	)

	if m.EscalationPolicyID != "" && a.escalator != nil {
		if _, err := a.escalator.Start(ctx, alert); err != nil {
			return true, fmt.Errorf("start escalation: %w", err)
		}
		return true, nil
	}
	if a.notifier == nil {
		return true, nil
	}
	return true, a.notifier.Notify(ctx, ev.OrganizationID, notify.AlertContext{
		Kind:           notify.KindMonitor,
		AlertID:        alert.ID,
		OrganizationID: ev.OrganizationID,
		MonitorID:      ev.MonitorID,
		MonitorName:    m.Name,
		AlertStatus:    alert.Status,
		Severity:       sev,
		Message:        alert.Message,
		ResponseTimeMS: ev.ResponseTimeMS,
		StatusCode:     ev.StatusCode,
		DashboardURL:   a.cfg.DashboardURL,
		At:             now,
	})
}

// recover resolves the monitor's open alert. It reports whether a recovery
// notification went out.
func (a *Alerter) recover(ctx context.Context, ev Evaluation, now time.Time) (bool, error) {
	active, ok, err := a.alerts.ActiveAlert(ctx, ev.MonitorID)
	if err != nil {
		return false, fmt.Errorf("load active alert: %w", err)
	}
	if !ok {
		return false, nil
	}
	if err := a.alerts.SetAlertStatus(ctx, active.ID, domain.AlertResolved); err != nil {
		return false, fmt.Errorf("resolve alert: %w", err)
	}
	a.logger.Info("alert_resolved",
		zap.String("alert_id", active.ID),
		zap.String("monitor_id", string(ev.MonitorID)),
	)
	if !a.cfg.AlertOnRecovery || a.notifier == nil {
		return false, nil
	}
	var name string
	if m, err := a.monitors.Get(ctx, ev.MonitorID); err == nil {
		name = m.Name
	} else {
		a.logger.Warn("alert_monitor_lookup_error", zap.String("monitor_id", string(ev.MonitorID)), zap.Error(err))
	}
	err = a.notifier.Notify(ctx, ev.OrganizationID, notify.AlertContext{
		Kind:           notify.KindMonitor,
		AlertID:        active.ID,
		OrganizationID: ev.OrganizationID,
		MonitorID:      ev.MonitorID,
		MonitorName:    name,
		AlertStatus:    domain.AlertResolved,
		Severity:       active.Severity,
		Message:        fmt.Sprintf("recovered, latest check %s in %.0f ms", ev.Status, ev.ResponseTimeMS),
		ResponseTimeMS: ev.ResponseTimeMS,
		StatusCode:     ev.StatusCode,
		DashboardURL:   a.cfg.DashboardURL,
		At:             now,
	})
	return err == nil, err
}

func alertMessage(ev Evaluation) string {
	code := "n/a"
	if ev.StatusCode != nil {
		code = fmt.Sprintf("%d", *ev.StatusCode)
	}
	reason := ev.ErrorMessage
	if reason == "" {
		reason = string(ev.ErrorCode)
	}
	return fmt.Sprintf("%s: %s (HTTP %s, %.0f ms)", ev.Status, reason, code, ev.ResponseTimeMS)
}
