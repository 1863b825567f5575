// Package notify turns alerts into channel jobs and pushes them onto the
// per-channel-type queues consumed by the delivery workers.
package notify

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

type AlertKind string

const (
	KindMonitor      AlertKind = "monitor"
	KindSLOThreshold AlertKind = "slo_threshold"
	KindSLOBreach    AlertKind = "slo_breach"
)

// AlertContext is everything a notification says about what happened.
type AlertContext struct {
	Kind           AlertKind
	AlertID        string
	OrganizationID domain.OrganizationID
	MonitorID      domain.MonitorID
	MonitorName    string
	SLOTargetID    string
	AlertStatus    domain.AlertStatus
	Severity       domain.Severity
	Message        string
	ResponseTimeMS float64
	StatusCode     *int
	Step           int
	OnCall         string
	DashboardURL   string
	At             time.Time
}

// Job is the payload a channel worker delivers.
type Job struct {
	ID             string                `json:"id"`
	Kind           AlertKind             `json:"kind"`
	ChannelID      string                `json:"channel_id"`
	ChannelType    domain.ChannelType    `json:"channel_type"`
	ChannelConfig  map[string]string     `json:"channel_config,omitempty"`
	OrganizationID domain.OrganizationID `json:"organization_id"`
	AlertID        string                `json:"alert_id,omitempty"`
	MonitorID      domain.MonitorID      `json:"monitor_id,omitempty"`
	MonitorName    string                `json:"monitor_name,omitempty"`
	SLOTargetID    string                `json:"slo_target_id,omitempty"`
	AlertStatus    domain.AlertStatus    `json:"alert_status,omitempty"`
	Severity       domain.Severity       `json:"severity"`
	Title          string                `json:"title"`
	Message        string                `json:"message"`
	ResponseTimeMS float64               `json:"response_time_ms"`
	StatusCode     *int                  `json:"status_code,omitempty"`
	Step           int                   `json:"step,omitempty"`
	OnCall         string                `json:"on_call,omitempty"`
	Link           string                `json:"link,omitempty"`
	CreatedAt      time.Time             `json:"created_at"`
}

// BuildJob renders one job for ch. Channel config values may reference
// organization credentials as {{name}}.
func BuildJob(ch domain.NotificationChannel, a AlertContext, creds map[string]string) Job {
	at := a.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return Job{
		ID:             uuid.NewString(),
		Kind:           a.Kind,
		ChannelID:      ch.ID,
		ChannelType:    ch.Type,
		ChannelConfig:  withCredentials(ch.Config, creds),
		OrganizationID: a.OrganizationID,
		AlertID:        a.AlertID,
		MonitorID:      a.MonitorID,
		MonitorName:    a.MonitorName,
		SLOTargetID:    a.SLOTargetID,
		AlertStatus:    a.AlertStatus,
		Severity:       a.Severity,
		Title:          title(a),
		Message:        a.Message,
		ResponseTimeMS: a.ResponseTimeMS,
		StatusCode:     a.StatusCode,
		Step:           a.Step,
		OnCall:         a.OnCall,
		Link:           DashboardLink(a),
		CreatedAt:      at,
	}
}

func title(a AlertContext) string {
	name := a.MonitorName
	if name == "" {
		name = string(a.MonitorID)
	}
	switch a.Kind {
	case KindSLOThreshold:
		return fmt.Sprintf("SLO budget alert for %s", name)
	case KindSLOBreach:
		return fmt.Sprintf("SLO breached for %s", name)
	}
	if a.AlertStatus == domain.AlertResolved {
		return fmt.Sprintf("[RESOLVED] %s is back up", name)
	}
	if a.Step > 0 {
		return fmt.Sprintf("[%s] %s is down (step %d)", strings.ToUpper(string(a.Severity)), name, a.Step)
	}
	return fmt.Sprintf("[%s] %s is down", strings.ToUpper(string(a.Severity)), name)
}

// DashboardLink points at the alert, or at the SLO for budget alerts.
func DashboardLink(a AlertContext) string {
	if a.DashboardURL == "" {
		return ""
	}
	base := strings.TrimSuffix(a.DashboardURL, "/")
	switch {
	case a.SLOTargetID != "":
		return base + "/slos/" + url.PathEscape(a.SLOTargetID)
	case a.AlertID != "":
		return base + "/monitors/" + url.PathEscape(string(a.MonitorID)) + "/alerts/" + url.PathEscape(a.AlertID)
	}
	return base + "/monitors/" + url.PathEscape(string(a.MonitorID))
}

func withCredentials(cfg, creds map[string]string) map[string]string {
	if len(cfg) == 0 {
		return nil
	}
	out := make(map[string]string, len(cfg))
	for k, v := range cfg {
		for name, secret := range creds {
			v = strings.ReplaceAll(v, "{{"+name+"}}", secret)
		}
		out[k] = v
	}
	return out
}

type counter interface {
	NotificationEnqueued(channelType string)
}

// Dispatcher pushes jobs to the queue selected for their channel type.
type Dispatcher struct {
	Router  *Router
	Metrics counter
	Log     *zap.Logger
}

func NewDispatcher(r *Router, m counter, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{Router: r, Metrics: m, Log: log}
}

func (d *Dispatcher) Enqueue(ctx context.Context, job Job) error {
	q := d.Router.Select(job.ChannelType)
	if err := q.Push(ctx, job); err != nil {
		return fmt.Errorf("enqueue %s on %s: %w", job.ID, q.Name(), err)
	}
	if d.Metrics != nil {
		d.Metrics.NotificationEnqueued(string(job.ChannelType))
	}
	d.Log.Debug("notification_enqueued",
		zap.String("job_id", job.ID),
		zap.String("queue", q.Name()),
		zap.String("channel_id", job.ChannelID),
	)
	return nil
}

// Dispatch enqueues every job; a failing queue does not stop the rest.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []Job) error {
	var err error
	for _, j := range jobs {
		err = multierr.Append(err, d.Enqueue(ctx, j))
	}
	return err
}

type ChannelSource interface {
	Channels(ctx context.Context, org domain.OrganizationID) ([]domain.NotificationChannel, error)
}

type SettingsSource interface {
	Settings(ctx context.Context, org domain.OrganizationID) (domain.OrgSettings, error)
}

// Broadcaster notifies every enabled channel of an organization. It serves
// alerts that have no escalation policy to route them.
type Broadcaster struct {
	Channels   ChannelSource
	Settings   SettingsSource
	Dispatcher *Dispatcher
}

func (b *Broadcaster) Notify(ctx context.Context, org domain.OrganizationID, a AlertContext) error {
	chs, err := b.Channels.Channels(ctx, org)
	if err != nil {
		return fmt.Errorf("list channels: %w", err)
	}
	var creds map[string]string
	if b.Settings != nil {
		s, err := b.Settings.Settings(ctx, org)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		creds = s.Credentials
	}
	var jobs []Job
	for _, ch := range chs {
		if ch.Enabled {
			jobs = append(jobs, BuildJob(ch, a, creds))
		}
	}
	return b.Dispatcher.Dispatch(ctx, jobs)
}
