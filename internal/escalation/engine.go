package escalation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/cache"
	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/jobs"
	"github.com/hamed0406/pulsewatch/internal/notify"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

const configTTL = time.Minute

type Store interface {
	Alert(ctx context.Context, id string) (domain.Alert, error)
	MarkEscalated(ctx context.Context, id string, step int, at time.Time) error
	Policy(ctx context.Context, id string) (domain.EscalationPolicy, error)
	Rotation(ctx context.Context, id string) (domain.OnCallRotation, error)
	Channels(ctx context.Context, org domain.OrganizationID) ([]domain.NotificationChannel, error)
	Settings(ctx context.Context, org domain.OrganizationID) (domain.OrgSettings, error)
	Get(ctx context.Context, id domain.MonitorID) (domain.Monitor, error)
}

type Queue interface {
	ScheduleEscalation(ctx context.Context, j jobs.EscalationJob) error
	ClaimDueEscalations(ctx context.Context, now time.Time, limit int) ([]jobs.EscalationJob, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, job notify.Job) error
}

// Outcome reports what one advance did.
type Outcome struct {
	// Aborted is set when the alert was already acknowledged or resolved.
	Aborted     bool
	Dispatched  int
	OnCall      string
	CoverageGap bool
	NextStep    int
	NextAt      time.Time
}

// Engine owns its org-keyed caches of policies and channels.
type Engine struct {
	Store        Store
	Queue        Queue
	Notify       Enqueuer
	Log          *zap.Logger
	DashboardURL string
	Now          func() time.Time

	policies *cache.TTL[domain.EscalationPolicy]
	channels *cache.TTL[[]domain.NotificationChannel]
}

func NewEngine(store Store, q Queue, n Enqueuer, dashboardURL string, log *zap.Logger, now func() time.Time) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		Store:        store,
		Queue:        q,
		Notify:       n,
		Log:          log,
		DashboardURL: dashboardURL,
		Now:          now,
		policies:     cache.NewTTL[domain.EscalationPolicy](configTTL, now),
		channels:     cache.NewTTL[[]domain.NotificationChannel](configTTL, now),
	}
}

// Start schedules step 1 of the alert's policy.
func (e *Engine) Start(ctx context.Context, a domain.Alert) (time.Time, error) {
	p, err := e.policy(ctx, a.OrganizationID, a.EscalationPolicyID)
	if err != nil {
		return time.Time{}, err
	}
	first, ok := p.Step(1)
	if !ok {
		return time.Time{}, fmt.Errorf("policy %s has no step 1", p.ID)
	}
	at := e.Now().UTC().Add(first.Delay())
	return at, e.schedule(ctx, a, 1, at)
}

// Advance executes one escalation step. It is a no-op for alerts that are
// already acknowledged or resolved.
func (e *Engine) Advance(ctx context.Context, j jobs.EscalationJob) (Outcome, error) {
	var out Outcome
	log := e.Log.With(zap.String("alert_id", j.AlertID), zap.Int("step", j.StepNumber))

	a, err := e.Store.Alert(ctx, j.AlertID)
	if errors.Is(err, repo.ErrNotFound) {
		log.Info("escalation_alert_gone")
		out.Aborted = true
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("load alert: %w", err)
	}
	if a.Terminal() {
		log.Debug("escalation_aborted", zap.String("alert_status", string(a.Status)))
		out.Aborted = true
		return out, nil
	}

	p, err := e.policy(ctx, j.OrganizationID, j.EscalationPolicyID)
	if err != nil {
		return out, err
	}
	step, ok := p.Step(j.StepNumber)
	if !ok {
		log.Warn("escalation_step_missing", zap.String("policy_id", p.ID))
		return out, nil
	}

	chs, err := e.stepChannels(ctx, j.OrganizationID, step)
	if err != nil {
		return out, err
	}

	if step.RotationID != "" {
		rot, err := e.Store.Rotation(ctx, step.RotationID)
		if err != nil {
			return out, fmt.Errorf("load rotation: %w", err)
		}
		who, ok := CurrentOnCall(rot, e.Now())
		if ok {
			out.OnCall = who
		} else {
			out.CoverageGap = true
			log.Warn("escalation_oncall_gap", zap.String("rotation_id", rot.ID))
		}
	}

	settings, err := e.Store.Settings(ctx, j.OrganizationID)
	if err != nil {
		return out, fmt.Errorf("load settings: %w", err)
	}
	name := string(a.MonitorID)
	if m, err := e.Store.Get(ctx, a.MonitorID); err == nil && m.Name != "" {
		name = m.Name
	}
	actx := notify.AlertContext{
		Kind:           notify.KindMonitor,
		AlertID:        a.ID,
		OrganizationID: a.OrganizationID,
		MonitorID:      a.MonitorID,
		MonitorName:    name,
		AlertStatus:    a.Status,
		Severity:       a.Severity,
		Message:        a.Message,
		ResponseTimeMS: a.ResponseTimeMS,
		StatusCode:     a.StatusCode,
		Step:           step.Number,
		OnCall:         out.OnCall,
		DashboardURL:   e.DashboardURL,
		At:             e.Now().UTC(),
	}

	var dispatchErr error
	for _, ch := range chs {
		if step.SkipIfAcknowledged {
			cur, err := e.Store.Alert(ctx, a.ID)
			if err != nil {
				return out, fmt.Errorf("reload alert: %w", err)
			}
			if cur.Terminal() {
				log.Info("escalation_stopped_by_ack",
					zap.String("alert_status", string(cur.Status)),
					zap.Int("dispatched", out.Dispatched),
				)
				out.Aborted = true
				return out, nil
			}
		}
		if err := e.Notify.Enqueue(ctx, notify.BuildJob(ch, actx, settings.Credentials)); err != nil {
			dispatchErr = multierr.Append(dispatchErr, err)
			continue
		}
		out.Dispatched++
	}

	now := e.Now().UTC()
	if err := e.Store.MarkEscalated(ctx, a.ID, step.Number, now); err != nil {
		return out, multierr.Append(dispatchErr, fmt.Errorf("mark escalated: %w", err))
	}
	log.Info("escalation_step_dispatched",
		zap.String("monitor_id", string(a.MonitorID)),
		zap.Int("channels", out.Dispatched),
	)

	if next, ok := p.Step(step.Number + 1); ok {
		at := now.Add(next.Delay())
		if step.NotifyOnAckTimeout {
			at = at.Add(p.AckTimeout(a.Severity))
		}
		if err := e.schedule(ctx, a, next.Number, at); err != nil {
			return out, multierr.Append(dispatchErr, err)
		}
		out.NextStep = next.Number
		out.NextAt = at
	}
	return out, dispatchErr
}

// ProcessDue claims due steps and advances each. One failing alert does not
// stop the rest, and steps claimed before a claim error are still advanced
// since they are no longer queued.
func (e *Engine) ProcessDue(ctx context.Context, limit int) (int, error) {
	due, claimErr := e.Queue.ClaimDueEscalations(ctx, e.Now().UTC(), limit)
	if claimErr != nil {
		e.Log.Warn("escalation_claim_error", zap.Int("claimed", len(due)), zap.Error(claimErr))
	}
	for _, j := range due {
		if _, err := e.Advance(ctx, j); err != nil {
			e.Log.Warn("escalation_advance_error",
				zap.String("alert_id", j.AlertID),
				zap.Int("step", j.StepNumber),
				zap.Error(err),
			)
		}
	}
	return len(due), claimErr
}

func (e *Engine) schedule(ctx context.Context, a domain.Alert, step int, at time.Time) error {
	err := e.Queue.ScheduleEscalation(ctx, jobs.EscalationJob{
		AlertID:            a.ID,
		OrganizationID:     a.OrganizationID,
		MonitorID:          a.MonitorID,
		EscalationPolicyID: a.EscalationPolicyID,
		StepNumber:         step,
		DueAt:              at,
	})
	if err != nil {
		return fmt.Errorf("schedule step %d: %w", step, err)
	}
	return nil
}

func (e *Engine) policy(ctx context.Context, org domain.OrganizationID, id string) (domain.EscalationPolicy, error) {
	p, err := e.policies.GetOrLoad(string(org)+"/"+id, func() (domain.EscalationPolicy, error) {
		return e.Store.Policy(ctx, id)
	})
	if err != nil {
		return p, fmt.Errorf("load policy %s: %w", id, err)
	}
	return p, nil
}

// stepChannels returns the organization's enabled channels named by the
// step, in step order.
func (e *Engine) stepChannels(ctx context.Context, org domain.OrganizationID, step domain.EscalationStep) ([]domain.NotificationChannel, error) {
	all, err := e.channels.GetOrLoad(string(org), func() ([]domain.NotificationChannel, error) {
		return e.Store.Channels(ctx, org)
	})
	if err != nil {
		return nil, fmt.Errorf("load channels: %w", err)
	}
	byID := make(map[string]domain.NotificationChannel, len(all))
	for _, ch := range all {
		if ch.Enabled {
			byID[ch.ID] = ch
		}
	}
	var out []domain.NotificationChannel
	for _, id := range step.ChannelIDs {
		if ch, ok := byID[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

// Invalidate drops the cached channel list of an organization.
func (e *Engine) Invalidate(org domain.OrganizationID) {
	e.channels.Invalidate(string(org))
}
