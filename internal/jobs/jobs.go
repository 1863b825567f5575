// Package jobs defines the work units passed between the scheduler and
// the workers, and the brokers that carry them.
package jobs

import (
	"context"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// CheckJob asks a worker to run one check.
type CheckJob struct {
	MonitorID      domain.MonitorID      `json:"monitor_id"`
	OrganizationID domain.OrganizationID `json:"organization_id"`
	Name           string                `json:"name,omitempty"`
	Protocol       domain.Protocol       `json:"protocol"`
	Target         string                `json:"target"`
	TimeoutMS      int                   `json:"timeout_ms"`
	Regions        []string              `json:"regions,omitempty"`
	Config         domain.ProtocolConfig `json:"config"`
	EnqueuedAt     time.Time             `json:"enqueued_at"`
}

func CheckJobFor(m domain.Monitor, now time.Time) CheckJob {
	return CheckJob{
		MonitorID:      m.ID,
		OrganizationID: m.OrganizationID,
		Name:           m.Name,
		Protocol:       m.Protocol,
		Target:         m.Target,
		TimeoutMS:      m.TimeoutMS,
		Regions:        m.Regions,
		Config:         m.Config,
		EnqueuedAt:     now,
	}
}

// Monitor is the monitor as the job describes it.
func (j CheckJob) Monitor() domain.Monitor {
	return domain.Monitor{
		ID:             j.MonitorID,
		OrganizationID: j.OrganizationID,
		Name:           j.Name,
		Protocol:       j.Protocol,
		Target:         j.Target,
		TimeoutMS:      j.TimeoutMS,
		Regions:        j.Regions,
		Config:         j.Config,
	}
}

// SLOJob recomputes one target, one organization's targets, or every active
// target when both ids are empty. Full also closes out the previous period.
type SLOJob struct {
	SLOTargetID    string                `json:"slo_target_id,omitempty"`
	OrganizationID domain.OrganizationID `json:"organization_id,omitempty"`
	Full           bool                  `json:"full,omitempty"`
}

// EscalationJob advances one alert to StepNumber.
type EscalationJob struct {
	AlertID            string                `json:"alert_id"`
	OrganizationID     domain.OrganizationID `json:"organization_id"`
	MonitorID          domain.MonitorID      `json:"monitor_id"`
	EscalationPolicyID string                `json:"escalation_policy_id"`
	StepNumber         int                   `json:"step_number"`
	DueAt              time.Time             `json:"due_at"`
}

type Broker interface {
	EnqueueCheck(ctx context.Context, j CheckJob) error
	// DequeueCheck waits up to wait for a job; ok is false when none arrived.
	DequeueCheck(ctx context.Context, wait time.Duration) (j CheckJob, ok bool, err error)
	EnqueueSLO(ctx context.Context, j SLOJob) error
	DequeueSLO(ctx context.Context, wait time.Duration) (j SLOJob, ok bool, err error)
	ScheduleEscalation(ctx context.Context, j EscalationJob) error
	// ClaimDueEscalations removes and returns jobs due at or before now.
	// A job is handed to exactly one caller.
	ClaimDueEscalations(ctx context.Context, now time.Time, limit int) ([]EscalationJob, error)
}
