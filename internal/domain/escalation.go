package domain

import "time"

type EscalationPolicy struct {
	ID                 string           `json:"id" yaml:"id"`
	OrganizationID     OrganizationID   `json:"organization_id" yaml:"organization_id"`
	AckTimeoutMinutes  int              `json:"ack_timeout_minutes" yaml:"ack_timeout_minutes"`
	SeverityAckTimeout map[Severity]int `json:"severity_ack_timeout,omitempty" yaml:"severity_ack_timeout,omitempty"`
	Steps              []EscalationStep `json:"steps" yaml:"steps"`
}

// AckTimeout returns the acknowledgement window for severity, preferring a
// per-severity override over the policy default.
func (p EscalationPolicy) AckTimeout(sev Severity) time.Duration {
	if m, ok := p.SeverityAckTimeout[sev]; ok && m > 0 {
		return time.Duration(m) * time.Minute
	}
	return time.Duration(p.AckTimeoutMinutes) * time.Minute
}

// Step returns the step with the given number.
func (p EscalationPolicy) Step(n int) (EscalationStep, bool) {
	for _, s := range p.Steps {
		if s.Number == n {
			return s, true
		}
	}
	return EscalationStep{}, false
}

type EscalationStep struct {
	Number             int      `json:"number" yaml:"number"`
	DelayMinutes       int      `json:"delay_minutes" yaml:"delay_minutes"`
	ChannelIDs         []string `json:"channel_ids" yaml:"channel_ids"`
	RotationID         string   `json:"rotation_id,omitempty" yaml:"rotation_id,omitempty"`
	NotifyOnAckTimeout bool     `json:"notify_on_ack_timeout" yaml:"notify_on_ack_timeout"`
	SkipIfAcknowledged bool     `json:"skip_if_acknowledged" yaml:"skip_if_acknowledged"`
}

func (s EscalationStep) Delay() time.Duration {
	return time.Duration(s.DelayMinutes) * time.Minute
}

type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

type Alert struct {
	ID                 string         `json:"id"`
	OrganizationID     OrganizationID `json:"organization_id"`
	MonitorID          MonitorID      `json:"monitor_id"`
	Status             AlertStatus    `json:"status"`
	Severity           Severity       `json:"severity"`
	Message            string         `json:"message"`
	ResponseTimeMS     float64        `json:"response_time_ms"`
	StatusCode         *int           `json:"status_code,omitempty"`
	EscalationPolicyID string         `json:"escalation_policy_id,omitempty"`
	EscalationStep     int            `json:"escalation_step"`
	EscalatedAt        *time.Time     `json:"escalated_at,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}

// Terminal reports whether escalation must stop for this alert.
func (a Alert) Terminal() bool {
	return a.Status == AlertAcknowledged || a.Status == AlertResolved
}

type OnCallRotation struct {
	ID                 string           `json:"id" yaml:"id"`
	OrganizationID     OrganizationID   `json:"organization_id" yaml:"organization_id"`
	Participants       []string         `json:"participants" yaml:"participants"`
	Start              time.Time        `json:"start" yaml:"start"`
	ShiftDurationHours int              `json:"shift_duration_hours" yaml:"shift_duration_hours"`
	Active             bool             `json:"active" yaml:"active"`
	Overrides          []OnCallOverride `json:"overrides,omitempty" yaml:"overrides,omitempty"`
}

// OnCallOverride replaces the scheduled participant within [Start, End).
type OnCallOverride struct {
	Participant string    `json:"participant" yaml:"participant"`
	Start       time.Time `json:"start" yaml:"start"`
	End         time.Time `json:"end" yaml:"end"`
}

type ChannelType string

const (
	ChannelEmail     ChannelType = "email"
	ChannelSlack     ChannelType = "slack"
	ChannelPagerDuty ChannelType = "pagerduty"
	ChannelWebhook   ChannelType = "webhook"
	ChannelSMS       ChannelType = "sms"
	ChannelTeams     ChannelType = "teams"
	ChannelDiscord   ChannelType = "discord"
)

type NotificationChannel struct {
	ID             string            `json:"id" yaml:"id"`
	OrganizationID OrganizationID    `json:"organization_id" yaml:"organization_id"`
	Type           ChannelType       `json:"type" yaml:"type"`
	Name           string            `json:"name" yaml:"name"`
	Enabled        bool              `json:"enabled" yaml:"enabled"`
	Config         map[string]string `json:"config,omitempty" yaml:"config,omitempty"`
}
