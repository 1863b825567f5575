package domain

import "time"

type TimeWindow string

const (
	WindowDaily     TimeWindow = "daily"
	WindowWeekly    TimeWindow = "weekly"
	WindowMonthly   TimeWindow = "monthly"
	WindowQuarterly TimeWindow = "quarterly"
	WindowAnnually  TimeWindow = "annually"
)

type SLOTarget struct {
	ID                 string         `json:"id" yaml:"id"`
	OrganizationID     OrganizationID `json:"organization_id" yaml:"organization_id"`
	MonitorID          MonitorID      `json:"monitor_id" yaml:"monitor_id"`
	TargetPercent      float64        `json:"target_percent" yaml:"target_percent"`
	Window             TimeWindow     `json:"window" yaml:"window"`
	GracePeriodMinutes int            `json:"grace_period_minutes" yaml:"grace_period_minutes"`
	AlertThresholds    []float64      `json:"alert_thresholds,omitempty" yaml:"alert_thresholds,omitempty"`
	Active             bool           `json:"active" yaml:"active"`
}

// GracePeriod returns the failure tolerance before downtime counts.
func (t SLOTarget) GracePeriod() time.Duration {
	if t.GracePeriodMinutes <= 0 {
		return 0
	}
	return time.Duration(t.GracePeriodMinutes) * time.Minute
}

// ErrorBudget is the derived budget state of one SLO target for one period.
type ErrorBudget struct {
	SLOTargetID        string    `json:"slo_target_id"`
	PeriodStart        time.Time `json:"period_start"`
	PeriodEnd          time.Time `json:"period_end"`
	TotalMinutes       float64   `json:"total_minutes"`
	BudgetMinutes      float64   `json:"budget_minutes"`
	ConsumedMinutes    float64   `json:"consumed_minutes"`
	RemainingMinutes   float64   `json:"remaining_minutes"`
	PercentConsumed    float64   `json:"percent_consumed"`
	PercentRemaining   float64   `json:"percent_remaining"`
	Breached           bool      `json:"breached"`
	LastAlertThreshold *float64  `json:"last_alert_threshold,omitempty"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// SLOBreach is appended once when a budget enters the breached state.
type SLOBreach struct {
	ID              string    `json:"id"`
	SLOTargetID     string    `json:"slo_target_id"`
	PeriodStart     time.Time `json:"period_start"`
	ConsumedMinutes float64   `json:"consumed_minutes"`
	BudgetMinutes   float64   `json:"budget_minutes"`
	DowntimePercent float64   `json:"downtime_percent"`
	BudgetPercent   float64   `json:"budget_percent"`
	UptimePercent   float64   `json:"uptime_percent"`
	BreachedAt      time.Time `json:"breached_at"`
}
