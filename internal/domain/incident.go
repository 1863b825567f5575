package domain

import "time"

type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

const IncidentResolved = "resolved"

type Incident struct {
	ID               string         `json:"id" yaml:"id"`
	OrganizationID   OrganizationID `json:"organization_id" yaml:"organization_id"`
	Title            string         `json:"title" yaml:"title"`
	Severity         Severity       `json:"severity" yaml:"severity"`
	Status           string         `json:"status" yaml:"status"`
	AffectedMonitors []MonitorID    `json:"affected_monitors" yaml:"affected_monitors"`
	StartedAt        time.Time      `json:"started_at" yaml:"started_at"`
	ResolvedAt       *time.Time     `json:"resolved_at,omitempty" yaml:"resolved_at,omitempty"`
}

// Active reports whether the incident is in any non-resolved state.
func (i Incident) Active() bool {
	return i.Status != IncidentResolved
}

// Affects reports whether id is among the incident's affected monitors.
func (i Incident) Affects(id MonitorID) bool {
	for _, m := range i.AffectedMonitors {
		if m == id {
			return true
		}
	}
	return false
}
