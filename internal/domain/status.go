package domain

// Status is the canonical outcome of one check execution.
type Status string

const (
	StatusSuccess  Status = "success"
	StatusDegraded Status = "degraded"
	StatusTimeout  Status = "timeout"
	StatusError    Status = "error"
	StatusFailure  Status = "failure"
)

// Severity orders statuses from healthy (0) to failure (3).
// timeout and error share a rank: neither outranks the other.
func (s Status) Severity() int {
	switch s {
	case StatusSuccess:
		return 0
	case StatusDegraded:
		return 1
	case StatusTimeout, StatusError:
		return 2
	case StatusFailure:
		return 3
	default:
		return 2
	}
}

// IsFailing reports whether the status counts as downtime.
func (s Status) IsFailing() bool {
	return s == StatusFailure || s == StatusError || s == StatusTimeout
}

// Downgrade returns whichever of current and candidate is worse.
// The result is never healthier than current.
func Downgrade(current, candidate Status) Status {
	if candidate.Severity() > current.Severity() {
		return candidate
	}
	return current
}

// StepDown moves a status one level toward failure:
// success -> degraded -> failure. Timeout, error and failure are unchanged.
func StepDown(s Status) Status {
	switch s {
	case StatusSuccess:
		return StatusDegraded
	case StatusDegraded:
		return StatusFailure
	default:
		return s
	}
}

// MonitorStatus is the displayed state of a monitor.
type MonitorStatus string

const (
	MonitorActive   MonitorStatus = "active"
	MonitorDegraded MonitorStatus = "degraded"
	MonitorDown     MonitorStatus = "down"
)

// MonitorStatusFor maps a check status onto the monitor's displayed state.
func MonitorStatusFor(s Status) MonitorStatus {
	switch {
	case s == StatusSuccess:
		return MonitorActive
	case s == StatusDegraded:
		return MonitorDegraded
	default:
		return MonitorDown
	}
}
