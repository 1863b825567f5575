// Package escalation walks active alerts through their policy steps.
package escalation

import (
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const defaultShift = 24 * time.Hour

// CurrentOnCall returns who is on call at now. An override window covering
// now wins over the schedule. ok is false for a coverage gap: the rotation
// is inactive or nobody is scheduled.
func CurrentOnCall(r domain.OnCallRotation, now time.Time) (string, bool) {
	if !r.Active {
		return "", false
	}
	for _, o := range r.Overrides {
		if o.Participant != "" && !now.Before(o.Start) && now.Before(o.End) {
			return o.Participant, true
		}
	}
	n := len(r.Participants)
	if n == 0 {
		return "", false
	}
	shift := time.Duration(r.ShiftDurationHours) * time.Hour
	if shift <= 0 {
		shift = defaultShift
	}
	elapsed := now.Sub(r.Start)
	idx := int(elapsed / shift)
	if elapsed < 0 && elapsed%shift != 0 {
		idx-- // floor for times before the rotation start
	}
	idx %= n
	if idx < 0 {
		idx += n
	}
	return r.Participants[idx], true
}
