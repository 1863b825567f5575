package probe

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

// Result is the normalized outcome shared by every driver.
//
// Fields:
//   - Status: success/degraded/failure/timeout/error for this single probe.
//   - LatencyMS: wall time of the network operation, 0 if it never started.
//   - ErrorCode: empty on success.
type Result struct {
	Status    domain.Status
	LatencyMS float64
	ErrorCode domain.ErrorCode
	Message   string
}

// OK reports whether the probe succeeded.
func (r Result) OK() bool { return r.Status == domain.StatusSuccess }

// Failed reports whether the outcome counts as down (failure, error, timeout).
func (r Result) Failed() bool { return r.Status.IsFailing() }

func sinceMS(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

func timedOut(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func timeoutResult(start time.Time, what string) Result {
	return Result{
		Status:    domain.StatusTimeout,
		LatencyMS: sinceMS(start),
		ErrorCode: domain.CodeTimeout,
		Message:   what + " timed out",
	}
}

func errorResult(start time.Time, code domain.ErrorCode, err error) Result {
	return Result{
		Status:    domain.StatusError,
		LatencyMS: sinceMS(start),
		ErrorCode: code,
		Message:   err.Error(),
	}
}
