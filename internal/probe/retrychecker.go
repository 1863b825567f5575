package probe

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy repeats a failing probe. Degraded outcomes are not retried.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
}

type failer interface {
	Failed() bool
}

// Retry runs fn until it stops failing or attempts run out, and returns the
// last outcome with the number of attempts made.
func Retry[T failer](ctx context.Context, p RetryPolicy, fn func(context.Context) T) (T, int) {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last T
	i := 0
	for i < attempts {
		last = fn(ctx)
		i++
		if !last.Failed() || i == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return last, i
		case <-time.After(p.Backoff):
		}
	}
	return last, i
}

// AfterAttempts annotates a message so a retry series is visible.
func AfterAttempts(msg string, n int) string {
	if n <= 1 {
		return msg
	}
	return fmt.Sprintf("%s (after %d attempts)", msg, n)
}
