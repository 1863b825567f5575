package jobs

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryBroker serves single-process deployments and tests.
type MemoryBroker struct {
	checks *fifo[CheckJob]
	slo    *fifo[SLOJob]

	mu          sync.Mutex
	escalations []EscalationJob
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{checks: newFIFO[CheckJob](), slo: newFIFO[SLOJob]()}
}

func (b *MemoryBroker) EnqueueCheck(_ context.Context, j CheckJob) error {
	b.checks.push(j)
	return nil
}

func (b *MemoryBroker) DequeueCheck(ctx context.Context, wait time.Duration) (CheckJob, bool, error) {
	return b.checks.pop(ctx, wait)
}

func (b *MemoryBroker) EnqueueSLO(_ context.Context, j SLOJob) error {
	b.slo.push(j)
	return nil
}

func (b *MemoryBroker) DequeueSLO(ctx context.Context, wait time.Duration) (SLOJob, bool, error) {
	return b.slo.pop(ctx, wait)
}

func (b *MemoryBroker) ScheduleEscalation(_ context.Context, j EscalationJob) error {
	b.mu.Lock()
	b.escalations = append(b.escalations, j)
	b.mu.Unlock()
	return nil
}

func (b *MemoryBroker) ClaimDueEscalations(_ context.Context, now time.Time, limit int) ([]EscalationJob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sort.SliceStable(b.escalations, func(i, k int) bool {
		return b.escalations[i].DueAt.Before(b.escalations[k].DueAt)
	})
	var due []EscalationJob
	rest := b.escalations[:0]
	for _, j := range b.escalations {
		if !j.DueAt.After(now) && (limit <= 0 || len(due) < limit) {
			due = append(due, j)
			continue
		}
		rest = append(rest, j)
	}
	b.escalations = rest
	return due, nil
}

// Pending returns the scheduled escalation jobs without claiming them.
func (b *MemoryBroker) Pending() []EscalationJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]EscalationJob(nil), b.escalations...)
}

type fifo[T any] struct {
	mu    sync.Mutex
	items []T
	ready chan struct{}
}

func newFIFO[T any]() *fifo[T] {
	return &fifo[T]{ready: make(chan struct{}, 1)}
}

func (q *fifo[T]) push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *fifo[T]) pop(ctx context.Context, wait time.Duration) (T, bool, error) {
	timer := time.NewTimer(wait)
	defer timer.Stop()
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0
			q.mu.Unlock()
			if more {
				// wake the next waiter
				select {
				case q.ready <- struct{}{}:
				default:
				}
			}
			return v, true, nil
		}
		q.mu.Unlock()

		var zero T
		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-timer.C:
			return zero, false, nil
		case <-q.ready:
		}
	}
}
