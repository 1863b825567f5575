package scheduler

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/jobs"
	"github.com/hamed0406/pulsewatch/internal/repo/memory"
)

type countingPoller struct{ calls chan struct{} }

func (c *countingPoller) ProcessDue(ctx context.Context, limit int) (int, error) {
	select {
	case c.calls <- struct{}{}:
	default:
	}
	return 0, nil
}

func TestScheduler_EnqueueDue(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	now := time.Date(2024, 2, 1, 10, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * time.Second)
	old := now.Add(-2 * time.Minute)
	for _, m := range []domain.Monitor{
		{ID: "never", IntervalSeconds: 60},
		{ID: "fresh", IntervalSeconds: 60},
		{ID: "stale", IntervalSeconds: 60},
		{ID: "paused", IntervalSeconds: 60, Paused: true},
	} {
		m := m
		_ = s.Add(ctx, &m)
	}
	_ = s.UpdateStatus(ctx, "fresh", domain.MonitorActive, recent)
	_ = s.UpdateStatus(ctx, "stale", domain.MonitorActive, old)

	b := jobs.NewMemoryBroker()
	sch := NewScheduler(zap.NewNop(), s, b, nil, SchedulerConfig{})
	sch.now = func() time.Time { return now }

	n, err := sch.EnqueueDue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Fatalf("want never and stale enqueued, got %d", n)
	}

	// the jobs have not run yet; a second poll must not duplicate them
	n, _ = sch.EnqueueDue(ctx)
	if n != 0 {
		t.Fatalf("want no duplicates, got %d", n)
	}

	got := map[domain.MonitorID]bool{}
	for {
		j, ok, _ := b.DequeueCheck(ctx, time.Millisecond)
		if !ok {
			break
		}
		got[j.MonitorID] = true
	}
	if !got["never"] || !got["stale"] || len(got) != 2 {
		t.Fatalf("unexpected jobs %v", got)
	}

	// an interval later they are due again
	sch.now = func() time.Time { return now.Add(time.Minute) }
	if n, _ := sch.EnqueueDue(ctx); n != 3 {
		t.Fatalf("want 3 due after an interval, got %d", n)
	}
}

func TestScheduler_StartRunsPeriodicJobs(t *testing.T) {
	s := memory.New()
	b := jobs.NewMemoryBroker()
	p := &countingPoller{calls: make(chan struct{}, 1)}
	sch := NewScheduler(zap.NewNop(), s, b, p, SchedulerConfig{
		CheckPoll:      20 * time.Millisecond,
		SLOSweep:       20 * time.Millisecond,
		EscalationPoll: 20 * time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := sch.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := sch.Stop(); err != nil {
			t.Fatal(err)
		}
	}()

	select {
	case <-p.calls:
	case <-time.After(2 * time.Second):
		t.Fatal("escalation poll never ran")
	}
	j, ok, err := b.DequeueSLO(ctx, 2*time.Second)
	if err != nil || !ok {
		t.Fatalf("want an slo sweep job, got ok=%v err=%v", ok, err)
	}
	if j.SLOTargetID != "" || j.OrganizationID != "" {
		t.Fatalf("want a sweep over every target, got %+v", j)
	}
}
