package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/jobs"
	"github.com/hamed0406/pulsewatch/internal/repo"
	"github.com/hamed0406/pulsewatch/internal/slo"
)

type sweeper interface {
	Sweep(ctx context.Context, f repo.SLOFilter, full bool) (slo.SweepReport, error)
}

// Worker drains the check and SLO queues.
type Worker struct {
	Logger      *zap.Logger
	Broker      jobs.Broker
	Runner      *CheckRunner
	SLO         sweeper
	Concurrency int
	// PollWait bounds each blocking dequeue.
	PollWait time.Duration
}

func NewWorker(logger *zap.Logger, b jobs.Broker, runner *CheckRunner, s sweeper, concurrency int) *Worker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Worker{
		Logger:      logger,
		Broker:      b,
		Runner:      runner,
		SLO:         s,
		Concurrency: concurrency,
		PollWait:    time.Second,
	}
}

// Run blocks until ctx is cancelled and in-flight checks have finished.
func (w *Worker) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w.runChecks(ctx)
	}()
	go func() {
		defer wg.Done()
		w.runSLO(ctx)
	}()
	wg.Wait()
	w.Logger.Info("worker_stopped")
}

func (w *Worker) runChecks(ctx context.Context) {
	sem := make(chan struct{}, w.Concurrency)
	var wg sync.WaitGroup
	defer wg.Wait()

	for ctx.Err() == nil {
		j, ok, err := w.Broker.DequeueCheck(ctx, w.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Logger.Warn("worker_dequeue_error", zap.Error(err))
			sleep(ctx, w.PollWait)
			continue
		}
		if !ok {
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() { <-sem }()
			defer wg.Done()
			// a job that was already dequeued finishes even during shutdown
			_, _ = w.Runner.Execute(context.WithoutCancel(ctx), j)
		}()
	}
}

func (w *Worker) runSLO(ctx context.Context) {
	if w.SLO == nil {
		return
	}
	for ctx.Err() == nil {
		j, ok, err := w.Broker.DequeueSLO(ctx, w.PollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.Logger.Warn("worker_dequeue_error", zap.String("queue", "slo"), zap.Error(err))
			sleep(ctx, w.PollWait)
			continue
		}
		if !ok {
			continue
		}
		f := repo.SLOFilter{TargetID: j.SLOTargetID, OrganizationID: j.OrganizationID}
		if _, err := w.SLO.Sweep(ctx, f, j.Full); err != nil {
			w.Logger.Warn("slo_sweep_error", zap.Error(err))
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
