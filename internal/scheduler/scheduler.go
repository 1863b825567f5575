package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/jobs"
)

type monitorLister interface {
	List(ctx context.Context) ([]domain.Monitor, error)
}

type escalationPoller interface {
	ProcessDue(ctx context.Context, limit int) (int, error)
}

type SchedulerConfig struct {
	CheckPoll      time.Duration
	SLOSweep       time.Duration
	EscalationPoll time.Duration
}

// Scheduler turns time into jobs: due checks, SLO sweeps and escalation
// steps.
type Scheduler struct {
	logger      *zap.Logger
	monitors    monitorLister
	broker      jobs.Broker
	escalations escalationPoller
	cfg         SchedulerConfig
	now         func() time.Time

	mu       sync.Mutex
	enqueued map[domain.MonitorID]time.Time
	cron     gocron.Scheduler
}

func NewScheduler(logger *zap.Logger, monitors monitorLister, b jobs.Broker, esc escalationPoller, cfg SchedulerConfig) *Scheduler {
	if cfg.CheckPoll <= 0 {
		cfg.CheckPoll = 5 * time.Second
	}
	if cfg.SLOSweep <= 0 {
		cfg.SLOSweep = 5 * time.Minute
	}
	if cfg.EscalationPoll <= 0 {
		cfg.EscalationPoll = 10 * time.Second
	}
	return &Scheduler{
		logger:      logger,
		monitors:    monitors,
		broker:      b,
		escalations: esc,
		cfg:         cfg,
		now:         time.Now,
		enqueued:    map[domain.MonitorID]time.Time{},
	}
}

// Start registers the periodic jobs and returns; Stop shuts them down.
func (s *Scheduler) Start(ctx context.Context) error {
	cron, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}
	defs := []struct {
		name string
		def  gocron.JobDefinition
		fn   func()
	}{
		{"enqueue_due_checks", gocron.DurationJob(s.cfg.CheckPoll), func() {
			if _, err := s.EnqueueDue(ctx); err != nil {
				s.logger.Warn("scheduler_enqueue_error", zap.Error(err))
			}
		}},
		{"slo_sweep", gocron.DurationJob(s.cfg.SLOSweep), func() {
			s.enqueueSweep(ctx, false)
		}},
		// recompute the previous period once its history is complete
		{"slo_close_out", gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(0, 5, 0))), func() {
			s.enqueueSweep(ctx, true)
		}},
		{"escalation_poll", gocron.DurationJob(s.cfg.EscalationPoll), func() {
			if s.escalations == nil {
				return
			}
			if _, err := s.escalations.ProcessDue(ctx, 100); err != nil {
				s.logger.Warn("escalation_poll_error", zap.Error(err))
			}
		}},
	}
	for _, d := range defs {
		_, err := cron.NewJob(d.def, gocron.NewTask(d.fn),
			gocron.WithName(d.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = cron.Shutdown()
			return fmt.Errorf("register %s: %w", d.name, err)
		}
	}
	s.cron = cron
	cron.Start()
	s.logger.Info("scheduler_started",
		zap.Duration("check_poll", s.cfg.CheckPoll),
		zap.Duration("slo_sweep", s.cfg.SLOSweep),
		zap.Duration("escalation_poll", s.cfg.EscalationPoll),
	)
	return nil
}

func (s *Scheduler) Stop() error {
	if s.cron == nil {
		return nil
	}
	return s.cron.Shutdown()
}

// EnqueueDue pushes a check job for every monitor whose interval has
// elapsed. A monitor is not enqueued again until another interval passes,
// even if its previous job has not run yet.
func (s *Scheduler) EnqueueDue(ctx context.Context) (int, error) {
	ms, err := s.monitors.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list monitors: %w", err)
	}
	now := s.now().UTC()
	n := 0
	for _, m := range ms {
		if !m.Due(now) || !s.claim(m, now) {
			continue
		}
		if err := s.broker.EnqueueCheck(ctx, jobs.CheckJobFor(m, now)); err != nil {
			s.release(m.ID)
			return n, fmt.Errorf("enqueue %s: %w", m.ID, err)
		}
		n++
	}
	if n > 0 {
		s.logger.Debug("checks_enqueued", zap.Int("count", n))
	}
	return n, nil
}

func (s *Scheduler) claim(m domain.Monitor, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.enqueued[m.ID]; ok && now.Sub(last) < m.Interval() {
		return false
	}
	s.enqueued[m.ID] = now
	return true
}

func (s *Scheduler) release(id domain.MonitorID) {
	s.mu.Lock()
	delete(s.enqueued, id)
	s.mu.Unlock()
}

func (s *Scheduler) enqueueSweep(ctx context.Context, full bool) {
	if err := s.broker.EnqueueSLO(ctx, jobs.SLOJob{Full: full}); err != nil {
		s.logger.Warn("slo_enqueue_error", zap.Bool("full", full), zap.Error(err))
	}
}
