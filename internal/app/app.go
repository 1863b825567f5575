// Package app assembles the stores, queues and engines shared by the api
// and worker binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/check"
	"github.com/hamed0406/pulsewatch/internal/config"
	"github.com/hamed0406/pulsewatch/internal/escalation"
	"github.com/hamed0406/pulsewatch/internal/incident"
	"github.com/hamed0406/pulsewatch/internal/jobs"
	"github.com/hamed0406/pulsewatch/internal/metrics"
	"github.com/hamed0406/pulsewatch/internal/notify"
	"github.com/hamed0406/pulsewatch/internal/probe"
	"github.com/hamed0406/pulsewatch/internal/repo"
	"github.com/hamed0406/pulsewatch/internal/repo/memory"
	"github.com/hamed0406/pulsewatch/internal/repo/postgres"
	"github.com/hamed0406/pulsewatch/internal/scheduler"
	"github.com/hamed0406/pulsewatch/internal/slo"
)

type App struct {
	Config     config.Config
	Logger     *zap.Logger
	Store      repo.Store
	Redis      *redis.Client // nil without REDIS_ADDR
	Broker     jobs.Broker
	Metrics    *metrics.Metrics
	Escalation *escalation.Engine
	SLO        *slo.Engine
	Runner     *scheduler.CheckRunner

	closers []func() error
}

// New wires a deployment from cfg: Postgres when DATABASE_URL is set,
// otherwise in-memory stores seeded from MONITORS_FILE; Redis queues when
// REDIS_ADDR is set, otherwise in-process ones.
func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	if cfg.DatabaseURL != "" {
		pg, err := postgres.New(ctx, cfg.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.Store = pg
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		log.Info("store_selected", zap.String("kind", "postgres"))
	} else {
		mem := memory.New()
		seed, err := config.LoadMonitors(cfg.MonitorsFile)
		if err != nil {
			return nil, err
		}
		if err := seed.Apply(ctx, mem); err != nil {
			return nil, fmt.Errorf("apply seed: %w", err)
		}
		a.Store = mem
		log.Info("store_selected",
			zap.String("kind", "memory"),
			zap.Int("monitors", len(seed.Monitors)),
			zap.Int("slo_targets", len(seed.SLOTargets)),
		)
	}

	openQueue := notify.MemoryQueues()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = rdb.Close()
			a.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		a.Redis = rdb
		a.Broker = jobs.NewRedisBroker(rdb)
		openQueue = notify.RedisQueues(rdb)
		a.closers = append(a.closers, rdb.Close)
	} else {
		a.Broker = jobs.NewMemoryBroker()
	}

	a.Metrics = metrics.New(prometheus.NewRegistry())
	dispatcher := notify.NewDispatcher(notify.NewRouter(openQueue), a.Metrics, log)
	broadcaster := &notify.Broadcaster{Channels: a.Store, Settings: a.Store, Dispatcher: dispatcher}

	a.Escalation = escalation.NewEngine(a.Store, a.Broker, dispatcher, cfg.DashboardURL, log, time.Now)
	a.SLO = &slo.Engine{
		Store:        a.Store,
		Results:      a.Store,
		Notifier:     broadcaster,
		Metrics:      a.Metrics,
		Log:          log,
		DashboardURL: cfg.DashboardURL,
		Now:          time.Now,
	}
	alerter := scheduler.NewAlerter(log, a.Store, a.Store, a.Escalation, broadcaster, scheduler.AlerterConfig{
		AlertOnRecovery: cfg.AlertOnRecovery,
		Cooldown:        cfg.AlertCooldown,
		DashboardURL:    cfg.DashboardURL,
	})
	a.Runner = &scheduler.CheckRunner{
		Logger:    log,
		Settings:  a.Store,
		Checks:    check.NewOrchestrator(a.Store, probe.RetryPolicy{Attempts: cfg.RetryAttempts, Backoff: cfg.RetryBackoff}, log),
		Results:   a.Store,
		Monitors:  a.Store,
		Incidents: incident.NewLinker(a.Store, log),
		Evaluator: alerter,
		Metrics:   a.Metrics,
		Region:    cfg.Region,
		Now:       time.Now,
	}
	return a, nil
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var err error
	for i := len(a.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, a.closers[i]())
	}
	a.closers = nil
	return err
}

// RunWorker starts the scheduler and drains the queues until ctx is done.
func (a *App) RunWorker(ctx context.Context) error {
	sched := scheduler.NewScheduler(a.Logger, a.Store, a.Broker, a.Escalation, scheduler.SchedulerConfig{
		CheckPoll:      a.Config.CheckPoll,
		SLOSweep:       a.Config.SLOSweep,
		EscalationPoll: a.Config.EscalationPoll,
	})
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			a.Logger.Warn("scheduler_stop_error", zap.Error(err))
		}
	}()

	w := scheduler.NewWorker(a.Logger, a.Broker, a.Runner, a.SLO, a.Config.WorkerConcurrency)
	a.Logger.Info("worker_started",
		zap.Int("concurrency", a.Config.WorkerConcurrency),
		zap.String("region", a.Config.Region),
	)
	w.Run(ctx)
	return nil
}
