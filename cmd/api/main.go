package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/app"
	"github.com/hamed0406/pulsewatch/internal/config"
	"github.com/hamed0406/pulsewatch/internal/httpapi"
	apimw "github.com/hamed0406/pulsewatch/internal/httpapi/middleware"
	"github.com/hamed0406/pulsewatch/internal/logging"
)

func main() {
	cfg := config.Load()
	// in-memory stores are private to a process, so the worker has to live
	// alongside the API unless Postgres is configured
	withWorker := flag.Bool("with-worker", cfg.DatabaseURL == "", "also run the scheduler and worker in this process")
	flag.Parse()

	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogStdout)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup_error", zap.Error(err))
	}
	defer a.Close()

	api := httpapi.NewServer(logger, a.Store, a.Runner, a.SLO, a.Broker, a.Metrics.Handler())
	keys := apimw.Keys{Public: cfg.PublicAPIKeys, Admin: cfg.AdminAPIKeys}
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(keys, a.Redis, cfg.PublicRPM, cfg.PublicBurst, cfg.AdminRPM, cfg.AdminBurst),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if *withWorker {
		go func() {
			if err := a.RunWorker(ctx); err != nil {
				logger.Error("worker_error", zap.Error(err))
				stop()
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("api_listen", zap.String("addr", cfg.Addr), zap.Bool("with_worker", *withWorker))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("api_listen_error", zap.Error(err))
	}
}
