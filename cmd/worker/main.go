package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/app"
	"github.com/hamed0406/pulsewatch/internal/config"
	"github.com/hamed0406/pulsewatch/internal/logging"
)

func main() {
	cfg := config.Load()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, cfg.LogStdout)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		logger.Warn("worker_memory_store", zap.String("hint", "results are not visible to a separate api process"))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("startup_error", zap.Error(err))
	}
	defer a.Close()

	if err := a.RunWorker(ctx); err != nil {
		logger.Error("worker_error", zap.Error(err))
	}
	logger.Info("worker_stopped")
}
