package main

import (
	"context"
	"flag"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/config"
	"github.com/hamed0406/pulsewatch/internal/logging"
	"github.com/hamed0406/pulsewatch/internal/repo/postgres"
)

func main() {
	command := flag.String("command", "up", "migration command: up, down or status")
	flag.Parse()

	cfg := config.Load()
	logger, err := logging.NewLogger(cfg.LogDir, cfg.LogLevel, true)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	if cfg.DatabaseURL == "" {
		logger.Error("migrate_error", zap.String("reason", "DATABASE_URL is empty"))
		os.Exit(1)
	}
	if err := postgres.Migrate(context.Background(), cfg.DatabaseURL, *command, logger); err != nil {
		logger.Error("migrate_error", zap.Error(err))
		os.Exit(1)
	}
}
