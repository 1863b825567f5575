package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate runs goose against the embedded migrations. command is one of
// up, down or status.
func Migrate(ctx context.Context, dsn, command string, log *zap.Logger) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open sql connection: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sql connection: %w", err)
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	log.Info("migrate_start", zap.String("command", command))
	switch command {
	case "up":
		err = goose.UpContext(runCtx, db, "migrations")
	case "down":
		err = goose.DownContext(runCtx, db, "migrations")
	case "status":
		err = goose.StatusContext(runCtx, db, "migrations")
	default:
		return fmt.Errorf("unsupported migrate command %q", command)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", command, err)
	}
	log.Info("migrate_done", zap.String("command", command))
	return nil
}
