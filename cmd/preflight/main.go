// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/hamed0406/pulsewatch/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.Load()

	if len(cfg.AdminAPIKeys) == 0 {
		fail("ADMIN_API_KEYS is empty (admin routes would be open).")
	}
	if len(cfg.PublicAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; read routes accept admin keys only.")
	}
	for name, v := range map[string]string{"ADMIN_API_KEYS": os.Getenv("ADMIN_API_KEYS"), "PUBLIC_API_KEYS": os.Getenv("PUBLIC_API_KEYS")} {
		if strings.Contains(strings.TrimSpace(v), " ") {
			warn(name + " contains spaces; use comma-separated with no spaces, e.g. key1,key2")
		}
	}
	ok("API_ADDR=" + cfg.Addr)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if cfg.DatabaseURL == "" {
		warn("DATABASE_URL empty; stores are in-memory and the worker must run inside the api process.")
		seed, err := config.LoadMonitors(cfg.MonitorsFile)
		if err != nil {
			fail("MONITORS_FILE: " + err.Error())
		}
		ok(fmt.Sprintf("seed: %d monitors, %d slo targets, %d channels", len(seed.Monitors), len(seed.SLOTargets), len(seed.Channels)))
	} else {
		conn, err := pgx.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			fail("DATABASE_URL: " + err.Error())
		}
		defer conn.Close(ctx)
		if err := conn.Ping(ctx); err != nil {
			fail("postgres ping: " + err.Error())
		}
		ok("postgres reachable")
	}

	if cfg.RedisAddr == "" {
		warn("REDIS_ADDR empty; queues and rate limits are per-process.")
	} else {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			fail("redis ping: " + err.Error())
		}
		ok("redis reachable at " + cfg.RedisAddr)
	}

	if cfg.DashboardURL == "" {
		warn("DASHBOARD_URL empty; notifications will carry no dashboard links.")
	}

	ok("preflight passed")
}
