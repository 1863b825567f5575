package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string // API bind address, e.g. "127.0.0.1:8080" or ":8080" in a container
	LogDir      string
	LogLevel    string // debug, info, warn or error
	LogStdout   bool   // also write logs to stderr
	DatabaseURL string // empty means in-memory stores

	RedisAddr     string // empty means in-process queues
	RedisPassword string
	RedisDB       int

	RetryAttempts int           // attempts for ping, banner, blackbox and promql probes
	RetryBackoff  time.Duration // pause between attempts

	WorkerConcurrency int
	Region            string // stamped on every check result

	CheckPoll       time.Duration // how often due monitors are enqueued
	SLOSweep        time.Duration
	EscalationPoll  time.Duration
	AlertCooldown   time.Duration
	AlertOnRecovery bool
	DashboardURL    string

	PublicAPIKeys []string
	AdminAPIKeys  []string
	PublicRPM     int
	PublicBurst   int
	AdminRPM      int
	AdminBurst    int

	MonitorsFile string // YAML seed for the in-memory deployment
}

// Load reads an optional .env file, then the environment. Variables already
// set in the environment win over the file.
func Load(files ...string) Config {
	_ = godotenv.Load(files...)
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Addr:        str("API_ADDR", "127.0.0.1:8080"),
		LogDir:      str("LOG_DIR", "logs"),
		LogLevel:    strings.ToLower(str("LOG_LEVEL", "info")),
		LogStdout:   boolean("LOG_STDOUT", false),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       integer("REDIS_DB", 0, 0),

		RetryAttempts: integer("RETRY_ATTEMPTS", 2, 1),
		RetryBackoff:  millis("RETRY_BACKOFF_MS", 300*time.Millisecond),

		WorkerConcurrency: integer("WORKER_CONCURRENCY", 8, 1),
		Region:            str("WORKER_REGION", "default"),

		CheckPoll:       millis("CHECK_POLL_MS", 5*time.Second),
		SLOSweep:        millis("SLO_SWEEP_INTERVAL_MS", 5*time.Minute),
		EscalationPoll:  millis("ESCALATION_POLL_MS", 10*time.Second),
		AlertCooldown:   millis("ALERT_COOLDOWN_MS", 5*time.Minute),
		AlertOnRecovery: boolean("ALERT_ON_RECOVERY", true),
		DashboardURL:    os.Getenv("DASHBOARD_URL"),

		PublicAPIKeys: list("PUBLIC_API_KEYS"),
		AdminAPIKeys:  list("ADMIN_API_KEYS"),
		PublicRPM:     integer("PUBLIC_RPM", 120, 0),
		PublicBurst:   integer("PUBLIC_BURST", 60, 1),
		AdminRPM:      integer("ADMIN_RPM", 60, 0),
		AdminBurst:    integer("ADMIN_BURST", 30, 1),

		MonitorsFile: os.Getenv("MONITORS_FILE"),
	}
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// integer falls back to def when the value is missing, malformed or below min.
func integer(key string, def, min int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= min {
			return n
		}
	}
	return def
}

func millis(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return def
}

func boolean(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func list(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
