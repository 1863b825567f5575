package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/config"
	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/jobs"
)

func TestNew_MemoryModeRunsSeededCheck(t *testing.T) {
	site := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer site.Close()

	seed := `
monitors:
  - id: web
    organization_id: acme
    name: website
    protocol: http
    target: ` + site.URL + `
slo_targets:
  - id: web-slo
    organization_id: acme
    monitor_id: web
    target_percent: 99.9
    window: monthly
    active: true
`
	path := filepath.Join(t.TempDir(), "monitors.yaml")
	if err := os.WriteFile(path, []byte(seed), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Config{MonitorsFile: path, Region: "eu", RetryAttempts: 1, WorkerConcurrency: 1}
	ctx := context.Background()
	a, err := New(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	if a.Redis != nil {
		t.Fatal("want no redis client without REDIS_ADDR")
	}
	if _, ok := a.Broker.(*jobs.MemoryBroker); !ok {
		t.Fatalf("want memory broker, got %T", a.Broker)
	}

	m, err := a.Store.Get(ctx, "web")
	if err != nil {
		t.Fatalf("seeded monitor: %v", err)
	}
	res, err := a.Runner.Execute(ctx, jobs.CheckJobFor(m, time.Now()))
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != domain.StatusSuccess || res.Region != "eu" {
		t.Fatalf("want success in eu, got %s in %q (%s)", res.Status, res.Region, res.ErrorMessage)
	}
	if _, ok, _ := a.Store.Latest(ctx, "web"); !ok {
		t.Fatal("want result stored")
	}

	target, err := a.Store.SLOTarget(ctx, "web-slo")
	if err != nil {
		t.Fatal(err)
	}
	b, err := a.SLO.Recompute(ctx, target, false)
	if err != nil {
		t.Fatalf("Recompute: %v", err)
	}
	if b.Breached || b.ConsumedMinutes != 0 {
		t.Fatalf("want untouched budget, got %+v", b)
	}
}

func TestNew_BadSeedFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monitors.yaml")
	if err := os.WriteFile(path, []byte("monitors: [{id: x}]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := New(context.Background(), config.Config{MonitorsFile: path}, zap.NewNop()); err == nil {
		t.Fatal("want error for invalid seed")
	}
}
