//go:build integration

package postgres

// go test -tags=integration ./internal/repo/postgres -count=1

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}
	ctx := context.Background()
	if err := Migrate(ctx, dsn, "up", zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := New(ctx, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("New store: %v", err)
	}
	t.Cleanup(store.Close)
	return store
}

func TestPostgresStore_MonitorsAndResults(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	mon := &domain.Monitor{
		OrganizationID: domain.OrganizationID("org-" + uuid.NewString()),
		Protocol:       domain.ProtocolHTTP,
		Target:         "https://example.com",
		Config:         domain.ProtocolConfig{HTTP: &domain.HTTPConfig{DegradedThresholdMS: 500}},
	}
	if err := store.Add(ctx, mon); err != nil {
		t.Fatalf("Add monitor: %v", err)
	}
	got, err := store.Get(ctx, mon.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Config.HTTP == nil || got.Config.HTTP.DegradedThresholdMS != 500 {
		t.Fatalf("config not round-tripped: %+v", got.Config)
	}

	base := time.Now().UTC().Truncate(time.Second)
	code := 200
	for i := 0; i < 3; i++ {
		r := &domain.CheckResult{
			MonitorID:      mon.ID,
			OrganizationID: mon.OrganizationID,
			Status:         domain.StatusSuccess,
			ResponseTimeMS: 42,
			StatusCode:     &code,
			Metadata:       domain.Metadata{Kind: domain.ProtocolHTTP, HTTP: &domain.HTTPMetadata{Method: "GET"}},
			CheckedAt:      base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append result: %v", err)
		}
	}

	rs, err := store.Range(ctx, mon.ID, base, base.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("want 2 results in range, got %d", len(rs))
	}
	latest, ok, err := store.Latest(ctx, mon.ID)
	if err != nil || !ok {
		t.Fatalf("Latest: ok=%v err=%v", ok, err)
	}
	if latest.Metadata.HTTP == nil || latest.Metadata.HTTP.Method != "GET" {
		t.Fatalf("metadata not decoded: %+v", latest.Metadata)
	}
	if latest.StatusCode == nil || *latest.StatusCode != 200 {
		t.Fatalf("want status code 200, got %v", latest.StatusCode)
	}

	inc := &domain.Incident{OrganizationID: mon.OrganizationID, Title: "outage", Severity: domain.SeverityMajor, Status: "investigating",
		AffectedMonitors: []domain.MonitorID{mon.ID}}
	if err := store.AddIncident(ctx, inc); err != nil {
		t.Fatalf("AddIncident: %v", err)
	}
	open, err := store.OpenIncidents(ctx, mon.ID)
	if err != nil || len(open) != 1 {
		t.Fatalf("OpenIncidents: %v %v", open, err)
	}
	if err := store.AttachIncident(ctx, latest.ID, inc.ID); err != nil {
		t.Fatalf("AttachIncident: %v", err)
	}
}

func TestPostgresStore_AlertState(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()
	id := domain.MonitorID("state-" + uuid.NewString())

	rec, err := store.AlertState(ctx, id)
	if err != nil || rec != nil {
		t.Fatalf("expected nil, got %+v err=%v", rec, err)
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := store.SetAlertState(ctx, id, true, now); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.SetAlertState(ctx, id, false, time.Time{}); err != nil {
		t.Fatalf("set2: %v", err)
	}
	rec, err = store.AlertState(ctx, id)
	if err != nil || rec == nil || rec.LastFailing || rec.LastSentAt == nil {
		t.Fatalf("unexpected: %+v err=%v", rec, err)
	}
}

func TestPostgresStore_BudgetUpsert(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	mon := &domain.Monitor{OrganizationID: "o", Protocol: domain.ProtocolPing, Target: "example.com"}
	if err := store.Add(ctx, mon); err != nil {
		t.Fatalf("Add monitor: %v", err)
	}
	slo := &domain.SLOTarget{OrganizationID: "o", MonitorID: mon.ID, TargetPercent: 99.9, Window: domain.WindowMonthly,
		AlertThresholds: []float64{50, 25}, Active: true}
	if err := store.AddSLOTarget(ctx, slo); err != nil {
		t.Fatalf("AddSLOTarget: %v", err)
	}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	b := domain.ErrorBudget{SLOTargetID: slo.ID, PeriodStart: start, PeriodEnd: start.AddDate(0, 1, 0), ConsumedMinutes: 1, UpdatedAt: time.Now().UTC()}
	if err := store.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("UpsertBudget: %v", err)
	}
	b.ConsumedMinutes = 4
	if err := store.UpsertBudget(ctx, b); err != nil {
		t.Fatalf("UpsertBudget 2: %v", err)
	}
	got, ok, err := store.Budget(ctx, slo.ID, start)
	if err != nil || !ok || got.ConsumedMinutes != 4 {
		t.Fatalf("want consumed 4, got %+v ok=%v err=%v", got, ok, err)
	}
}
