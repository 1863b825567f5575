package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

func TestMemoryStore_AddAndListMonitors(t *testing.T) {
	ctx := context.Background()
	s := New()

	mon := &domain.Monitor{Protocol: domain.ProtocolHTTP, Target: "https://example.com"}
	if err := s.Add(ctx, mon); err != nil {
		t.Fatalf("Add monitor: %v", err)
	}
	if mon.ID == "" {
		t.Fatalf("expected monitor ID to be set")
	}

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || all[0].Target != "https://example.com" || all[0].Status != domain.MonitorActive {
		t.Fatalf("unexpected monitors: %+v", all)
	}

	now := time.Now().UTC()
	if err := s.UpdateStatus(ctx, mon.ID, domain.MonitorDown, now); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	got, _ := s.Get(ctx, mon.ID)
	if got.Status != domain.MonitorDown || got.LastCheckedAt == nil || !got.LastCheckedAt.Equal(now) {
		t.Fatalf("status not updated: %+v", got)
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ResultsRangeAndLatest(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for _, off := range []time.Duration{2 * time.Minute, 0, time.Minute, time.Hour} {
		r := &domain.CheckResult{MonitorID: "m1", Status: domain.StatusSuccess, CheckedAt: base.Add(off)}
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
		if r.ID == "" {
			t.Fatal("expected result ID to be set")
		}
	}
	_ = s.Append(ctx, &domain.CheckResult{MonitorID: "m2", CheckedAt: base})

	rs, err := s.Range(ctx, "m1", base, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(rs) != 3 {
		t.Fatalf("want 3 results in range, got %d", len(rs))
	}
	for i := 1; i < len(rs); i++ {
		if rs[i].CheckedAt.Before(rs[i-1].CheckedAt) {
			t.Fatalf("range not ordered: %v", rs)
		}
	}

	latest, ok, err := s.Latest(ctx, "m1")
	if err != nil || !ok || !latest.CheckedAt.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected latest %+v ok=%v err=%v", latest, ok, err)
	}
	if _, ok, _ := s.Latest(ctx, "none"); ok {
		t.Fatal("want no latest for unknown monitor")
	}

	if err := s.AttachIncident(ctx, latest.ID, "inc-1"); err != nil {
		t.Fatalf("AttachIncident: %v", err)
	}
	latest, _, _ = s.Latest(ctx, "m1")
	if latest.IncidentID == nil || *latest.IncidentID != "inc-1" {
		t.Fatalf("incident not attached: %+v", latest)
	}
}

func TestMemoryStore_OpenIncidents(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	resolved := now
	_ = s.AddIncident(ctx, &domain.Incident{ID: "a", Status: "investigating", AffectedMonitors: []domain.MonitorID{"m1"}, StartedAt: now})
	_ = s.AddIncident(ctx, &domain.Incident{ID: "b", Status: domain.IncidentResolved, AffectedMonitors: []domain.MonitorID{"m1"}, StartedAt: now, ResolvedAt: &resolved})
	_ = s.AddIncident(ctx, &domain.Incident{ID: "c", Status: "identified", AffectedMonitors: []domain.MonitorID{"m2"}, StartedAt: now})

	open, err := s.OpenIncidents(ctx, "m1")
	if err != nil {
		t.Fatalf("OpenIncidents: %v", err)
	}
	if len(open) != 1 || open[0].ID != "a" {
		t.Fatalf("want only incident a, got %+v", open)
	}
}

func TestMemoryStore_SLOBudgetsAndFilters(t *testing.T) {
	ctx := context.Background()
	s := New()
	_ = s.AddSLOTarget(ctx, &domain.SLOTarget{ID: "s1", OrganizationID: "o1", Active: true})
	_ = s.AddSLOTarget(ctx, &domain.SLOTarget{ID: "s2", OrganizationID: "o2", Active: true})
	_ = s.AddSLOTarget(ctx, &domain.SLOTarget{ID: "s3", OrganizationID: "o1", Active: false})

	all, _ := s.ActiveSLOTargets(ctx, repo.SLOFilter{})
	if len(all) != 2 {
		t.Fatalf("want 2 active targets, got %d", len(all))
	}
	byOrg, _ := s.ActiveSLOTargets(ctx, repo.SLOFilter{OrganizationID: "o1"})
	if len(byOrg) != 1 || byOrg[0].ID != "s1" {
		t.Fatalf("unexpected org filter result %+v", byOrg)
	}

	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, ok, _ := s.Budget(ctx, "s1", start); ok {
		t.Fatal("want no budget yet")
	}
	_ = s.UpsertBudget(ctx, domain.ErrorBudget{SLOTargetID: "s1", PeriodStart: start, ConsumedMinutes: 3})
	_ = s.UpsertBudget(ctx, domain.ErrorBudget{SLOTargetID: "s1", PeriodStart: start, ConsumedMinutes: 5})
	b, ok, _ := s.Budget(ctx, "s1", start)
	if !ok || b.ConsumedMinutes != 5 {
		t.Fatalf("want upserted budget with 5 minutes, got %+v", b)
	}
}

func TestMemoryStore_AlertsAndState(t *testing.T) {
	ctx := context.Background()
	s := New()
	a := &domain.Alert{MonitorID: "m1", Status: domain.AlertActive}
	if err := s.CreateAlert(ctx, a); err != nil {
		t.Fatalf("CreateAlert: %v", err)
	}
	got, ok, _ := s.ActiveAlert(ctx, "m1")
	if !ok || got.ID != a.ID {
		t.Fatalf("want active alert %s, got %+v", a.ID, got)
	}
	at := time.Now().UTC()
	_ = s.MarkEscalated(ctx, a.ID, 2, at)
	_ = s.SetAlertStatus(ctx, a.ID, domain.AlertResolved)
	got, _ = s.Alert(ctx, a.ID)
	if got.EscalationStep != 2 || got.EscalatedAt == nil || got.Status != domain.AlertResolved {
		t.Fatalf("alert not updated: %+v", got)
	}
	if _, ok, _ := s.ActiveAlert(ctx, "m1"); ok {
		t.Fatal("resolved alert must not be active")
	}

	rec, _ := s.AlertState(ctx, "m1")
	if rec != nil {
		t.Fatalf("want nil state, got %+v", rec)
	}
	_ = s.SetAlertState(ctx, "m1", true, at)
	_ = s.SetAlertState(ctx, "m1", false, time.Time{})
	rec, _ = s.AlertState(ctx, "m1")
	if rec == nil || rec.LastFailing || rec.LastSentAt == nil || !rec.LastSentAt.Equal(at) {
		t.Fatalf("want send time kept, got %+v", rec)
	}
}

func TestMemoryStore_AppendBreachOncePerPeriod(t *testing.T) {
	s := New()
	ctx := context.Background()
	start := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := s.AppendBreach(ctx, domain.SLOBreach{SLOTargetID: "slo1", PeriodStart: start}); err != nil {
			t.Fatal(err)
		}
	}
	_ = s.AppendBreach(ctx, domain.SLOBreach{SLOTargetID: "slo1", PeriodStart: start.AddDate(0, 1, 0)})
	bs, _ := s.Breaches(ctx, "slo1")
	if len(bs) != 2 {
		t.Fatalf("want 2 breaches (one per period), got %d", len(bs))
	}
}
