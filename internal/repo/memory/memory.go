package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

type budgetKey struct {
	target string
	start  int64
}

// Store keeps every table in process memory. It backs single-process
// deployments and tests.
type Store struct {
	mu         sync.RWMutex
	monitors   map[domain.MonitorID]*domain.Monitor
	results    []*domain.CheckResult
	incidents  []domain.Incident
	settings   map[domain.OrganizationID]domain.OrgSettings
	slos       map[string]domain.SLOTarget
	budgets    map[budgetKey]domain.ErrorBudget
	breaches   []domain.SLOBreach
	alerts     map[string]*domain.Alert
	alertState map[domain.MonitorID]repo.AlertRecord
	policies   map[string]domain.EscalationPolicy
	rotations  map[string]domain.OnCallRotation
	channels   []domain.NotificationChannel
}

func New() *Store {
	return &Store{
		monitors:   make(map[domain.MonitorID]*domain.Monitor),
		results:    make([]*domain.CheckResult, 0, 128),
		settings:   make(map[domain.OrganizationID]domain.OrgSettings),
		slos:       make(map[string]domain.SLOTarget),
		budgets:    make(map[budgetKey]domain.ErrorBudget),
		alerts:     make(map[string]*domain.Alert),
		alertState: make(map[domain.MonitorID]repo.AlertRecord),
		policies:   make(map[string]domain.EscalationPolicy),
		rotations:  make(map[string]domain.OnCallRotation),
	}
}

// ---- MonitorStore ----

func (m *Store) Add(ctx context.Context, mon *domain.Monitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mon.ID == "" {
		mon.ID = domain.MonitorID(uuid.NewString())
	}
	if mon.CreatedAt.IsZero() {
		mon.CreatedAt = time.Now().UTC()
	}
	if mon.Status == "" {
		mon.Status = domain.MonitorActive
	}
	cp := *mon
	m.monitors[mon.ID] = &cp
	return nil
}

func (m *Store) Get(ctx context.Context, id domain.MonitorID) (domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mon, ok := m.monitors[id]
	if !ok {
		return domain.Monitor{}, repo.ErrNotFound
	}
	return *mon, nil
}

func (m *Store) List(ctx context.Context) ([]domain.Monitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Monitor, 0, len(m.monitors))
	for _, mon := range m.monitors {
		out = append(out, *mon)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) UpdateStatus(ctx context.Context, id domain.MonitorID, status domain.MonitorStatus, checkedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	mon, ok := m.monitors[id]
	if !ok {
		return repo.ErrNotFound
	}
	mon.Status = status
	t := checkedAt
	mon.LastCheckedAt = &t
	return nil
}

// ---- ResultStore ----

func (m *Store) Append(ctx context.Context, r *domain.CheckResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	cp := *r
	m.results = append(m.results, &cp)
	return nil
}

func (m *Store) Latest(ctx context.Context, id domain.MonitorID) (domain.CheckResult, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *domain.CheckResult
	for _, r := range m.results {
		if r.MonitorID != id {
			continue
		}
		if latest == nil || !r.CheckedAt.Before(latest.CheckedAt) {
			latest = r
		}
	}
	if latest == nil {
		return domain.CheckResult{}, false, nil
	}
	return *latest, true, nil
}

func (m *Store) Range(ctx context.Context, id domain.MonitorID, from, to time.Time) ([]domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.CheckResult
	for _, r := range m.results {
		if r.MonitorID == id && !r.CheckedAt.Before(from) && r.CheckedAt.Before(to) {
			out = append(out, *r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CheckedAt.Before(out[j].CheckedAt) })
	return out, nil
}

func (m *Store) AttachIncident(ctx context.Context, resultID, incidentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.ID == resultID {
			id := incidentID
			r.IncidentID = &id
			return nil
		}
	}
	return repo.ErrNotFound
}

// ---- IncidentStore ----

func (m *Store) AddIncident(ctx context.Context, in *domain.Incident) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.StartedAt.IsZero() {
		in.StartedAt = time.Now().UTC()
	}
	m.incidents = append(m.incidents, *in)
	return nil
}

func (m *Store) OpenIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Incident
	for _, in := range m.incidents {
		if in.Active() && in.Affects(id) {
			out = append(out, in)
		}
	}
	return out, nil
}

// ---- SettingsStore ----

func (m *Store) Settings(ctx context.Context, org domain.OrganizationID) (domain.OrgSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settings[org]
	if !ok {
		return domain.OrgSettings{OrganizationID: org}, nil
	}
	return s, nil
}

func (m *Store) PutSettings(ctx context.Context, s domain.OrgSettings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[s.OrganizationID] = s
	return nil
}

// ---- SLOStore ----

func (m *Store) AddSLOTarget(ctx context.Context, t *domain.SLOTarget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	m.slos[t.ID] = *t
	return nil
}

func (m *Store) ActiveSLOTargets(ctx context.Context, f repo.SLOFilter) ([]domain.SLOTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.SLOTarget
	for _, t := range m.slos {
		if !t.Active {
			continue
		}
		if f.TargetID != "" && t.ID != f.TargetID {
			continue
		}
		if f.OrganizationID != "" && t.OrganizationID != f.OrganizationID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Store) SLOTarget(ctx context.Context, id string) (domain.SLOTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.slos[id]
	if !ok {
		return domain.SLOTarget{}, repo.ErrNotFound
	}
	return t, nil
}

func (m *Store) Budget(ctx context.Context, targetID string, periodStart time.Time) (domain.ErrorBudget, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.budgets[budgetKey{targetID, periodStart.UnixNano()}]
	return b, ok, nil
}

func (m *Store) UpsertBudget(ctx context.Context, b domain.ErrorBudget) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.budgets[budgetKey{b.SLOTargetID, b.PeriodStart.UnixNano()}] = b
	return nil
}

func (m *Store) AppendBreach(ctx context.Context, b domain.SLOBreach) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.breaches {
		if have.SLOTargetID == b.SLOTargetID && have.PeriodStart.Equal(b.PeriodStart) {
			return nil
		}
	}
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	m.breaches = append(m.breaches, b)
	return nil
}

func (m *Store) Breaches(ctx context.Context, targetID string) ([]domain.SLOBreach, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.SLOBreach
	for _, b := range m.breaches {
		if b.SLOTargetID == targetID {
			out = append(out, b)
		}
	}
	return out, nil
}

// ---- AlertStore ----

func (m *Store) CreateAlert(ctx context.Context, a *domain.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *Store) Alert(ctx context.Context, id string) (domain.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.alerts[id]
	if !ok {
		return domain.Alert{}, repo.ErrNotFound
	}
	return *a, nil
}

func (m *Store) ActiveAlert(ctx context.Context, id domain.MonitorID) (domain.Alert, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found *domain.Alert
	for _, a := range m.alerts {
		if a.MonitorID != id || a.Status == domain.AlertResolved {
			continue
		}
		if found == nil || a.CreatedAt.After(found.CreatedAt) {
			found = a
		}
	}
	if found == nil {
		return domain.Alert{}, false, nil
	}
	return *found, true, nil
}

func (m *Store) SetAlertStatus(ctx context.Context, id string, status domain.AlertStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.Status = status
	return nil
}

func (m *Store) MarkEscalated(ctx context.Context, id string, step int, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return repo.ErrNotFound
	}
	a.EscalationStep = step
	t := at
	a.EscalatedAt = &t
	return nil
}

// ---- AlertStateStore ----

func (m *Store) AlertState(ctx context.Context, id domain.MonitorID) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alertState[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) SetAlertState(ctx context.Context, id domain.MonitorID, failing bool, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.alertState[id]
	r.MonitorID = id
	r.LastFailing = failing
	if !sentAt.IsZero() {
		t := sentAt
		r.LastSentAt = &t
	}
	m.alertState[id] = r
	return nil
}

// ---- EscalationStore ----

func (m *Store) AddPolicy(ctx context.Context, p *domain.EscalationPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	m.policies[p.ID] = *p
	return nil
}

func (m *Store) Policy(ctx context.Context, id string) (domain.EscalationPolicy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.policies[id]
	if !ok {
		return domain.EscalationPolicy{}, repo.ErrNotFound
	}
	return p, nil
}

func (m *Store) AddRotation(ctx context.Context, r *domain.OnCallRotation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	m.rotations[r.ID] = *r
	return nil
}

func (m *Store) Rotation(ctx context.Context, id string) (domain.OnCallRotation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rotations[id]
	if !ok {
		return domain.OnCallRotation{}, repo.ErrNotFound
	}
	return r, nil
}

func (m *Store) AddChannel(ctx context.Context, c *domain.NotificationChannel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	m.channels = append(m.channels, *c)
	return nil
}

func (m *Store) Channels(ctx context.Context, org domain.OrganizationID) ([]domain.NotificationChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.NotificationChannel
	for _, c := range m.channels {
		if c.OrganizationID == org {
			out = append(out, c)
		}
	}
	return out, nil
}
