package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

var _ repo.Store = (*Store)(nil)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
}

// ---- MonitorStore ----

const monitorColumns = `id, organization_id, name, protocol, target, interval_seconds, timeout_ms,
       regions, config, escalation_policy_id, severity, status, paused, last_checked_at, created_at`

func scanMonitor(row pgx.Row) (domain.Monitor, error) {
	var m domain.Monitor
	err := row.Scan(&m.ID, &m.OrganizationID, &m.Name, &m.Protocol, &m.Target, &m.IntervalSeconds, &m.TimeoutMS,
		&m.Regions, &m.Config, &m.EscalationPolicyID, &m.Severity, &m.Status, &m.Paused, &m.LastCheckedAt, &m.CreatedAt)
	return m, err
}

func (s *Store) Add(ctx context.Context, m *domain.Monitor) error {
	if m.ID == "" {
		m.ID = domain.MonitorID(uuid.NewString())
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Status == "" {
		m.Status = domain.MonitorActive
	}
	regions := m.Regions
	if regions == nil {
		regions = []string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO monitors (`+monitorColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		 ON CONFLICT (id) DO UPDATE SET
		   name=EXCLUDED.name, protocol=EXCLUDED.protocol, target=EXCLUDED.target,
		   interval_seconds=EXCLUDED.interval_seconds, timeout_ms=EXCLUDED.timeout_ms,
		   regions=EXCLUDED.regions, config=EXCLUDED.config,
		   escalation_policy_id=EXCLUDED.escalation_policy_id, severity=EXCLUDED.severity,
		   paused=EXCLUDED.paused`,
		string(m.ID), string(m.OrganizationID), m.Name, string(m.Protocol), m.Target, m.IntervalSeconds, m.TimeoutMS,
		regions, m.Config, m.EscalationPolicyID, string(m.Severity), string(m.Status), m.Paused, m.LastCheckedAt, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert monitor: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id domain.MonitorID) (domain.Monitor, error) {
	m, err := scanMonitor(s.pool.QueryRow(ctx, `SELECT `+monitorColumns+` FROM monitors WHERE id = $1`, string(id)))
	if err != nil {
		return domain.Monitor{}, notFound(err)
	}
	return m, nil
}

func (s *Store) List(ctx context.Context) ([]domain.Monitor, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+monitorColumns+` FROM monitors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list monitors: %w", err)
	}
	defer rows.Close()
	var out []domain.Monitor
	for rows.Next() {
		m, err := scanMonitor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan monitor: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) UpdateStatus(ctx context.Context, id domain.MonitorID, status domain.MonitorStatus, checkedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE monitors SET status=$2, last_checked_at=$3 WHERE id=$1`,
		string(id), string(status), checkedAt)
	if err != nil {
		return fmt.Errorf("update monitor status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- ResultStore ----

const resultColumns = `id, monitor_id, organization_id, region, kind, status, response_time_ms,
       status_code, error_code, error_message, metadata, incident_id, checked_at`

func scanResult(row pgx.Row) (domain.CheckResult, error) {
	var (
		r    domain.CheckResult
		meta []byte
	)
	if err := row.Scan(&r.ID, &r.MonitorID, &r.OrganizationID, &r.Region, &r.Kind, &r.Status, &r.ResponseTimeMS,
		&r.StatusCode, &r.ErrorCode, &r.ErrorMessage, &meta, &r.IncidentID, &r.CheckedAt); err != nil {
		return r, err
	}
	m, err := domain.DecodeMetadata(meta)
	if err != nil {
		return r, err
	}
	r.Metadata = m
	return r, nil
}

func (s *Store) Append(ctx context.Context, r *domain.CheckResult) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.CheckedAt.IsZero() {
		r.CheckedAt = time.Now().UTC()
	}
	kind := r.Kind
	if kind == "" {
		kind = domain.KindAvailability
	}
	meta, err := r.Metadata.Encode()
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO check_results (`+resultColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		r.ID, string(r.MonitorID), string(r.OrganizationID), r.Region, string(kind), string(r.Status), r.ResponseTimeMS,
		r.StatusCode, string(r.ErrorCode), r.ErrorMessage, meta, r.IncidentID, r.CheckedAt)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, id domain.MonitorID) (domain.CheckResult, bool, error) {
	r, err := scanResult(s.pool.QueryRow(ctx,
		`SELECT `+resultColumns+`
		   FROM check_results
		  WHERE monitor_id = $1
		  ORDER BY checked_at DESC
		  LIMIT 1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CheckResult{}, false, nil
	}
	if err != nil {
		return domain.CheckResult{}, false, fmt.Errorf("latest result: %w", err)
	}
	return r, true, nil
}

func (s *Store) Range(ctx context.Context, id domain.MonitorID, from, to time.Time) ([]domain.CheckResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+resultColumns+`
		   FROM check_results
		  WHERE monitor_id = $1 AND checked_at >= $2 AND checked_at < $3
		  ORDER BY checked_at ASC, id ASC`, string(id), from, to)
	if err != nil {
		return nil, fmt.Errorf("range results: %w", err)
	}
	defer rows.Close()
	var out []domain.CheckResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) AttachIncident(ctx context.Context, resultID, incidentID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE check_results SET incident_id=$2 WHERE id=$1`, resultID, incidentID)
	if err != nil {
		return fmt.Errorf("attach incident: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repo.ErrNotFound
	}
	return nil
}

// ---- IncidentStore ----

func (s *Store) AddIncident(ctx context.Context, in *domain.Incident) error {
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if in.StartedAt.IsZero() {
		in.StartedAt = time.Now().UTC()
	}
	ids := make([]string, len(in.AffectedMonitors))
	for i, m := range in.AffectedMonitors {
		ids[i] = string(m)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO incidents (id, organization_id, title, severity, status, affected_monitors, started_at, resolved_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, affected_monitors=EXCLUDED.affected_monitors,
		   resolved_at=EXCLUDED.resolved_at`,
		in.ID, string(in.OrganizationID), in.Title, string(in.Severity), in.Status, ids, in.StartedAt, in.ResolvedAt)
	if err != nil {
		return fmt.Errorf("upsert incident: %w", err)
	}
	return nil
}

func (s *Store) OpenIncidents(ctx context.Context, id domain.MonitorID) ([]domain.Incident, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, title, severity, status, affected_monitors, started_at, resolved_at
		   FROM incidents
		  WHERE status <> $2 AND $1 = ANY(affected_monitors)
		  ORDER BY started_at DESC`, string(id), domain.IncidentResolved)
	if err != nil {
		return nil, fmt.Errorf("open incidents: %w", err)
	}
	defer rows.Close()
	var out []domain.Incident
	for rows.Next() {
		var (
			in  domain.Incident
			ids []string
		)
		if err := rows.Scan(&in.ID, &in.OrganizationID, &in.Title, &in.Severity, &in.Status, &ids, &in.StartedAt, &in.ResolvedAt); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		for _, m := range ids {
			in.AffectedMonitors = append(in.AffectedMonitors, domain.MonitorID(m))
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// ---- SettingsStore ----

func (s *Store) Settings(ctx context.Context, org domain.OrganizationID) (domain.OrgSettings, error) {
	out := domain.OrgSettings{OrganizationID: org}
	err := s.pool.QueryRow(ctx,
		`SELECT doh_token, promql_token, page_speed_api_key, browser_service_url, credentials
		   FROM org_settings WHERE organization_id = $1`, string(org)).
		Scan(&out.DoHToken, &out.PromQLToken, &out.PageSpeedAPIKey, &out.BrowserServiceURL, &out.Credentials)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrgSettings{OrganizationID: org}, nil
	}
	if err != nil {
		return out, fmt.Errorf("org settings: %w", err)
	}
	return out, nil
}

func (s *Store) PutSettings(ctx context.Context, o domain.OrgSettings) error {
	creds := o.Credentials
	if creds == nil {
		creds = map[string]string{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO org_settings (organization_id, doh_token, promql_token, page_speed_api_key, browser_service_url, credentials)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (organization_id) DO UPDATE SET
		   doh_token=EXCLUDED.doh_token, promql_token=EXCLUDED.promql_token,
		   page_speed_api_key=EXCLUDED.page_speed_api_key, browser_service_url=EXCLUDED.browser_service_url,
		   credentials=EXCLUDED.credentials`,
		string(o.OrganizationID), o.DoHToken, o.PromQLToken, o.PageSpeedAPIKey, o.BrowserServiceURL, creds)
	if err != nil {
		return fmt.Errorf("upsert org settings: %w", err)
	}
	return nil
}
