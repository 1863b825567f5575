package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	apimw "github.com/hamed0406/pulsewatch/internal/httpapi/middleware"
	"github.com/hamed0406/pulsewatch/internal/jobs"
	"github.com/hamed0406/pulsewatch/internal/repo"
)

// CheckRunner runs one check immediately, outside the queue.
type CheckRunner interface {
	Execute(ctx context.Context, j jobs.CheckJob) (domain.CheckResult, error)
}

// BudgetComputer recomputes an SLO target's current error budget.
type BudgetComputer interface {
	Recompute(ctx context.Context, t domain.SLOTarget, full bool) (domain.ErrorBudget, error)
}

// SLOQueue accepts sweep requests for the worker.
type SLOQueue interface {
	EnqueueSLO(ctx context.Context, j jobs.SLOJob) error
}

type Server struct {
	Logger   *zap.Logger
	Monitors repo.MonitorStore
	Results  repo.ResultStore
	SLOs     repo.SLOStore
	Alerts   repo.AlertStore
	Runner   CheckRunner
	Budgets  BudgetComputer
	Queue    SLOQueue
	Metrics  http.Handler
	Now      func() time.Time
}

func NewServer(l *zap.Logger, store repo.Store, runner CheckRunner, budgets BudgetComputer, q SLOQueue, metrics http.Handler) *Server {
	return &Server{
		Logger:   l,
		Monitors: store,
		Results:  store,
		SLOs:     store,
		Alerts:   store,
		Runner:   runner,
		Budgets:  budgets,
		Queue:    q,
		Metrics:  metrics,
		Now:      time.Now,
	}
}

// Router wires routes behind key auth and per-IP rate limits. With a Redis
// client the limits are shared across replicas (fixed one-minute window of
// rpm requests); otherwise an in-process token bucket is used.
func (s *Server) Router(keys apimw.Keys, rdb *redis.Client, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.Metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAny(keys))
		r.Use(s.limit(rdb, "public", pubRPM, pubBurst))
		r.Get("/api/monitors", s.handleListMonitors)
		r.Get("/api/monitors/{id}", s.handleGetMonitor)
		r.Get("/api/monitors/{id}/results", s.handleListResults)
		r.Get("/api/slos/{id}/budget", s.handleBudget)
		r.Get("/api/slos/{id}/breaches", s.handleBreaches)
		r.Get("/api/alerts/{id}", s.handleGetAlert)
	})

	r.Group(func(r chi.Router) {
		r.Use(apimw.RequireAdmin(keys))
		r.Use(s.limit(rdb, "admin", admRPM, admBurst))
		r.Post("/api/monitors", s.handleAddMonitor)
		r.Post("/api/monitors/{id}/check", s.handleRunCheck)
		r.Post("/api/slos/sweep", s.handleSweep)
		r.Post("/api/alerts/{id}/ack", s.handleAlertStatus(domain.AlertAcknowledged))
		r.Post("/api/alerts/{id}/resolve", s.handleAlertStatus(domain.AlertResolved))
	})

	return r
}

func (s *Server) limit(rdb *redis.Client, name string, rpm, burst int) func(http.Handler) http.Handler {
	if rdb == nil || rpm <= 0 {
		return apimw.RateLimit(rpm, burst)
	}
	return apimw.RateLimitWith(apimw.NewRedisLimiter(rdb, name, rpm, time.Minute, s.Logger))
}

// ---- monitors ----

func (s *Server) handleListMonitors(w http.ResponseWriter, r *http.Request) {
	ms, err := s.Monitors.List(r.Context())
	if err != nil {
		s.fail(w, "list_monitors_error", err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func (s *Server) handleGetMonitor(w http.ResponseWriter, r *http.Request) {
	m, ok := s.monitor(w, r)
	if !ok {
		return
	}
	resp := map[string]any{"monitor": m}
	last, found, err := s.Results.Latest(r.Context(), m.ID)
	if err != nil {
		s.fail(w, "latest_result_error", err)
		return
	}
	if found {
		resp["latest"] = last
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListResults(w http.ResponseWriter, r *http.Request) {
	m, ok := s.monitor(w, r)
	if !ok {
		return
	}
	to := s.now()
	from := to.Add(-24 * time.Hour)
	var err error
	if v := r.URL.Query().Get("from"); v != "" {
		if from, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if to, err = time.Parse(time.RFC3339, v); err != nil {
			writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
	}
	if !from.Before(to) {
		writeError(w, http.StatusBadRequest, "from must be before to")
		return
	}
	rs, err := s.Results.Range(r.Context(), m.ID, from, to)
	if err != nil {
		s.fail(w, "range_results_error", err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleAddMonitor(w http.ResponseWriter, r *http.Request) {
	var m domain.Monitor
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if msg := validateMonitor(&m); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	m.Status = domain.MonitorActive
	m.LastCheckedAt = nil
	if err := s.Monitors.Add(r.Context(), &m); err != nil {
		s.fail(w, "add_monitor_error", err)
		return
	}
	s.Logger.Info("added_monitor",
		zap.String("monitor_id", string(m.ID)),
		zap.String("protocol", string(m.Protocol)),
		zap.String("target", m.Target),
	)
	writeJSON(w, http.StatusCreated, m)
}

// handleRunCheck runs the monitor's check synchronously for immediate feedback.
func (s *Server) handleRunCheck(w http.ResponseWriter, r *http.Request) {
	m, ok := s.monitor(w, r)
	if !ok {
		return
	}
	res, err := s.Runner.Execute(r.Context(), jobs.CheckJobFor(m, s.now()))
	if err != nil {
		s.fail(w, "manual_check_error", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) monitor(w http.ResponseWriter, r *http.Request) (domain.Monitor, bool) {
	m, err := s.Monitors.Get(r.Context(), domain.MonitorID(chi.URLParam(r, "id")))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "monitor not found")
		return m, false
	}
	if err != nil {
		s.fail(w, "get_monitor_error", err)
		return m, false
	}
	return m, true
}

// ---- SLOs ----

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	t, ok := s.sloTarget(w, r)
	if !ok {
		return
	}
	b, err := s.Budgets.Recompute(r.Context(), t, false)
	if err != nil {
		s.fail(w, "budget_recompute_error", err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleBreaches(w http.ResponseWriter, r *http.Request) {
	t, ok := s.sloTarget(w, r)
	if !ok {
		return
	}
	bs, err := s.SLOs.Breaches(r.Context(), t.ID)
	if err != nil {
		s.fail(w, "list_breaches_error", err)
		return
	}
	if bs == nil {
		bs = []domain.SLOBreach{}
	}
	writeJSON(w, http.StatusOK, bs)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var j jobs.SLOJob
	// an empty body sweeps every active target
	if err := json.NewDecoder(r.Body).Decode(&j); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if err := s.Queue.EnqueueSLO(r.Context(), j); err != nil {
		s.fail(w, "enqueue_slo_error", err)
		return
	}
	s.Logger.Info("slo_sweep_requested",
		zap.String("slo_target_id", j.SLOTargetID),
		zap.String("organization_id", string(j.OrganizationID)),
		zap.Bool("full", j.Full),
	)
	writeJSON(w, http.StatusAccepted, j)
}

func (s *Server) sloTarget(w http.ResponseWriter, r *http.Request) (domain.SLOTarget, bool) {
	t, err := s.SLOs.SLOTarget(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "slo target not found")
		return t, false
	}
	if err != nil {
		s.fail(w, "get_slo_target_error", err)
		return t, false
	}
	return t, true
}

// ---- alerts ----

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := s.Alerts.Alert(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "alert not found")
		return
	}
	if err != nil {
		s.fail(w, "get_alert_error", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleAlertStatus moves an alert forward. Acknowledging a resolved alert
// is a conflict; repeating the same transition is a no-op.
func (s *Server) handleAlertStatus(to domain.AlertStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		a, err := s.Alerts.Alert(r.Context(), id)
		if errors.Is(err, repo.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		if err != nil {
			s.fail(w, "get_alert_error", err)
			return
		}
		if a.Status == domain.AlertResolved && to != domain.AlertResolved {
			writeError(w, http.StatusConflict, "alert already resolved")
			return
		}
		if a.Status != to {
			if err := s.Alerts.SetAlertStatus(r.Context(), id, to); err != nil {
				s.fail(w, "set_alert_status_error", err)
				return
			}
			s.Logger.Info("alert_status_changed",
				zap.String("alert_id", id),
				zap.String("from", string(a.Status)),
				zap.String("to", string(to)),
			)
			a.Status = to
		}
		writeJSON(w, http.StatusOK, a)
	}
}

// ---- helpers ----

func (s *Server) fail(w http.ResponseWriter, event string, err error) {
	s.Logger.Error(event, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func (s *Server) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

var knownProtocols = map[domain.Protocol]bool{
	domain.ProtocolHTTP:     true,
	domain.ProtocolDNS:      true,
	domain.ProtocolPing:     true,
	domain.ProtocolBanner:   true,
	domain.ProtocolBlackbox: true,
	domain.ProtocolPromQL:   true,
}

// validateMonitor returns a client-facing message, or "" when m is usable.
func validateMonitor(m *domain.Monitor) string {
	m.Target = strings.TrimSpace(m.Target)
	switch {
	case m.OrganizationID == "":
		return "organization_id is required"
	case m.Name == "":
		return "name is required"
	case !knownProtocols[m.Protocol]:
		return "unknown protocol " + string(m.Protocol)
	case m.Target == "":
		return "target is required"
	case m.IntervalSeconds < 0 || m.TimeoutMS < 0:
		return "interval and timeout must not be negative"
	}
	if m.Protocol == domain.ProtocolHTTP {
		if !isValidHTTPURL(m.Target) {
			return "http monitors need an http(s) url"
		}
		m.Target = normalizeHTTPURL(m.Target)
	}
	return ""
}

func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Hostname() != ""
}

// normalizeHTTPURL lowercases the host, drops default ports and a bare
// trailing slash so the same site is not added twice under different
// spellings.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = host + ":" + port
	}
	u.Host = host
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
