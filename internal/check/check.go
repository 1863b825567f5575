package check

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

// Outcome is the canonical result of one check execution, before it is
// stamped with ids and persisted.
type Outcome struct {
	Status         domain.Status
	ResponseTimeMS float64
	StatusCode     *int
	ErrorCode      domain.ErrorCode
	ErrorMessage   string
	Metadata       domain.Metadata
}

// History exposes the most recent stored result of a monitor.
type History interface {
	Latest(ctx context.Context, id domain.MonitorID) (domain.CheckResult, bool, error)
}

// Orchestrator dispatches a monitor to the checker for its protocol.
type Orchestrator struct {
	DNS      *DNSChecker
	HTTP     *HTTPChecker
	Ping     *probe.PingDriver
	Banner   *probe.BannerDriver
	Blackbox *probe.BlackboxDriver
	PromQL   *probe.PromQLDriver
	Retry    probe.RetryPolicy
	Log      *zap.Logger
}

func NewOrchestrator(history History, retry probe.RetryPolicy, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		DNS:      &DNSChecker{Driver: probe.NewDNSDriver()},
		HTTP:     NewHTTPChecker(history, log),
		Ping:     probe.NewPingDriver(),
		Banner:   probe.NewBannerDriver(),
		Blackbox: probe.NewBlackboxDriver(),
		PromQL:   probe.NewPromQLDriver(),
		Retry:    retry,
		Log:      log,
	}
}

// Run executes one check. Probe failures are folded into the outcome; Run
// never returns an error.
func (o *Orchestrator) Run(ctx context.Context, m domain.Monitor, settings domain.OrgSettings) Outcome {
	switch m.Protocol {
	case domain.ProtocolHTTP:
		return o.HTTP.Check(ctx, m, settings)
	case domain.ProtocolDNS:
		return o.DNS.Check(ctx, m, settings)
	case domain.ProtocolPing:
		return o.ping(ctx, m)
	case domain.ProtocolBanner:
		return o.banner(ctx, m)
	case domain.ProtocolBlackbox:
		return o.blackbox(ctx, m)
	case domain.ProtocolPromQL:
		return o.promql(ctx, m, settings)
	default:
		return invalid(fmt.Sprintf("unsupported protocol %q", m.Protocol))
	}
}

func (o *Orchestrator) ping(ctx context.Context, m domain.Monitor) Outcome {
	count := 0
	if m.Config.Ping != nil {
		count = m.Config.Ping.Count
	}
	host := hostOf(m.Target)
	r, n := probe.Retry(ctx, o.Retry, func(ctx context.Context) probe.PingResult {
		return o.Ping.Probe(ctx, host, count, m.Timeout())
	})
	stats := r.Stats
	return fromProbe(r.Result, n, domain.Metadata{Kind: domain.ProtocolPing, Ping: &stats})
}

func (o *Orchestrator) banner(ctx context.Context, m domain.Monitor) Outcome {
	var cfg domain.BannerConfig
	if m.Config.Banner != nil {
		cfg = *m.Config.Banner
	}
	host := hostOf(m.Target)
	r, n := probe.Retry(ctx, o.Retry, func(ctx context.Context) probe.BannerResult {
		return o.Banner.Probe(ctx, host, cfg, m.Timeout())
	})
	info := r.Info
	return fromProbe(r.Result, n, domain.Metadata{Kind: domain.ProtocolBanner, Banner: &info})
}

func (o *Orchestrator) blackbox(ctx context.Context, m domain.Monitor) Outcome {
	if m.Config.Blackbox == nil {
		return invalid("blackbox monitor requires exporter configuration")
	}
	cfg := *m.Config.Blackbox
	r, n := probe.Retry(ctx, o.Retry, func(ctx context.Context) probe.BlackboxResult {
		return o.Blackbox.Probe(ctx, m.Target, cfg, m.Timeout())
	})
	info := r.Info
	out := fromProbe(r.Result, n, domain.Metadata{Kind: domain.ProtocolBlackbox, Blackbox: &info})
	if info.HTTPStatusCode > 0 {
		sc := info.HTTPStatusCode
		out.StatusCode = &sc
	}
	return out
}

func (o *Orchestrator) promql(ctx context.Context, m domain.Monitor, settings domain.OrgSettings) Outcome {
	if m.Config.PromQL == nil {
		return invalid("promql monitor requires query configuration")
	}
	cfg := *m.Config.PromQL
	r, n := probe.Retry(ctx, o.Retry, func(ctx context.Context) probe.PromQLResult {
		return o.PromQL.Query(ctx, cfg, settings.PromQLToken, m.Timeout())
	})
	meta := domain.Metadata{Kind: domain.ProtocolPromQL, PromQL: &domain.PromQLMetadata{
		Query:       cfg.Query,
		Value:       r.Value,
		SeriesCount: r.SeriesCount,
		Range:       r.Range,
	}}
	out := fromProbe(r.Result, n, meta)
	if !r.OK() {
		return out
	}
	cmp, err := comparator(cfg.Comparator)
	if err != nil {
		return invalid(err.Error())
	}
	v := newVerdict()
	if cmp(r.Value, cfg.Threshold) {
		v.downgrade(domain.StatusFailure, domain.CodeThresholdBreached,
			fmt.Sprintf("value %g %s threshold %g", r.Value, comparatorSymbol(cfg.Comparator), cfg.Threshold))
	} else if cfg.DegradedThreshold != nil && cmp(r.Value, *cfg.DegradedThreshold) {
		v.downgrade(domain.StatusDegraded, domain.CodeThresholdBreached,
			fmt.Sprintf("value %g %s degraded threshold %g", r.Value, comparatorSymbol(cfg.Comparator), *cfg.DegradedThreshold))
	}
	v.apply(&out)
	return out
}

// comparator returns the breach predicate: the threshold is breached when
// cmp(value, threshold) holds. Defaults to ">".
func comparator(s string) (func(a, b float64) bool, error) {
	switch comparatorSymbol(s) {
	case ">":
		return func(a, b float64) bool { return a > b }, nil
	case ">=":
		return func(a, b float64) bool { return a >= b }, nil
	case "<":
		return func(a, b float64) bool { return a < b }, nil
	case "<=":
		return func(a, b float64) bool { return a <= b }, nil
	case "==":
		return func(a, b float64) bool { return a == b }, nil
	case "!=":
		return func(a, b float64) bool { return a != b }, nil
	}
	return nil, fmt.Errorf("unsupported comparator %q", s)
}

func comparatorSymbol(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", ">", "gt":
		return ">"
	case ">=", "gte":
		return ">="
	case "<", "lt":
		return "<"
	case "<=", "lte":
		return "<="
	case "==", "eq":
		return "=="
	case "!=", "ne":
		return "!="
	}
	return s
}

func fromProbe(r probe.Result, attempts int, meta domain.Metadata) Outcome {
	out := Outcome{
		Status:         r.Status,
		ResponseTimeMS: r.LatencyMS,
		ErrorCode:      r.ErrorCode,
		Metadata:       meta,
	}
	if r.Status != domain.StatusSuccess {
		out.ErrorMessage = probe.AfterAttempts(r.Message, attempts)
	}
	return out
}

func invalid(msg string) Outcome {
	return Outcome{Status: domain.StatusError, ErrorCode: domain.CodeValidation, ErrorMessage: msg}
}

// hostOf strips scheme, path and port from a URL-ish target.
func hostOf(target string) string {
	t := strings.TrimSpace(target)
	if strings.Contains(t, "://") {
		if u, err := url.Parse(t); err == nil && u.Hostname() != "" {
			return u.Hostname()
		}
	}
	if h, _, err := net.SplitHostPort(t); err == nil {
		return h
	}
	if i := strings.IndexByte(t, '/'); i >= 0 {
		t = t[:i]
	}
	return t
}

// verdict ratchets a status toward failure across sub-checks. The first
// error code wins; later issues are appended to the message.
type verdict struct {
	status domain.Status
	code   domain.ErrorCode
	issues []string
}

func newVerdict() *verdict { return &verdict{status: domain.StatusSuccess} }

func (v *verdict) downgrade(to domain.Status, code domain.ErrorCode, msg string) {
	v.status = domain.Downgrade(v.status, to)
	v.note(code, msg)
}

func (v *verdict) stepDown(code domain.ErrorCode, msg string) {
	v.status = domain.StepDown(v.status)
	v.note(code, msg)
}

func (v *verdict) note(code domain.ErrorCode, msg string) {
	if v.code == "" && code != "" {
		v.code = code
	}
	if msg != "" {
		v.issues = append(v.issues, msg)
	}
}

func (v *verdict) message() string { return strings.Join(v.issues, "; ") }

// apply merges the verdict into out without improving its status.
func (v *verdict) apply(out *Outcome) {
	out.Status = domain.Downgrade(out.Status, v.status)
	if out.ErrorCode == "" {
		out.ErrorCode = v.code
	}
	if msg := v.message(); msg != "" {
		if out.ErrorMessage != "" {
			out.ErrorMessage += "; " + msg
		} else {
			out.ErrorMessage = msg
		}
	}
}
