package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

type BlackboxResult struct {
	Result
	Info domain.BlackboxMetadata
}

// BlackboxDriver scrapes a blackbox exporter's /probe endpoint.
type BlackboxDriver struct {
	Client *http.Client
}

func NewBlackboxDriver() *BlackboxDriver {
	return &BlackboxDriver{Client: &http.Client{}}
}

func (b *BlackboxDriver) Probe(ctx context.Context, target string, cfg domain.BlackboxConfig, timeout time.Duration) BlackboxResult {
	out := BlackboxResult{Info: domain.BlackboxMetadata{Module: cfg.Module}}
	if cfg.ExporterURL == "" || cfg.Module == "" {
		out.Result = Result{Status: domain.StatusError, ErrorCode: domain.CodeValidation, Message: "blackbox exporter url and module are required"}
		return out
	}
	u, err := url.Parse(strings.TrimSuffix(cfg.ExporterURL, "/") + "/probe")
	if err != nil {
		out.Result = Result{Status: domain.StatusError, ErrorCode: domain.CodeValidation, Message: err.Error()}
		return out
	}
	q := u.Query()
	q.Set("module", cfg.Module)
	q.Set("target", target)
	u.RawQuery = q.Encode()

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		out.Result = errorResult(start, domain.CodeValidation, err)
		return out
	}
	// the exporter derives its own probe timeout from this header
	req.Header.Set("X-Prometheus-Scrape-Timeout-Seconds", fmt.Sprintf("%.3f", timeout.Seconds()))

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		if timedOut(ctx, err) {
			out.Result = timeoutResult(start, "blackbox scrape")
			return out
		}
		out.Result = errorResult(start, domain.CodeBlackboxError, err)
		return out
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		out.Result = errorResult(start, domain.CodeBlackboxError, fmt.Errorf("exporter returned %s", resp.Status))
		return out
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		out.Result = errorResult(start, domain.CodeBlackboxError, fmt.Errorf("parse exposition: %w", err))
		return out
	}
	wall := sinceMS(start)

	value := func(name string) (float64, bool) {
		mf, ok := families[name]
		if !ok || len(mf.GetMetric()) == 0 {
			return 0, false
		}
		m := mf.GetMetric()[len(mf.GetMetric())-1]
		switch {
		case m.GetGauge() != nil:
			return m.GetGauge().GetValue(), true
		case m.GetUntyped() != nil:
			return m.GetUntyped().GetValue(), true
		case m.GetCounter() != nil:
			return m.GetCounter().GetValue(), true
		}
		return 0, false
	}

	success, ok := value("probe_success")
	if !ok {
		out.Result = Result{Status: domain.StatusError, LatencyMS: wall, ErrorCode: domain.CodeBlackboxError, Message: "probe_success missing from exporter output"}
		return out
	}
	latency := wall
	if d, ok := value("probe_duration_seconds"); ok {
		out.Info.DurationSeconds = d
		latency = d * 1000
	}
	if sc, ok := value("probe_http_status_code"); ok {
		out.Info.HTTPStatusCode = int(sc)
	}
	out.Info.ProbeSuccess = success == 1
	if !out.Info.ProbeSuccess {
		out.Result = Result{Status: domain.StatusFailure, LatencyMS: latency, ErrorCode: domain.CodeBlackboxFailed, Message: "blackbox module " + cfg.Module + " reported failure"}
		return out
	}
	out.Result = Result{Status: domain.StatusSuccess, LatencyMS: latency}
	return out
}
