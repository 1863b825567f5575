package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

type PromQLResult struct {
	Result
	Value       float64
	SeriesCount int
	Range       bool
}

type PromQLDriver struct {
	Transport http.RoundTripper
	now       func() time.Time
}

func NewPromQLDriver() *PromQLDriver {
	return &PromQLDriver{Transport: api.DefaultRoundTripper, now: time.Now}
}

type bearerTransport struct {
	token string
	next  http.RoundTripper
}

func (b bearerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	r.Header.Set("Authorization", "Bearer "+b.token)
	return b.next.RoundTrip(r)
}

// Query runs cfg.Query as an instant query, or as a range query ending now
// when RangeSeconds is set, and returns the last sample of the last series.
func (p *PromQLDriver) Query(ctx context.Context, cfg domain.PromQLConfig, token string, timeout time.Duration) PromQLResult {
	out := PromQLResult{Range: cfg.RangeSeconds > 0}
	if cfg.ServerURL == "" || cfg.Query == "" {
		out.Result = Result{Status: domain.StatusError, ErrorCode: domain.CodeValidation, Message: "promql server url and query are required"}
		return out
	}
	rt := p.Transport
	if rt == nil {
		rt = api.DefaultRoundTripper
	}
	if token != "" {
		rt = bearerTransport{token: token, next: rt}
	}
	client, err := api.NewClient(api.Config{Address: cfg.ServerURL, RoundTripper: rt})
	if err != nil {
		out.Result = Result{Status: domain.StatusError, ErrorCode: domain.CodeValidation, Message: err.Error()}
		return out
	}
	promAPI := v1.NewAPI(client)

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	now := time.Now
	if p.now != nil {
		now = p.now
	}
	start := time.Now()
	var val model.Value
	if out.Range {
		step := time.Duration(cfg.StepSeconds) * time.Second
		if step <= 0 {
			step = time.Minute
		}
		end := now()
		val, _, err = promAPI.QueryRange(ctx, cfg.Query, v1.Range{
			Start: end.Add(-time.Duration(cfg.RangeSeconds) * time.Second),
			End:   end,
			Step:  step,
		})
	} else {
		val, _, err = promAPI.Query(ctx, cfg.Query, now())
	}
	if err != nil {
		if timedOut(ctx, err) {
			out.Result = timeoutResult(start, "promql query")
			return out
		}
		out.Result = errorResult(start, domain.CodePromQLError, err)
		return out
	}
	latency := sinceMS(start)

	v, n, ok := lastSample(val)
	out.SeriesCount = n
	if !ok {
		out.Result = Result{Status: domain.StatusError, LatencyMS: latency, ErrorCode: domain.CodeNoData, Message: "query returned no series"}
		return out
	}
	out.Value = v
	out.Result = Result{Status: domain.StatusSuccess, LatencyMS: latency, Message: fmt.Sprintf("value %g", v)}
	return out
}

func lastSample(v model.Value) (float64, int, bool) {
	switch t := v.(type) {
	case model.Vector:
		if len(t) == 0 {
			return 0, 0, false
		}
		return float64(t[len(t)-1].Value), len(t), true
	case model.Matrix:
		for i := len(t) - 1; i >= 0; i-- {
			if vals := t[i].Values; len(vals) > 0 {
				return float64(vals[len(vals)-1].Value), len(t), true
			}
		}
		return 0, len(t), false
	case *model.Scalar:
		if t == nil {
			return 0, 0, false
		}
		return float64(t.Value), 1, true
	}
	return 0, 0, false
}
