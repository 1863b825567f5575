package check

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

type httpDoer interface {
	Do(ctx context.Context, in probe.HTTPRequest, timeout time.Duration) probe.HTTPResponse
}

// finding is one sub-check's contribution to the verdict.
type finding struct {
	status domain.Status
	code   domain.ErrorCode
	msg    string
}

// HTTPChecker runs the primary request and the configured sub-checks
// against its buffered response.
type HTTPChecker struct {
	Driver    httpDoer
	Browser   BrowserRunner
	PageSpeed PageSpeedAuditor
	History   History
	Log       *zap.Logger
	Now       func() time.Time
}

func NewHTTPChecker(history History, log *zap.Logger) *HTTPChecker {
	driver := probe.NewHTTPDriver()
	return &HTTPChecker{
		Driver:    driver,
		Browser:   &RemoteBrowser{Client: driver.Client},
		PageSpeed: &PageSpeedClient{Client: driver.Client},
		History:   history,
		Log:       log,
		Now:       time.Now,
	}
}

func (c *HTTPChecker) Check(ctx context.Context, m domain.Monitor, settings domain.OrgSettings) Outcome {
	var cfg domain.HTTPConfig
	if m.Config.HTTP != nil {
		cfg = *m.Config.HTTP
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodGet
	}
	if m.Target == "" {
		return invalid("http monitor requires a url")
	}
	vars := templateVars(settings)
	headers := expandMap(cfg.Headers, vars)

	primary := c.Driver.Do(ctx, probe.HTTPRequest{
		Method:  method,
		URL:     m.Target,
		Headers: headers,
		Body:    expand(cfg.Body, vars),
	}, m.Timeout())

	meta := &domain.HTTPMetadata{
		Method:    method,
		FinalURL:  primary.FinalURL,
		BodyBytes: int64(len(primary.Body)),
		Headers:   flatten(primary.Headers),
	}
	out := Outcome{
		Status:         primary.Status,
		ResponseTimeMS: primary.LatencyMS,
		ErrorCode:      primary.ErrorCode,
		Metadata:       domain.Metadata{Kind: domain.ProtocolHTTP, HTTP: meta},
	}
	if primary.StatusCode > 0 {
		sc := primary.StatusCode
		out.StatusCode = &sc
	}

	var prev *domain.HTTPMetadata
	if (cfg.Browser != nil && cfg.Browser.Screenshot) || cfg.PageSpeed != nil {
		prev = c.previous(ctx, m.ID)
	}
	if !primary.OK() {
		// the screenshot baseline and last audit survive runs that never
		// reached the sub-checks
		carryBaseline(meta, prev)
		out.ErrorMessage = primary.Message
		return out
	}

	// Remote sub-checks carry their own timeouts and run alongside the
	// sequential flow; their findings are applied in fixed order below.
	var (
		g                            errgroup.Group
		gqlF, browserF, speedF, cdnF []finding
		gqlDiag                      *domain.GraphQLDiagnostics
		shot                         string
		speedScore                   *float64
		speedAt                      *time.Time
		cdnCmp                       *domain.CDNComparison
	)
	if cfg.GraphQL != nil {
		g.Go(func() error {
			gqlF, gqlDiag = c.graphQL(ctx, m, *cfg.GraphQL, headers)
			return nil
		})
	}
	if cfg.Browser != nil {
		g.Go(func() error {
			browserF, shot = c.browser(ctx, m, *cfg.Browser, settings, prev)
			return nil
		})
	}
	if cfg.PageSpeed != nil {
		g.Go(func() error {
			speedF, speedScore, speedAt = c.pageSpeed(ctx, m, *cfg.PageSpeed, settings, prev)
			return nil
		})
	}
	if cfg.CDN != nil {
		g.Go(func() error {
			cdnF, cdnCmp = c.cdn(ctx, m, *cfg.CDN, method, headers)
			return nil
		})
	}

	var flowF []finding
	if len(cfg.Flow) > 0 {
		flowF, meta.FlowSteps = c.runFlow(ctx, m, cfg.Flow, vars)
	}
	_ = g.Wait()

	meta.GraphQL = gqlDiag
	meta.ScreenshotHash = shot
	meta.PageSpeedScore = speedScore
	meta.PageSpeedAuditedAt = speedAt
	meta.CDN = cdnCmp

	v := newVerdict()
	for _, group := range [][]finding{
		statusFindings(cfg.ExpectedStatusCodes, primary.StatusCode),
		assertionFindings(cfg.Assertions, primary),
		cacheFindings(cfg.CachePolicy, primary.Headers),
		sizeFindings(cfg.SizePolicy, primary),
		gqlF,
		flowF,
		contractFindings(cfg.Contract, primary.Body),
		browserF,
		speedF,
		securityFindings(cfg.SecurityHeaders, primary.Headers),
		cdnF,
	} {
		for _, f := range group {
			v.downgrade(f.status, f.code, f.msg)
		}
	}

	if v.status == domain.StatusSuccess && cfg.DegradedThresholdMS > 0 && primary.LatencyMS > float64(cfg.DegradedThresholdMS) {
		v.status = domain.StatusDegraded
		v.issues = append(v.issues, fmt.Sprintf("response took %.0fms, degraded threshold is %dms", primary.LatencyMS, cfg.DegradedThresholdMS))
	}
	meta.Issues = v.issues
	v.apply(&out)
	return out
}

func (c *HTTPChecker) previous(ctx context.Context, id domain.MonitorID) *domain.HTTPMetadata {
	if c.History == nil {
		return nil
	}
	last, ok, err := c.History.Latest(ctx, id)
	if err != nil {
		c.log().Warn("check_history_error", zap.String("monitor_id", string(id)), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return last.Metadata.HTTP
}

func carryBaseline(meta, prev *domain.HTTPMetadata) {
	if prev == nil {
		return
	}
	meta.ScreenshotHash = prev.ScreenshotHash
	meta.PageSpeedScore = prev.PageSpeedScore
	meta.PageSpeedAuditedAt = prev.PageSpeedAuditedAt
}

func (c *HTTPChecker) log() *zap.Logger {
	if c.Log == nil {
		return zap.NewNop()
	}
	return c.Log
}

func (c *HTTPChecker) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

func statusFindings(expected []int, got int) []finding {
	if len(expected) == 0 {
		if got >= 200 && got < 400 {
			return nil
		}
		return []finding{{domain.StatusFailure, domain.CodeUnexpectedStatus, fmt.Sprintf("unexpected status %d", got)}}
	}
	for _, e := range expected {
		if e == got {
			return nil
		}
	}
	return []finding{{domain.StatusFailure, domain.CodeUnexpectedStatus, fmt.Sprintf("unexpected status %d, want one of %v", got, expected)}}
}

var templateVar = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// expand substitutes {{name}} placeholders; unknown names are left as-is.
func expand(s string, vars map[string]string) string {
	if !strings.Contains(s, "{{") {
		return s
	}
	return templateVar.ReplaceAllStringFunc(s, func(m string) string {
		name := templateVar.FindStringSubmatch(m)[1]
		if v, ok := vars[name]; ok {
			return v
		}
		return m
	})
}

func expandMap(in map[string]string, vars map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = expand(v, vars)
	}
	return out
}

func templateVars(settings domain.OrgSettings) map[string]string {
	vars := make(map[string]string, len(settings.Credentials))
	for k, v := range settings.Credentials {
		vars[k] = v
	}
	return vars
}

func flatten(h http.Header) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}
