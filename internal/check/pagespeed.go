package check

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const pageSpeedEndpoint = "https://www.googleapis.com/pagespeedonline/v5/runPagespeed"

// PageSpeedAuditor returns a 0-100 performance score for a URL.
type PageSpeedAuditor interface {
	Audit(ctx context.Context, target, strategy, apiKey string) (float64, error)
}

// PageSpeedClient calls the PageSpeed Insights API.
type PageSpeedClient struct {
	Client  *http.Client
	BaseURL string
}

func (p *PageSpeedClient) Audit(ctx context.Context, target, strategy, apiKey string) (float64, error) {
	base := p.BaseURL
	if base == "" {
		base = pageSpeedEndpoint
	}
	q := url.Values{}
	q.Set("url", target)
	q.Set("category", "performance")
	if strategy != "" {
		q.Set("strategy", strategy)
	}
	if apiKey != "" {
		q.Set("key", apiKey)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return 0, err
	}
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("pagespeed status %d: %s", resp.StatusCode, gjson.GetBytes(body, "error.message").String())
	}
	score := gjson.GetBytes(body, "lighthouseResult.categories.performance.score")
	if !score.Exists() {
		return 0, fmt.Errorf("pagespeed response has no performance score")
	}
	return score.Float() * 100, nil
}

// pageSpeed audits at most once per configured interval; between audits the
// previous score and timestamp are carried forward.
func (c *HTTPChecker) pageSpeed(ctx context.Context, m domain.Monitor, p domain.PageSpeedCheck, settings domain.OrgSettings, prev *domain.HTTPMetadata) ([]finding, *float64, *time.Time) {
	now := c.now()
	if prev != nil && prev.PageSpeedAuditedAt != nil && now.Sub(*prev.PageSpeedAuditedAt) < p.Interval() {
		return nil, prev.PageSpeedScore, prev.PageSpeedAuditedAt
	}
	if c.PageSpeed == nil {
		if prev != nil {
			return nil, prev.PageSpeedScore, prev.PageSpeedAuditedAt
		}
		return nil, nil, nil
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	score, err := c.PageSpeed.Audit(ctx, m.Target, p.Strategy, settings.PageSpeedAPIKey)
	if err != nil {
		// an unavailable audit service says nothing about the monitored site
		c.log().Warn("pagespeed_audit_error", zap.String("monitor_id", string(m.ID)), zap.Error(err))
		if prev != nil {
			return nil, prev.PageSpeedScore, prev.PageSpeedAuditedAt
		}
		return nil, nil, nil
	}
	var out []finding
	if p.MinScore > 0 && score < p.MinScore {
		out = append(out, finding{domain.StatusDegraded, domain.CodeLowPerformance, fmt.Sprintf("page speed score %.0f below %.0f", score, p.MinScore)})
	}
	return out, &score, &now
}
