package check

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

// cdn fetches the edge and the origin concurrently and compares status and
// latency once both settle.
func (c *HTTPChecker) cdn(ctx context.Context, m domain.Monitor, cfg domain.CDNCheck, method string, headers map[string]string) ([]finding, *domain.CDNComparison) {
	if cfg.OriginURL == "" {
		return []finding{{domain.StatusDegraded, domain.CodeCDNMismatch, "cdn check has no origin url"}}, nil
	}
	var edge, origin probe.HTTPResponse
	var g errgroup.Group
	g.Go(func() error {
		edge = c.Driver.Do(ctx, probe.HTTPRequest{Method: method, URL: m.Target, Headers: headers}, m.Timeout())
		return nil
	})
	g.Go(func() error {
		origin = c.Driver.Do(ctx, probe.HTTPRequest{Method: method, URL: cfg.OriginURL, Headers: headers}, m.Timeout())
		return nil
	})
	_ = g.Wait()

	cmp := &domain.CDNComparison{
		EdgeStatus:      edge.StatusCode,
		OriginStatus:    origin.StatusCode,
		EdgeLatencyMS:   edge.LatencyMS,
		OriginLatencyMS: origin.LatencyMS,
	}
	switch {
	case !edge.OK():
		return []finding{{domain.StatusDegraded, domain.CodeCDNMismatch, "cdn edge request failed: " + edge.Message}}, cmp
	case !origin.OK():
		return []finding{{domain.StatusDegraded, domain.CodeCDNMismatch, "cdn origin request failed: " + origin.Message}}, cmp
	case edge.StatusCode != origin.StatusCode:
		return []finding{{domain.StatusDegraded, domain.CodeCDNMismatch, fmt.Sprintf("edge status %d differs from origin %d", edge.StatusCode, origin.StatusCode)}}, cmp
	}
	ratio := cfg.MaxLatencyRatio
	if ratio <= 0 {
		ratio = 1
	}
	if origin.LatencyMS > 0 && edge.LatencyMS > origin.LatencyMS*ratio {
		return []finding{{domain.StatusDegraded, domain.CodeCDNSlow, fmt.Sprintf("edge %.0fms slower than origin %.0fms", edge.LatencyMS, origin.LatencyMS)}}, cmp
	}
	return nil, cmp
}
