package check

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

type dnsProber interface {
	Probe(ctx context.Context, t probe.DNSTarget, q probe.DNSQuery, timeout time.Duration) probe.DNSResult
}

// DNSChecker fans a query out to every configured resolver and reduces the
// answers under the monitor's resolver strategy.
type DNSChecker struct {
	Driver dnsProber
}

// Targets builds the deduplicated resolver list in a fixed order: explicit
// resolvers, DoH, DoT, custom nameserver, then the system resolver.
func Targets(cfg domain.DNSConfig) []probe.DNSTarget {
	var out []probe.DNSTarget
	seen := map[string]bool{}
	add := func(t probe.DNSTarget) {
		if strings.TrimSpace(t.Endpoint) == "" || seen[t.Key()] {
			return
		}
		seen[t.Key()] = true
		out = append(out, t)
	}
	for _, r := range cfg.Resolvers {
		add(probe.DNSTarget{Kind: probe.ResolverUDP, Endpoint: r.Address, Region: r.Region})
	}
	for _, r := range cfg.DoHEndpoints {
		add(probe.DNSTarget{Kind: probe.ResolverDoH, Endpoint: r.Address, Region: r.Region})
	}
	for _, r := range cfg.DoTEndpoints {
		add(probe.DNSTarget{Kind: probe.ResolverDoT, Endpoint: r.Address, Region: r.Region})
	}
	if cfg.CustomNameserver != "" {
		add(probe.DNSTarget{Kind: probe.ResolverCustom, Endpoint: cfg.CustomNameserver})
	}
	add(probe.DNSTarget{Kind: probe.ResolverSystem, Endpoint: "system"})
	return out
}

// answerGroup collects resolvers that returned the same canonical answer set.
type answerGroup struct {
	key     string
	answers []string
	count   int
}

// vote groups successful results by canonical answer set and returns
// the largest group. Ties go to the group seen first in target order.
func vote(results []probe.DNSResult) (answerGroup, int) {
	var groups []*answerGroup
	index := map[string]*answerGroup{}
	for _, r := range results {
		if !r.OK() {
			continue
		}
		sorted := append([]string(nil), r.Answers...)
		sort.Strings(sorted)
		key := strings.Join(sorted, ",")
		g, ok := index[key]
		if !ok {
			g = &answerGroup{key: key, answers: sorted}
			index[key] = g
			groups = append(groups, g)
		}
		g.count++
	}
	var best answerGroup
	for _, g := range groups {
		if g.count > best.count {
			best = *g
		}
	}
	return best, len(groups)
}

func (c *DNSChecker) Check(ctx context.Context, m domain.Monitor, settings domain.OrgSettings) Outcome {
	cfg := domain.DNSConfig{RecordType: "A", Strategy: domain.StrategyAny}
	if m.Config.DNS != nil {
		cfg = *m.Config.DNS
	}
	if cfg.RecordType == "" {
		cfg.RecordType = "A"
	}
	if cfg.Strategy == "" {
		cfg.Strategy = domain.StrategyAny
	}
	name := hostOf(m.Target)
	if name == "" {
		return invalid("dns monitor requires a hostname")
	}
	if !probe.SupportedRecordType(cfg.RecordType) {
		return invalid("unsupported record type " + cfg.RecordType)
	}
	switch cfg.Strategy {
	case domain.StrategyAny, domain.StrategyQuorum, domain.StrategyAll:
	default:
		return invalid(fmt.Sprintf("unsupported resolver strategy %q", cfg.Strategy))
	}

	targets := Targets(cfg)
	query := probe.DNSQuery{
		Name:        name,
		RecordType:  strings.ToUpper(cfg.RecordType),
		DNSSEC:      cfg.RequireDNSSEC,
		BearerToken: settings.DoHToken,
	}

	results := make([]probe.DNSResult, len(targets))
	var g errgroup.Group
	for i, t := range targets {
		i, t := i, t
		g.Go(func() error {
			results[i] = c.Driver.Probe(ctx, t, query, m.Timeout())
			return nil
		})
	}
	_ = g.Wait()

	return reduceDNS(cfg, results)
}

func reduceDNS(cfg domain.DNSConfig, results []probe.DNSResult) Outcome {
	total := len(results)
	successes := 0
	for _, r := range results {
		if r.OK() {
			successes++
		}
	}
	majority, groups := vote(results)
	need := int(math.Ceil(float64(total) / 2))

	v := newVerdict()
	switch cfg.Strategy {
	case domain.StrategyAny:
		if successes == 0 {
			status, code, msg := noSuccess(results)
			v.downgrade(status, code, msg)
		}
	case domain.StrategyQuorum:
		switch {
		case successes < need:
			v.downgrade(domain.StatusFailure, domain.CodePropagationIncomplete,
				fmt.Sprintf("%d/%d resolvers answered, quorum needs %d", successes, total, need))
		case majority.count < need:
			v.downgrade(domain.StatusDegraded, domain.CodePropagationMismatch,
				fmt.Sprintf("largest agreeing group is %d/%d resolvers, quorum needs %d", majority.count, total, need))
		}
	case domain.StrategyAll:
		switch {
		case successes < total:
			v.downgrade(domain.StatusFailure, domain.CodePropagationIncomplete,
				fmt.Sprintf("%d/%d resolvers answered, all required", successes, total))
		case groups > 1:
			v.downgrade(domain.StatusDegraded, domain.CodePropagationMismatch,
				fmt.Sprintf("resolvers returned %d different answer sets", groups))
		}
	}

	if v.status == domain.StatusSuccess || v.status == domain.StatusDegraded {
		layerDNS(cfg, results, majority, v)
	}

	meta := &domain.DNSMetadata{
		RecordType:     strings.ToUpper(cfg.RecordType),
		Strategy:       cfg.Strategy,
		MajorityAnswer: majority.answers,
		MajorityCount:  majority.count,
		SuccessCount:   successes,
		Total:          total,
		Issues:         v.issues,
	}
	for _, r := range results {
		meta.Resolvers = append(meta.Resolvers, domain.ResolverOutcome{
			Kind:           string(r.Target.Kind),
			Endpoint:       r.Target.Endpoint,
			Region:         r.Target.Region,
			Status:         r.Status,
			ErrorCode:      r.ErrorCode,
			LatencyMS:      r.LatencyMS,
			Answers:        r.Answers,
			Authenticated:  r.Authenticated,
			TLSFingerprint: r.TLSFingerprint,
		})
	}

	out := Outcome{
		Status:         domain.StatusSuccess,
		ResponseTimeMS: reportedLatency(results),
		Metadata:       domain.Metadata{Kind: domain.ProtocolDNS, DNS: meta},
	}
	v.apply(&out)
	return out
}

// noSuccess classifies an "any" check where nothing answered: a timeout
// only when every probe timed out, otherwise failure with the first code.
func noSuccess(results []probe.DNSResult) (domain.Status, domain.ErrorCode, string) {
	allTimeout := len(results) > 0
	var first *probe.DNSResult
	for i := range results {
		if results[i].Status != domain.StatusTimeout {
			allTimeout = false
		}
		if first == nil && !results[i].OK() {
			first = &results[i]
		}
	}
	if allTimeout {
		return domain.StatusTimeout, domain.CodeTimeout, "all resolvers timed out"
	}
	if first == nil {
		return domain.StatusFailure, domain.CodeDNSError, "no resolvers answered"
	}
	return domain.StatusFailure, first.ErrorCode, fmt.Sprintf("%s %s: %s", first.Target.Kind, first.Target.Endpoint, first.Message)
}

func layerDNS(cfg domain.DNSConfig, results []probe.DNSResult, majority answerGroup, v *verdict) {
	if cfg.ExpectedValue != "" {
		want := strings.ToLower(cfg.ExpectedValue)
		found := false
		for _, a := range majority.answers {
			if strings.Contains(strings.ToLower(a), want) {
				found = true
				break
			}
		}
		if !found {
			v.stepDown(domain.CodeExpectedValueMismatch, fmt.Sprintf("expected value %q not in answer %v", cfg.ExpectedValue, majority.answers))
		}
	}

	if len(cfg.RequiredRegions) > 0 {
		covered := map[string]bool{}
		for _, r := range results {
			if r.OK() && r.Target.Region != "" {
				covered[strings.ToLower(r.Target.Region)] = true
			}
		}
		var missing []string
		for _, region := range cfg.RequiredRegions {
			if !covered[strings.ToLower(region)] {
				missing = append(missing, region)
			}
		}
		if len(missing) > 0 {
			v.stepDown(domain.CodePropagationRegion, "no successful resolver in region(s) "+strings.Join(missing, ", "))
		}
	}

	if cfg.RequireDNSSEC && !anyOK(results, func(r probe.DNSResult) bool { return r.Authenticated }) {
		v.stepDown(domain.CodeDNSSECFailed, "no resolver returned an authenticated (AD) answer")
	}
	if cfg.RequireDoH && !anyOK(results, func(r probe.DNSResult) bool { return r.Target.Kind == probe.ResolverDoH }) {
		v.stepDown(domain.CodeDoHUnreachable, "no DoH endpoint answered")
	}
	if cfg.RequireDoT && !anyOK(results, func(r probe.DNSResult) bool { return r.Target.Kind == probe.ResolverDoT }) {
		v.stepDown(domain.CodeDoTUnreachable, "no DoT endpoint answered")
	}
}

func anyOK(results []probe.DNSResult, pred func(probe.DNSResult) bool) bool {
	for _, r := range results {
		if r.OK() && pred(r) {
			return true
		}
	}
	return false
}

// reportedLatency is the fastest success, or the fastest attempt when none
// succeeded.
func reportedLatency(results []probe.DNSResult) float64 {
	best, bestAny := math.Inf(1), math.Inf(1)
	for _, r := range results {
		if r.OK() && r.LatencyMS < best {
			best = r.LatencyMS
		}
		if r.LatencyMS < bestAny {
			bestAny = r.LatencyMS
		}
	}
	switch {
	case !math.IsInf(best, 1):
		return best
	case !math.IsInf(bestAny, 1):
		return bestAny
	}
	return 0
}
