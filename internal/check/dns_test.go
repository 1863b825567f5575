package check

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

// fakeResolvers answers per endpoint; unknown endpoints time out.
type fakeResolvers map[string]probe.DNSResult

func (f fakeResolvers) Probe(_ context.Context, t probe.DNSTarget, _ probe.DNSQuery, _ time.Duration) probe.DNSResult {
	r, ok := f[t.Endpoint]
	if !ok {
		r = probe.DNSResult{Result: probe.Result{Status: domain.StatusTimeout, ErrorCode: domain.CodeTimeout, LatencyMS: 5000, Message: "timed out"}}
	}
	r.Target = t
	return r
}

func ok(latency float64, answers ...string) probe.DNSResult {
	return probe.DNSResult{Result: probe.Result{Status: domain.StatusSuccess, LatencyMS: latency}, Answers: answers}
}

func dnsMonitor(cfg domain.DNSConfig) domain.Monitor {
	return domain.Monitor{ID: "m1", Protocol: domain.ProtocolDNS, Target: "example.com", Config: domain.ProtocolConfig{DNS: &cfg}}
}

func resolvers(addrs ...string) []domain.ResolverSpec {
	var out []domain.ResolverSpec
	for _, a := range addrs {
		out = append(out, domain.ResolverSpec{Address: a})
	}
	return out
}

func TestTargets_DedupesAndAlwaysAddsSystem(t *testing.T) {
	got := Targets(domain.DNSConfig{
		Resolvers:        resolvers("1.1.1.1", "8.8.8.8", "1.1.1.1"),
		DoHEndpoints:     resolvers("https://dns.example/dns-query"),
		CustomNameserver: "8.8.8.8",
	})
	var keys []string
	for _, tg := range got {
		keys = append(keys, string(tg.Kind)+":"+tg.Endpoint)
	}
	want := "udp:1.1.1.1 udp:8.8.8.8 doh:https://dns.example/dns-query custom:8.8.8.8 system:system"
	if strings.Join(keys, " ") != want {
		t.Fatalf("want %q, got %q", want, strings.Join(keys, " "))
	}
}

func TestDNSCheck_QuorumBelowHalfIsIncomplete(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{"1.1.1.1": ok(10, "1.2.3.4")}}
	// 1.1.1.1, 8.8.8.8, 9.9.9.9 and system: one success of four
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{
		Strategy:  domain.StrategyQuorum,
		Resolvers: resolvers("1.1.1.1", "8.8.8.8", "9.9.9.9"),
	}), domain.OrgSettings{})
	if out.Status != domain.StatusFailure || out.ErrorCode != domain.CodePropagationIncomplete {
		t.Fatalf("want failure/PROPAGATION_INCOMPLETE, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestDNSCheck_AllWithOneTimeoutIsIncomplete(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{
		"1.1.1.1": ok(10, "1.2.3.4"),
		"system":  ok(12, "1.2.3.4"),
	}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{
		Strategy:  domain.StrategyAll,
		Resolvers: resolvers("1.1.1.1", "8.8.8.8"),
	}), domain.OrgSettings{})
	if out.Status != domain.StatusFailure || out.ErrorCode != domain.CodePropagationIncomplete {
		t.Fatalf("want failure/PROPAGATION_INCOMPLETE, got %s/%s", out.Status, out.ErrorCode)
	}
	if out.Metadata.DNS == nil || out.Metadata.DNS.Total != 3 || out.Metadata.DNS.SuccessCount != 2 {
		t.Fatalf("unexpected metadata %+v", out.Metadata.DNS)
	}
}

func TestDNSCheck_AllAgreeingIsSuccess(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{
		"1.1.1.1": ok(30, "1.2.3.4", "5.6.7.8"),
		"system":  ok(12, "5.6.7.8", "1.2.3.4"),
	}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{
		Strategy:  domain.StrategyAll,
		Resolvers: resolvers("1.1.1.1"),
	}), domain.OrgSettings{})
	if out.Status != domain.StatusSuccess || out.ErrorCode != "" {
		t.Fatalf("want success, got %s/%s %s", out.Status, out.ErrorCode, out.ErrorMessage)
	}
	if out.ResponseTimeMS != 12 {
		t.Fatalf("want fastest success latency 12, got %f", out.ResponseTimeMS)
	}
	if out.Metadata.DNS.MajorityCount != 2 {
		t.Fatalf("answer order should not split groups, got %+v", out.Metadata.DNS)
	}
}

func TestDNSCheck_AllDisagreeingIsMismatch(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{
		"1.1.1.1": ok(10, "1.2.3.4"),
		"system":  ok(10, "9.9.9.9"),
	}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{Strategy: domain.StrategyAll, Resolvers: resolvers("1.1.1.1")}), domain.OrgSettings{})
	if out.Status != domain.StatusDegraded || out.ErrorCode != domain.CodePropagationMismatch {
		t.Fatalf("want degraded/PROPAGATION_MISMATCH, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestDNSCheck_QuorumWithoutConsensusIsDegraded(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{
		"1.1.1.1": ok(10, "1.1.1.1"),
		"8.8.8.8": ok(10, "2.2.2.2"),
		"9.9.9.9": ok(10, "3.3.3.3"),
		"system":  ok(10, "4.4.4.4"),
	}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{
		Strategy:  domain.StrategyQuorum,
		Resolvers: resolvers("1.1.1.1", "8.8.8.8", "9.9.9.9"),
	}), domain.OrgSettings{})
	if out.Status != domain.StatusDegraded || out.ErrorCode != domain.CodePropagationMismatch {
		t.Fatalf("want degraded/PROPAGATION_MISMATCH, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestDNSCheck_TieGoesToFirstTarget(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{
		"1.1.1.1": ok(10, "10.0.0.1"),
		"8.8.8.8": ok(10, "10.0.0.2"),
		"9.9.9.9": ok(10, "10.0.0.2"),
		"system":  ok(10, "10.0.0.1"),
	}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{
		Strategy:  domain.StrategyQuorum,
		Resolvers: resolvers("1.1.1.1", "8.8.8.8", "9.9.9.9"),
	}), domain.OrgSettings{})
	if out.Status != domain.StatusSuccess {
		t.Fatalf("want success, got %s %s", out.Status, out.ErrorMessage)
	}
	if got := out.Metadata.DNS.MajorityAnswer; len(got) != 1 || got[0] != "10.0.0.1" {
		t.Fatalf("want tie broken toward first target, got %v", got)
	}
}

func TestDNSCheck_AnyAllTimedOut(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{Resolvers: resolvers("1.1.1.1")}), domain.OrgSettings{})
	if out.Status != domain.StatusTimeout || out.ErrorCode != domain.CodeTimeout {
		t.Fatalf("want timeout/TIMEOUT, got %s/%s", out.Status, out.ErrorCode)
	}
	if out.ResponseTimeMS != 5000 {
		t.Fatalf("want min attempt latency when nothing succeeded, got %f", out.ResponseTimeMS)
	}
}

func TestDNSCheck_AnyNoSuccessUsesFirstFailureCode(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{
		"1.1.1.1": {Result: probe.Result{Status: domain.StatusFailure, ErrorCode: domain.CodeNoRecords, Message: "NXDOMAIN"}},
	}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{Resolvers: resolvers("1.1.1.1")}), domain.OrgSettings{})
	if out.Status != domain.StatusFailure || out.ErrorCode != domain.CodeNoRecords {
		t.Fatalf("want failure/NO_RECORDS, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestDNSCheck_LayersStepDownOnceEach(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{
		"1.1.1.1": ok(10, "1.2.3.4"),
		"system":  ok(10, "1.2.3.4"),
	}}
	cfg := domain.DNSConfig{
		Resolvers:     []domain.ResolverSpec{{Address: "1.1.1.1", Region: "eu"}},
		ExpectedValue: "5.6.7.8",
	}
	out := c.Check(context.Background(), dnsMonitor(cfg), domain.OrgSettings{})
	if out.Status != domain.StatusDegraded || out.ErrorCode != domain.CodeExpectedValueMismatch {
		t.Fatalf("want degraded/EXPECTED_VALUE_MISMATCH, got %s/%s", out.Status, out.ErrorCode)
	}

	cfg.RequiredRegions = []string{"eu", "us"}
	out = c.Check(context.Background(), dnsMonitor(cfg), domain.OrgSettings{})
	if out.Status != domain.StatusFailure {
		t.Fatalf("want two failing layers to reach failure, got %s", out.Status)
	}
	if out.ErrorCode != domain.CodeExpectedValueMismatch {
		t.Fatalf("want first code kept, got %s", out.ErrorCode)
	}
	if !strings.Contains(out.ErrorMessage, "; ") || !strings.Contains(out.ErrorMessage, "us") {
		t.Fatalf("want both issues joined, got %q", out.ErrorMessage)
	}
}

func TestDNSCheck_LayersSkippedOnFailure(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{"system": ok(10, "1.2.3.4")}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{
		Strategy:      domain.StrategyAll,
		Resolvers:     resolvers("1.1.1.1"),
		ExpectedValue: "nope",
	}), domain.OrgSettings{})
	if out.ErrorCode != domain.CodePropagationIncomplete || strings.Contains(out.ErrorMessage, "nope") {
		t.Fatalf("want layers skipped after failure, got %s %q", out.ErrorCode, out.ErrorMessage)
	}
}

func TestDNSCheck_RequireDoHAndDNSSEC(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{"system": ok(10, "1.2.3.4")}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{
		RequireDNSSEC: true,
		RequireDoH:    true,
	}), domain.OrgSettings{})
	if out.Status != domain.StatusFailure || out.ErrorCode != domain.CodeDNSSECFailed {
		t.Fatalf("want failure/DNSSEC_VALIDATION_FAILED, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestDNSCheck_InvalidRecordType(t *testing.T) {
	c := &DNSChecker{Driver: fakeResolvers{}}
	out := c.Check(context.Background(), dnsMonitor(domain.DNSConfig{RecordType: "HINFO"}), domain.OrgSettings{})
	if out.Status != domain.StatusError || out.ErrorCode != domain.CodeValidation {
		t.Fatalf("want error/VALIDATION_ERROR, got %s/%s", out.Status, out.ErrorCode)
	}
}
