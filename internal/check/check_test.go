package check

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

func promValue(t *testing.T, value string) string {
	t.Helper()
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"success","data":{"resultType":"vector","result":[{"metric":{},"value":[1700000000,%q]}]}}`, value)
	}))
	t.Cleanup(s.Close)
	return s.URL
}

func promMonitor(url, cmp string, threshold float64, degraded *float64) domain.Monitor {
	return domain.Monitor{ID: "p1", Protocol: domain.ProtocolPromQL, Target: url, Config: domain.ProtocolConfig{PromQL: &domain.PromQLConfig{
		ServerURL: url, Query: "error_ratio", Comparator: cmp, Threshold: threshold, DegradedThreshold: degraded,
	}}}
}

func TestOrchestrator_PromQLThresholds(t *testing.T) {
	warn := 0.05
	cases := []struct {
		name  string
		value string
		cmp   string
		want  domain.Status
		code  domain.ErrorCode
	}{
		{"below both", "0.01", "", domain.StatusSuccess, ""},
		{"degraded band", "0.07", "gt", domain.StatusDegraded, domain.CodeThresholdBreached},
		{"breached", "0.2", ">", domain.StatusFailure, domain.CodeThresholdBreached},
	}
	o := NewOrchestrator(nil, probe.RetryPolicy{}, nil)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			url := promValue(t, tc.value)
			out := o.Run(context.Background(), promMonitor(url, tc.cmp, 0.1, &warn), domain.OrgSettings{})
			if out.Status != tc.want || out.ErrorCode != tc.code {
				t.Fatalf("want %s/%q, got %s/%q (%s)", tc.want, tc.code, out.Status, out.ErrorCode, out.ErrorMessage)
			}
			if out.Metadata.PromQL == nil || out.Metadata.PromQL.Query != "error_ratio" {
				t.Fatalf("want promql metadata, got %+v", out.Metadata)
			}
		})
	}
}

func TestOrchestrator_PromQLLowerIsWorse(t *testing.T) {
	url := promValue(t, "0.98")
	o := NewOrchestrator(nil, probe.RetryPolicy{}, nil)
	out := o.Run(context.Background(), promMonitor(url, "lt", 0.99, nil), domain.OrgSettings{})
	if out.Status != domain.StatusFailure {
		t.Fatalf("want failure, got %s", out.Status)
	}
	if !strings.Contains(out.ErrorMessage, "<") {
		t.Fatalf("want comparator in message, got %q", out.ErrorMessage)
	}
}

func TestOrchestrator_PromQLBadComparator(t *testing.T) {
	url := promValue(t, "1")
	o := NewOrchestrator(nil, probe.RetryPolicy{}, nil)
	out := o.Run(context.Background(), promMonitor(url, "between", 1, nil), domain.OrgSettings{})
	if out.Status != domain.StatusError || out.ErrorCode != domain.CodeValidation {
		t.Fatalf("want error/VALIDATION_ERROR, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestOrchestrator_UnsupportedProtocol(t *testing.T) {
	o := NewOrchestrator(nil, probe.RetryPolicy{}, nil)
	out := o.Run(context.Background(), domain.Monitor{ID: "x", Protocol: "smtp", Target: "mx.example.com"}, domain.OrgSettings{})
	if out.Status != domain.StatusError || out.ErrorCode != domain.CodeValidation {
		t.Fatalf("want error/VALIDATION_ERROR, got %s/%s", out.Status, out.ErrorCode)
	}
}

func TestOrchestrator_MissingConfigIsValidationError(t *testing.T) {
	o := NewOrchestrator(nil, probe.RetryPolicy{}, nil)
	for _, p := range []domain.Protocol{domain.ProtocolBlackbox, domain.ProtocolPromQL} {
		out := o.Run(context.Background(), domain.Monitor{ID: "x", Protocol: p, Target: "https://example.com"}, domain.OrgSettings{})
		if out.ErrorCode != domain.CodeValidation {
			t.Fatalf("%s: want VALIDATION_ERROR, got %s", p, out.ErrorCode)
		}
	}
}

func TestOrchestrator_BlackboxCarriesStatusCode(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "probe_success 1\nprobe_duration_seconds 0.1\nprobe_http_status_code 204\n")
	}))
	defer s.Close()
	o := NewOrchestrator(nil, probe.RetryPolicy{}, nil)
	out := o.Run(context.Background(), domain.Monitor{ID: "b", Protocol: domain.ProtocolBlackbox, Target: "https://example.com",
		Config: domain.ProtocolConfig{Blackbox: &domain.BlackboxConfig{ExporterURL: s.URL, Module: "http_2xx"}}}, domain.OrgSettings{})
	if out.Status != domain.StatusSuccess || out.StatusCode == nil || *out.StatusCode != 204 {
		t.Fatalf("unexpected outcome %+v", out)
	}
}

func TestHostOf(t *testing.T) {
	cases := map[string]string{
		"https://db.example.com:8443/health": "db.example.com",
		"db.example.com:3389":                "db.example.com",
		"db.example.com":                     "db.example.com",
		"db.example.com/path":                "db.example.com",
		" 10.0.0.5 ":                         "10.0.0.5",
		"[2001:db8::1]:22":                   "2001:db8::1",
	}
	for in, want := range cases {
		if got := hostOf(in); got != want {
			t.Fatalf("hostOf(%q): want %q, got %q", in, want, got)
		}
	}
}

func TestVerdict_ApplyNeverImproves(t *testing.T) {
	out := Outcome{Status: domain.StatusFailure, ErrorCode: domain.CodeUnexpectedStatus, ErrorMessage: "unexpected status 500"}
	v := newVerdict()
	v.downgrade(domain.StatusDegraded, domain.CodeCachePolicy, "ETag header missing")
	v.apply(&out)
	if out.Status != domain.StatusFailure || out.ErrorCode != domain.CodeUnexpectedStatus {
		t.Fatalf("want failure/UNEXPECTED_STATUS kept, got %s/%s", out.Status, out.ErrorCode)
	}
	if out.ErrorMessage != "unexpected status 500; ETag header missing" {
		t.Fatalf("unexpected message %q", out.ErrorMessage)
	}
}
