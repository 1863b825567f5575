package httpapi

import (
	"testing"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func TestIsValidHTTPURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://example.com", true},
		{"http://EXAMPLE.com", true},
		{"ftp://x", false},
		{"", false},
		{"https://", false},
	}
	for _, c := range cases {
		if got := isValidHTTPURL(c.in); got != c.want {
			t.Fatalf("isValidHTTPURL(%q)=%v want %v", c.in, got, c.want)
		}
	}
}

func TestNormalizeHTTPURL(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"https://EXAMPLE.com/", "https://example.com"},
		{"http://example.com:80", "http://example.com"},
		{"https://example.com:443/", "https://example.com"},
		{"https://example.com/p/", "https://example.com/p/"},
	}
	for _, c := range cases {
		if got := normalizeHTTPURL(c.in); got != c.want {
			t.Fatalf("normalizeHTTPURL(%q)=%q want %q", c.in, got, c.want)
		}
	}
}

func TestValidateMonitor(t *testing.T) {
	cases := []struct {
		name string
		m    domain.Monitor
		ok   bool
	}{
		{"http ok", domain.Monitor{OrganizationID: "o", Name: "n", Protocol: domain.ProtocolHTTP, Target: " https://example.com "}, true},
		{"promql without target", domain.Monitor{OrganizationID: "o", Name: "n", Protocol: domain.ProtocolPromQL}, false},
		{"missing org", domain.Monitor{Name: "n", Protocol: domain.ProtocolPing, Target: "h"}, false},
		{"missing target", domain.Monitor{OrganizationID: "o", Name: "n", Protocol: domain.ProtocolBanner}, false},
		{"negative interval", domain.Monitor{OrganizationID: "o", Name: "n", Protocol: domain.ProtocolPing, Target: "h", IntervalSeconds: -1}, false},
	}
	for _, c := range cases {
		m := c.m
		if got := validateMonitor(&m) == ""; got != c.ok {
			t.Fatalf("%s: valid=%v want %v", c.name, got, c.ok)
		}
	}
}
