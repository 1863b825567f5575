package check

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

func cacheFindings(p *domain.CachePolicy, h http.Header) []finding {
	if p == nil {
		return nil
	}
	var out []finding
	bad := func(msg string) {
		out = append(out, finding{domain.StatusDegraded, domain.CodeCachePolicy, msg})
	}
	cc := strings.ToLower(h.Get("Cache-Control"))
	directives := map[string]string{}
	for _, part := range strings.Split(cc, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		directives[k] = strings.Trim(v, `"`)
	}

	if p.RequireCacheControl && cc == "" {
		bad("Cache-Control header missing")
	}
	if _, ok := directives["no-store"]; ok && p.ForbidNoStore {
		bad("Cache-Control forbids storing (no-store)")
	}
	if p.MinMaxAgeSeconds > 0 || p.MaxMaxAgeSeconds > 0 {
		raw, ok := directives["max-age"]
		age, err := strconv.Atoi(raw)
		switch {
		case !ok || err != nil:
			bad("Cache-Control max-age missing")
		case p.MinMaxAgeSeconds > 0 && age < p.MinMaxAgeSeconds:
			bad(fmt.Sprintf("max-age %d below minimum %d", age, p.MinMaxAgeSeconds))
		case p.MaxMaxAgeSeconds > 0 && age > p.MaxMaxAgeSeconds:
			bad(fmt.Sprintf("max-age %d above maximum %d", age, p.MaxMaxAgeSeconds))
		}
	}
	if p.RequireETag && h.Get("ETag") == "" {
		bad("ETag header missing")
	}
	return out
}

func sizeFindings(p *domain.SizePolicy, resp probe.HTTPResponse) []finding {
	if p == nil {
		return nil
	}
	size := int64(len(resp.Body))
	// the buffered body is capped; trust a larger declared length
	if cl, err := strconv.ParseInt(resp.Headers.Get("Content-Length"), 10, 64); err == nil && cl > size {
		size = cl
	}
	switch {
	case p.MinBytes > 0 && size < p.MinBytes:
		return []finding{{domain.StatusDegraded, domain.CodeResponseSize, fmt.Sprintf("response is %d bytes, minimum %d", size, p.MinBytes)}}
	case p.MaxBytes > 0 && size > p.MaxBytes:
		return []finding{{domain.StatusDegraded, domain.CodeResponseSize, fmt.Sprintf("response is %d bytes, maximum %d", size, p.MaxBytes)}}
	}
	return nil
}

var defaultSecurityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Content-Type-Options",
	"X-Frame-Options",
	"Referrer-Policy",
}

func securityFindings(p *domain.SecurityHeaders, h http.Header) []finding {
	if p == nil {
		return nil
	}
	required := p.Required
	if len(required) == 0 {
		required = defaultSecurityHeaders
	}
	var missing []string
	for _, name := range required {
		if h.Get(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return []finding{{domain.StatusDegraded, domain.CodeSecurityHeaders, "missing security headers: " + strings.Join(missing, ", ")}}
}

func contractFindings(c *domain.JSONContract, body []byte) []finding {
	if c == nil {
		return nil
	}
	if !gjson.ValidBytes(body) {
		return []finding{{domain.StatusFailure, domain.CodeContractViolation, "response body is not valid JSON"}}
	}
	var problems []string
	for _, f := range c.Fields {
		r := gjson.GetBytes(body, f.Path)
		if !r.Exists() {
			problems = append(problems, f.Path+" missing")
			continue
		}
		if f.Type != "" && jsonType(r) != strings.ToLower(f.Type) {
			problems = append(problems, fmt.Sprintf("%s is %s, want %s", f.Path, jsonType(r), f.Type))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return []finding{{domain.StatusFailure, domain.CodeContractViolation, "contract: " + strings.Join(problems, ", ")}}
}

func jsonType(r gjson.Result) string {
	switch r.Type {
	case gjson.String:
		return "string"
	case gjson.Number:
		return "number"
	case gjson.True, gjson.False:
		return "boolean"
	case gjson.Null:
		return "null"
	case gjson.JSON:
		if r.IsArray() {
			return "array"
		}
		return "object"
	}
	return "unknown"
}
