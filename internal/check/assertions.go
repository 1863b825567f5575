package check

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

func assertionFindings(asserts []domain.Assertion, resp probe.HTTPResponse) []finding {
	var out []finding
	for _, a := range asserts {
		if msg, ok := evaluate(a, resp); !ok {
			out = append(out, finding{domain.StatusFailure, domain.CodeAssertionFailed, msg})
		}
	}
	return out
}

// evaluate checks one assertion and returns a description when it fails.
func evaluate(a domain.Assertion, resp probe.HTTPResponse) (string, bool) {
	var actual string
	exists := true
	switch strings.ToLower(a.Source) {
	case "status", "status_code":
		actual = strconv.Itoa(resp.StatusCode)
	case "header":
		vals := resp.Headers.Values(a.Property)
		exists = len(vals) > 0
		actual = strings.Join(vals, ", ")
	case "body":
		actual = string(resp.Body)
	case "json":
		if !gjson.ValidBytes(resp.Body) {
			return fmt.Sprintf("json %s: body is not valid JSON", a.Property), false
		}
		r := gjson.GetBytes(resp.Body, a.Property)
		exists = r.Exists()
		actual = r.String()
	case "response_time":
		actual = strconv.FormatFloat(resp.LatencyMS, 'f', -1, 64)
	default:
		return fmt.Sprintf("unknown assertion source %q", a.Source), false
	}

	subject := a.Source
	if a.Property != "" {
		subject += " " + a.Property
	}

	switch strings.ToLower(a.Operator) {
	case "equals", "eq":
		if exists && actual == a.Value {
			return "", true
		}
		return fmt.Sprintf("%s: want %q, got %q", subject, a.Value, actual), false
	case "not_equals", "ne":
		if actual != a.Value {
			return "", true
		}
		return fmt.Sprintf("%s: want anything but %q", subject, a.Value), false
	case "contains":
		if exists && strings.Contains(actual, a.Value) {
			return "", true
		}
		return fmt.Sprintf("%s: does not contain %q", subject, a.Value), false
	case "not_contains":
		if !strings.Contains(actual, a.Value) {
			return "", true
		}
		return fmt.Sprintf("%s: contains %q", subject, a.Value), false
	case "exists":
		if exists {
			return "", true
		}
		return fmt.Sprintf("%s: missing", subject), false
	case "lt", "gt":
		got, err1 := strconv.ParseFloat(strings.TrimSpace(actual), 64)
		want, err2 := strconv.ParseFloat(strings.TrimSpace(a.Value), 64)
		if !exists || err1 != nil || err2 != nil {
			return fmt.Sprintf("%s: cannot compare %q with %q numerically", subject, actual, a.Value), false
		}
		if (a.Operator == "lt" && got < want) || (a.Operator == "gt" && got > want) {
			return "", true
		}
		return fmt.Sprintf("%s: %g is not %s %g", subject, got, a.Operator, want), false
	}
	return fmt.Sprintf("unknown assertion operator %q", a.Operator), false
}
