package check

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

// runFlow executes steps in order. Values extracted from one step are
// available to later steps as {{name}}; the flow stops at the first failure.
func (c *HTTPChecker) runFlow(ctx context.Context, m domain.Monitor, steps []domain.FlowStep, seed map[string]string) ([]finding, []domain.FlowStepOutcome) {
	vars := make(map[string]string, len(seed))
	for k, v := range seed {
		vars[k] = v
	}
	outcomes := make([]domain.FlowStepOutcome, 0, len(steps))
	for i, s := range steps {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("step %d", i+1)
		}
		method := s.Method
		if method == "" {
			method = http.MethodGet
		}
		resp := c.Driver.Do(ctx, probe.HTTPRequest{
			Method:  method,
			URL:     expand(s.URL, vars),
			Headers: expandMap(s.Headers, vars),
			Body:    expand(s.Body, vars),
		}, m.Timeout())

		o := domain.FlowStepOutcome{Name: name, StatusCode: resp.StatusCode, LatencyMS: resp.LatencyMS}
		fail := func(msg string) ([]finding, []domain.FlowStepOutcome) {
			o.Error = msg
			outcomes = append(outcomes, o)
			return []finding{{domain.StatusFailure, domain.CodeAPIFlowFailed, fmt.Sprintf("flow %s: %s", name, msg)}}, outcomes
		}

		if !resp.OK() {
			return fail(resp.Message)
		}
		if s.ExpectedStatus > 0 && resp.StatusCode != s.ExpectedStatus {
			return fail(fmt.Sprintf("status %d, want %d", resp.StatusCode, s.ExpectedStatus))
		}
		if s.ExpectedStatus == 0 && (resp.StatusCode < 200 || resp.StatusCode >= 400) {
			return fail(fmt.Sprintf("unexpected status %d", resp.StatusCode))
		}
		for key, path := range s.Extract {
			r := gjson.GetBytes(resp.Body, path)
			if !r.Exists() {
				return fail(fmt.Sprintf("extract %s: %s not found", key, path))
			}
			vars[key] = r.String()
		}
		outcomes = append(outcomes, o)
	}
	return nil, outcomes
}
