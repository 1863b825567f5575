package check

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hamed0406/pulsewatch/internal/domain"
	"github.com/hamed0406/pulsewatch/internal/probe"
)

const introspectionQuery = `{ __schema { queryType { name } } }`

func (c *HTTPChecker) graphQL(ctx context.Context, m domain.Monitor, q domain.GraphQLCheck, headers map[string]string) ([]finding, *domain.GraphQLDiagnostics) {
	endpoint := q.Endpoint
	if endpoint == "" {
		endpoint = m.Target
	}
	diag := &domain.GraphQLDiagnostics{}
	var out []finding

	if q.Query != "" {
		ok, msg := c.graphQLOperation(ctx, endpoint, q.Query, q.Variables, headers, m.Timeout())
		diag.QueryOK = &ok
		if !ok {
			out = append(out, finding{domain.StatusFailure, domain.CodeGraphQLFailed, "graphql query: " + msg})
		}
	}
	if q.Mutation != "" {
		ok, msg := c.graphQLOperation(ctx, endpoint, q.Mutation, q.Variables, headers, m.Timeout())
		diag.MutationOK = &ok
		if !ok {
			out = append(out, finding{domain.StatusFailure, domain.CodeGraphQLFailed, "graphql mutation: " + msg})
		}
	}
	if q.ExpectIntrospection != nil {
		resp := c.postGraphQL(ctx, endpoint, introspectionQuery, nil, headers, m.Timeout())
		enabled := resp.OK() && resp.StatusCode == http.StatusOK && gjson.GetBytes(resp.Body, "data.__schema").Exists()
		diag.IntrospectionEnabled = &enabled
		if enabled != *q.ExpectIntrospection {
			out = append(out, finding{domain.StatusDegraded, domain.CodeIntrospection,
				fmt.Sprintf("graphql introspection enabled=%t, expected %t", enabled, *q.ExpectIntrospection)})
		}
	}
	return out, diag
}

func (c *HTTPChecker) graphQLOperation(ctx context.Context, endpoint, query string, vars map[string]any, headers map[string]string, timeout time.Duration) (bool, string) {
	resp := c.postGraphQL(ctx, endpoint, query, vars, headers, timeout)
	if !resp.OK() {
		return false, resp.Message
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Sprintf("status %d", resp.StatusCode)
	}
	if errs := gjson.GetBytes(resp.Body, "errors"); errs.IsArray() && len(errs.Array()) > 0 {
		return false, errs.Array()[0].Get("message").String()
	}
	if !gjson.GetBytes(resp.Body, "data").Exists() {
		return false, "response has no data"
	}
	return true, ""
}

func (c *HTTPChecker) postGraphQL(ctx context.Context, endpoint, query string, vars map[string]any, headers map[string]string, timeout time.Duration) probe.HTTPResponse {
	body, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return probe.HTTPResponse{Result: probe.Result{Status: domain.StatusError, ErrorCode: domain.CodeValidation, Message: err.Error()}}
	}
	h := map[string]string{"Content-Type": "application/json"}
	for k, v := range headers {
		h[k] = v
	}
	return c.Driver.Do(ctx, probe.HTTPRequest{Method: http.MethodPost, URL: endpoint, Headers: h, Body: string(body)}, timeout)
}
