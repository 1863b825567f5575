package probe

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

const defaultMaxBody = 5 << 20

type HTTPRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    string
}

// HTTPResponse holds a completed response. Body is read exactly once by the
// driver; callers share the slice instead of re-reading the wire.
type HTTPResponse struct {
	Result
	StatusCode int
	Headers    http.Header
	Body       []byte
	FinalURL   string
}

type HTTPDriver struct {
	Client       *http.Client
	MaxBodyBytes int64
}

func NewHTTPDriver() *HTTPDriver {
	return &HTTPDriver{
		Client: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		MaxBodyBytes: defaultMaxBody,
	}
}

// Do issues one request bounded strictly by timeout. Any completed response
// is a success at this layer; status-code policy belongs to the caller.
func (h *HTTPDriver) Do(ctx context.Context, in HTTPRequest, timeout time.Duration) HTTPResponse {
	method := strings.ToUpper(in.Method)
	if method == "" {
		method = http.MethodGet
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	var body io.Reader
	if in.Body != "" {
		body = strings.NewReader(in.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, in.URL, body)
	if err != nil {
		return HTTPResponse{Result: Result{
			Status:    domain.StatusError,
			ErrorCode: domain.CodeValidation,
			Message:   err.Error(),
		}}
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", "pulsewatch/1.0")
	}

	resp, err := h.Client.Do(req)
	if err != nil {
		if timedOut(ctx, err) {
			return HTTPResponse{Result: timeoutResult(start, "http request")}
		}
		return HTTPResponse{Result: errorResult(start, domain.CodeHTTPError, err)}
	}
	defer resp.Body.Close()

	limit := h.MaxBodyBytes
	if limit <= 0 {
		limit = defaultMaxBody
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	latency := sinceMS(start)
	if err != nil {
		if timedOut(ctx, err) {
			return HTTPResponse{Result: timeoutResult(start, "http body read"), StatusCode: resp.StatusCode}
		}
		return HTTPResponse{
			Result:     Result{Status: domain.StatusError, LatencyMS: latency, ErrorCode: domain.CodeHTTPError, Message: fmt.Sprintf("read body: %v", err)},
			StatusCode: resp.StatusCode,
		}
	}

	return HTTPResponse{
		Result:     Result{Status: domain.StatusSuccess, LatencyMS: latency, Message: resp.Status},
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       b,
		FinalURL:   resp.Request.URL.String(),
	}
}
