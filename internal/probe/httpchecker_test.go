package probe

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

func TestHTTPDriver_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	out := NewHTTPDriver().Do(context.Background(), HTTPRequest{URL: s.URL}, 2*time.Second)
	if !out.OK() {
		t.Fatalf("want success, got %+v", out)
	}
	if out.StatusCode != 200 {
		t.Fatalf("want status 200, got %d", out.StatusCode)
	}
	if string(out.Body) != "ok" || out.Headers.Get("X-Test") != "yes" {
		t.Fatalf("want body and headers captured, got %q %v", out.Body, out.Headers)
	}
	if out.LatencyMS < 0 {
		t.Fatalf("latency should be >= 0, got %f", out.LatencyMS)
	}
}

func TestHTTPDriver_Status500IsStillCompleted(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	out := NewHTTPDriver().Do(context.Background(), HTTPRequest{URL: s.URL}, 2*time.Second)
	if out.Status != domain.StatusSuccess {
		t.Fatalf("want completed response to be success at driver level, got %s", out.Status)
	}
	if out.StatusCode != 500 {
		t.Fatalf("want status 500, got %d", out.StatusCode)
	}
}

func TestHTTPDriver_SendsMethodHeadersBody(t *testing.T) {
	var gotMethod, gotHeader, gotBody string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotHeader = r.Header.Get("X-Api-Key")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
	}))
	defer s.Close()

	NewHTTPDriver().Do(context.Background(), HTTPRequest{
		Method:  "post",
		URL:     s.URL,
		Headers: map[string]string{"X-Api-Key": "k1"},
		Body:    `{"a":1}`,
	}, 2*time.Second)
	if gotMethod != http.MethodPost || gotHeader != "k1" || gotBody != `{"a":1}` {
		t.Fatalf("request not forwarded: %s %s %s", gotMethod, gotHeader, gotBody)
	}
}

func TestHTTPDriver_Timeout(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	out := NewHTTPDriver().Do(context.Background(), HTTPRequest{URL: s.URL}, 50*time.Millisecond)
	if out.Status != domain.StatusTimeout || out.ErrorCode != domain.CodeTimeout {
		t.Fatalf("want timeout/TIMEOUT, got %s/%s", out.Status, out.ErrorCode)
	}
	if out.StatusCode != 0 {
		t.Fatalf("want status 0 on timeout, got %d", out.StatusCode)
	}
}

func TestHTTPDriver_TransportError(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := s.URL
	s.Close()

	out := NewHTTPDriver().Do(context.Background(), HTTPRequest{URL: url}, time.Second)
	if out.Status != domain.StatusError || out.ErrorCode != domain.CodeHTTPError {
		t.Fatalf("want error/HTTP_ERROR, got %s/%s", out.Status, out.ErrorCode)
	}
	if out.Message == "" {
		t.Fatal("want non-empty error message")
	}
}

func TestHTTPDriver_BodyLimit(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 100)))
	}))
	defer s.Close()

	d := NewHTTPDriver()
	d.MaxBodyBytes = 10
	out := d.Do(context.Background(), HTTPRequest{URL: s.URL}, time.Second)
	if len(out.Body) != 10 {
		t.Fatalf("want body truncated to 10 bytes, got %d", len(out.Body))
	}
}
