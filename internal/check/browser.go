package check

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/pulsewatch/internal/domain"
)

type BrowserRequest struct {
	URL        string               `json:"url"`
	Steps      []domain.BrowserStep `json:"steps"`
	Screenshot bool                 `json:"screenshot"`
	TimeoutMS  int                  `json:"timeout_ms"`
}

type BrowserStepResult struct {
	Action string `json:"action"`
	OK     bool   `json:"ok"`
	Error  string `json:"error,omitempty"`
}

type BrowserReport struct {
	Steps      []BrowserStepResult `json:"steps"`
	Screenshot []byte              `json:"screenshot,omitempty"`
}

// BrowserRunner executes synthetic browser steps on an external automation
// service.
type BrowserRunner interface {
	Run(ctx context.Context, serviceURL string, req BrowserRequest) (BrowserReport, error)
}

// RemoteBrowser posts the step list to <serviceURL>/run.
type RemoteBrowser struct {
	Client *http.Client
}

func (r *RemoteBrowser) Run(ctx context.Context, serviceURL string, in BrowserRequest) (BrowserReport, error) {
	var rep BrowserReport
	body, err := json.Marshal(in)
	if err != nil {
		return rep, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(serviceURL, "/")+"/run", bytes.NewReader(body))
	if err != nil {
		return rep, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := r.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return rep, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return rep, fmt.Errorf("browser service status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 20<<20)).Decode(&rep); err != nil {
		return rep, fmt.Errorf("decode browser report: %w", err)
	}
	return rep, nil
}

func (c *HTTPChecker) browser(ctx context.Context, m domain.Monitor, b domain.BrowserCheck, settings domain.OrgSettings, prev *domain.HTTPMetadata) ([]finding, string) {
	var baseline string
	if prev != nil {
		baseline = prev.ScreenshotHash
	}
	if settings.BrowserServiceURL == "" || c.Browser == nil {
		return []finding{{domain.StatusDegraded, domain.CodeBrowserStepFailed, "browser checks configured but no browser service is set"}}, baseline
	}
	timeout := time.Duration(b.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rep, err := c.Browser.Run(ctx, settings.BrowserServiceURL, BrowserRequest{
		URL:        m.Target,
		Steps:      b.Steps,
		Screenshot: b.Screenshot,
		TimeoutMS:  int(timeout.Milliseconds()),
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return []finding{{domain.StatusFailure, domain.CodeBrowserStepFailed, "browser run timed out"}}, baseline
		}
		c.log().Warn("browser_run_error", zap.String("monitor_id", string(m.ID)), zap.Error(err))
		return []finding{{domain.StatusFailure, domain.CodeBrowserStepFailed, "browser run: " + err.Error()}}, baseline
	}

	var out []finding
	for i, s := range rep.Steps {
		if !s.OK {
			out = append(out, finding{domain.StatusFailure, domain.CodeBrowserStepFailed, fmt.Sprintf("browser step %d (%s): %s", i+1, s.Action, s.Error)})
			break
		}
	}
	if len(rep.Steps) < len(b.Steps) && len(out) == 0 {
		out = append(out, finding{domain.StatusFailure, domain.CodeBrowserStepFailed, fmt.Sprintf("browser ran %d of %d steps", len(rep.Steps), len(b.Steps))})
	}

	hash := baseline
	if b.Screenshot && len(rep.Screenshot) > 0 {
		sum := sha256.Sum256(rep.Screenshot)
		hash = hex.EncodeToString(sum[:])
		if baseline != "" && baseline != hash {
			out = append(out, finding{domain.StatusDegraded, domain.CodeVisualRegression, "screenshot differs from previous run"})
		}
	}
	return out, hash
}
