package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResultKind separates availability checks from auxiliary probes that must
// not count toward downtime.
type ResultKind string

const (
	KindAvailability            ResultKind = "availability"
	KindCertificateTransparency ResultKind = "certificate_transparency"
)

// CountsForAvailability reports whether the result participates in SLO math.
func (k ResultKind) CountsForAvailability() bool {
	return k == "" || k == KindAvailability
}

// CheckResult is the immutable record of one check execution. Only
// IncidentID may be set after creation.
type CheckResult struct {
	ID             string         `json:"id"`
	MonitorID      MonitorID      `json:"monitor_id"`
	OrganizationID OrganizationID `json:"organization_id"`
	Region         string         `json:"region,omitempty"`
	Kind           ResultKind     `json:"kind,omitempty"`
	Status         Status         `json:"status"`
	ResponseTimeMS float64        `json:"response_time_ms"`
	StatusCode     *int           `json:"status_code,omitempty"`
	ErrorCode      ErrorCode      `json:"error_code,omitempty"`
	ErrorMessage   string         `json:"error_message,omitempty"`
	Metadata       Metadata       `json:"metadata"`
	IncidentID     *string        `json:"incident_id,omitempty"`
	CheckedAt      time.Time      `json:"checked_at"`
}

// Metadata is the protocol-specific diagnostic payload of a result. Exactly
// one pointer matching Kind is set.
type Metadata struct {
	Kind     Protocol          `json:"kind,omitempty"`
	HTTP     *HTTPMetadata     `json:"http,omitempty"`
	DNS      *DNSMetadata      `json:"dns,omitempty"`
	Ping     *PingMetadata     `json:"ping,omitempty"`
	Banner   *BannerMetadata   `json:"banner,omitempty"`
	Blackbox *BlackboxMetadata `json:"blackbox,omitempty"`
	PromQL   *PromQLMetadata   `json:"promql,omitempty"`
}

// Encode serializes metadata for the persistence edge.
func (m Metadata) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// DecodeMetadata is the inverse of Metadata.Encode. Empty input yields the
// zero value.
func DecodeMetadata(b []byte) (Metadata, error) {
	var m Metadata
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return Metadata{}, fmt.Errorf("decode metadata: %w", err)
	}
	return m, nil
}

type HTTPMetadata struct {
	Method             string              `json:"method"`
	FinalURL           string              `json:"final_url,omitempty"`
	BodyBytes          int64               `json:"body_bytes"`
	Headers            map[string]string   `json:"headers,omitempty"`
	Issues             []string            `json:"issues,omitempty"`
	FlowSteps          []FlowStepOutcome   `json:"flow_steps,omitempty"`
	ScreenshotHash     string              `json:"screenshot_hash,omitempty"`
	PageSpeedScore     *float64            `json:"page_speed_score,omitempty"`
	PageSpeedAuditedAt *time.Time          `json:"page_speed_audited_at,omitempty"`
	CDN                *CDNComparison      `json:"cdn,omitempty"`
	GraphQL            *GraphQLDiagnostics `json:"graphql,omitempty"`
}

type FlowStepOutcome struct {
	Name       string  `json:"name"`
	StatusCode int     `json:"status_code,omitempty"`
	LatencyMS  float64 `json:"latency_ms"`
	Error      string  `json:"error,omitempty"`
}

type CDNComparison struct {
	EdgeStatus      int     `json:"edge_status"`
	OriginStatus    int     `json:"origin_status"`
	EdgeLatencyMS   float64 `json:"edge_latency_ms"`
	OriginLatencyMS float64 `json:"origin_latency_ms"`
}

type GraphQLDiagnostics struct {
	QueryOK              *bool `json:"query_ok,omitempty"`
	MutationOK           *bool `json:"mutation_ok,omitempty"`
	IntrospectionEnabled *bool `json:"introspection_enabled,omitempty"`
}

type DNSMetadata struct {
	RecordType     string            `json:"record_type"`
	Strategy       ResolverStrategy  `json:"strategy"`
	Resolvers      []ResolverOutcome `json:"resolvers"`
	MajorityAnswer []string          `json:"majority_answer,omitempty"`
	MajorityCount  int               `json:"majority_count"`
	SuccessCount   int               `json:"success_count"`
	Total          int               `json:"total"`
	Issues         []string          `json:"issues,omitempty"`
}

type ResolverOutcome struct {
	Kind           string    `json:"kind"`
	Endpoint       string    `json:"endpoint"`
	Region         string    `json:"region,omitempty"`
	Status         Status    `json:"status"`
	ErrorCode      ErrorCode `json:"error_code,omitempty"`
	LatencyMS      float64   `json:"latency_ms"`
	Answers        []string  `json:"answers,omitempty"`
	Authenticated  bool      `json:"authenticated,omitempty"`
	TLSFingerprint string    `json:"tls_fingerprint,omitempty"`
}

type PingMetadata struct {
	Sent        int     `json:"sent"`
	Received    int     `json:"received"`
	LossPercent float64 `json:"loss_percent"`
	MinMS       float64 `json:"min_ms"`
	AvgMS       float64 `json:"avg_ms"`
	MaxMS       float64 `json:"max_ms"`
	Method      string  `json:"method"`
}

type BannerMetadata struct {
	BytesReceived int    `json:"bytes_received"`
	HeaderByte    *byte  `json:"header_byte,omitempty"`
	TLS           bool   `json:"tls"`
	ResetAfter    bool   `json:"reset_after_data,omitempty"`
	Detail        string `json:"detail,omitempty"`
}

type BlackboxMetadata struct {
	Module          string  `json:"module"`
	ProbeSuccess    bool    `json:"probe_success"`
	DurationSeconds float64 `json:"duration_seconds"`
	HTTPStatusCode  int     `json:"http_status_code,omitempty"`
}

type PromQLMetadata struct {
	Query       string  `json:"query"`
	Value       float64 `json:"value"`
	SeriesCount int     `json:"series_count"`
	Range       bool    `json:"range"`
}
