package domain

import "time"

type MonitorID string

type OrganizationID string

// Protocol selects the probe family used for a monitor.
type Protocol string

const (
	ProtocolHTTP     Protocol = "http"
	ProtocolDNS      Protocol = "dns"
	ProtocolPing     Protocol = "ping"
	ProtocolBanner   Protocol = "banner"
	ProtocolBlackbox Protocol = "blackbox"
	ProtocolPromQL   Protocol = "promql"
)

type Monitor struct {
	ID                 MonitorID      `json:"id" yaml:"id"`
	OrganizationID     OrganizationID `json:"organization_id" yaml:"organization_id"`
	Name               string         `json:"name" yaml:"name"`
	Protocol           Protocol       `json:"protocol" yaml:"protocol"`
	Target             string         `json:"target" yaml:"target"`
	IntervalSeconds    int            `json:"interval_seconds" yaml:"interval_seconds"`
	TimeoutMS          int            `json:"timeout_ms" yaml:"timeout_ms"`
	Regions            []string       `json:"regions,omitempty" yaml:"regions,omitempty"`
	Config             ProtocolConfig `json:"config" yaml:"config"`
	EscalationPolicyID string         `json:"escalation_policy_id,omitempty" yaml:"escalation_policy_id,omitempty"`
	Severity           Severity       `json:"severity,omitempty" yaml:"severity,omitempty"`
	Status             MonitorStatus  `json:"status" yaml:"status,omitempty"`
	Paused             bool           `json:"paused" yaml:"paused,omitempty"`
	LastCheckedAt      *time.Time     `json:"last_checked_at,omitempty" yaml:"-"`
	CreatedAt          time.Time      `json:"created_at" yaml:"-"`
}

// Interval returns the check interval, defaulting to one minute.
func (m Monitor) Interval() time.Duration {
	if m.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(m.IntervalSeconds) * time.Second
}

// Timeout returns the per-check timeout, defaulting to ten seconds.
func (m Monitor) Timeout() time.Duration {
	if m.TimeoutMS <= 0 {
		return 10 * time.Second
	}
	return time.Duration(m.TimeoutMS) * time.Millisecond
}

// Due reports whether the monitor should be checked at now.
func (m Monitor) Due(now time.Time) bool {
	if m.Paused {
		return false
	}
	if m.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*m.LastCheckedAt) >= m.Interval()
}

// ProtocolConfig carries exactly one protocol-specific block, matching
// Monitor.Protocol.
type ProtocolConfig struct {
	HTTP     *HTTPConfig     `json:"http,omitempty" yaml:"http,omitempty"`
	DNS      *DNSConfig      `json:"dns,omitempty" yaml:"dns,omitempty"`
	Ping     *PingConfig     `json:"ping,omitempty" yaml:"ping,omitempty"`
	Banner   *BannerConfig   `json:"banner,omitempty" yaml:"banner,omitempty"`
	Blackbox *BlackboxConfig `json:"blackbox,omitempty" yaml:"blackbox,omitempty"`
	PromQL   *PromQLConfig   `json:"promql,omitempty" yaml:"promql,omitempty"`
}

// ResolverStrategy decides how many resolvers must agree.
type ResolverStrategy string

const (
	StrategyAny    ResolverStrategy = "any"
	StrategyQuorum ResolverStrategy = "quorum"
	StrategyAll    ResolverStrategy = "all"
)

type ResolverSpec struct {
	Address string `json:"address" yaml:"address"`
	Region  string `json:"region,omitempty" yaml:"region,omitempty"`
}

type DNSConfig struct {
	RecordType       string           `json:"record_type" yaml:"record_type"`
	Strategy         ResolverStrategy `json:"strategy" yaml:"strategy"`
	Resolvers        []ResolverSpec   `json:"resolvers,omitempty" yaml:"resolvers,omitempty"`
	DoHEndpoints     []ResolverSpec   `json:"doh_endpoints,omitempty" yaml:"doh_endpoints,omitempty"`
	DoTEndpoints     []ResolverSpec   `json:"dot_endpoints,omitempty" yaml:"dot_endpoints,omitempty"`
	CustomNameserver string           `json:"custom_nameserver,omitempty" yaml:"custom_nameserver,omitempty"`
	ExpectedValue    string           `json:"expected_value,omitempty" yaml:"expected_value,omitempty"`
	RequiredRegions  []string         `json:"required_regions,omitempty" yaml:"required_regions,omitempty"`
	RequireDNSSEC    bool             `json:"require_dnssec,omitempty" yaml:"require_dnssec,omitempty"`
	RequireDoH       bool             `json:"require_doh,omitempty" yaml:"require_doh,omitempty"`
	RequireDoT       bool             `json:"require_dot,omitempty" yaml:"require_dot,omitempty"`
}

type HTTPConfig struct {
	Method              string            `json:"method,omitempty" yaml:"method,omitempty"`
	Headers             map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body                string            `json:"body,omitempty" yaml:"body,omitempty"`
	ExpectedStatusCodes []int             `json:"expected_status_codes,omitempty" yaml:"expected_status_codes,omitempty"`
	DegradedThresholdMS int               `json:"degraded_threshold_ms,omitempty" yaml:"degraded_threshold_ms,omitempty"`
	Assertions          []Assertion       `json:"assertions,omitempty" yaml:"assertions,omitempty"`
	CachePolicy         *CachePolicy      `json:"cache_policy,omitempty" yaml:"cache_policy,omitempty"`
	SizePolicy          *SizePolicy       `json:"size_policy,omitempty" yaml:"size_policy,omitempty"`
	GraphQL             *GraphQLCheck     `json:"graphql,omitempty" yaml:"graphql,omitempty"`
	Flow                []FlowStep        `json:"flow,omitempty" yaml:"flow,omitempty"`
	Contract            *JSONContract     `json:"contract,omitempty" yaml:"contract,omitempty"`
	Browser             *BrowserCheck     `json:"browser,omitempty" yaml:"browser,omitempty"`
	PageSpeed           *PageSpeedCheck   `json:"page_speed,omitempty" yaml:"page_speed,omitempty"`
	SecurityHeaders     *SecurityHeaders  `json:"security_headers,omitempty" yaml:"security_headers,omitempty"`
	CDN                 *CDNCheck         `json:"cdn,omitempty" yaml:"cdn,omitempty"`
}

// Assertion is a user-defined check against the primary response.
// Source is one of status, header, body, json; Operator one of
// equals, not_equals, contains, not_contains, exists, lt, gt.
type Assertion struct {
	Source   string `json:"source" yaml:"source"`
	Property string `json:"property,omitempty" yaml:"property,omitempty"`
	Operator string `json:"operator" yaml:"operator"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
}

type CachePolicy struct {
	RequireCacheControl bool `json:"require_cache_control,omitempty" yaml:"require_cache_control,omitempty"`
	MinMaxAgeSeconds    int  `json:"min_max_age_seconds,omitempty" yaml:"min_max_age_seconds,omitempty"`
	MaxMaxAgeSeconds    int  `json:"max_max_age_seconds,omitempty" yaml:"max_max_age_seconds,omitempty"`
	ForbidNoStore       bool `json:"forbid_no_store,omitempty" yaml:"forbid_no_store,omitempty"`
	RequireETag         bool `json:"require_etag,omitempty" yaml:"require_etag,omitempty"`
}

type SizePolicy struct {
	MinBytes int64 `json:"min_bytes,omitempty" yaml:"min_bytes,omitempty"`
	MaxBytes int64 `json:"max_bytes,omitempty" yaml:"max_bytes,omitempty"`
}

type GraphQLCheck struct {
	Endpoint            string         `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Query               string         `json:"query,omitempty" yaml:"query,omitempty"`
	Mutation            string         `json:"mutation,omitempty" yaml:"mutation,omitempty"`
	Variables           map[string]any `json:"variables,omitempty" yaml:"variables,omitempty"`
	ExpectIntrospection *bool          `json:"expect_introspection,omitempty" yaml:"expect_introspection,omitempty"`
}

// FlowStep is one request of a sequential API flow. Extract maps variable
// names to JSON paths read from this step's response body.
type FlowStep struct {
	Name           string            `json:"name" yaml:"name"`
	Method         string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL            string            `json:"url" yaml:"url"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body           string            `json:"body,omitempty" yaml:"body,omitempty"`
	ExpectedStatus int               `json:"expected_status,omitempty" yaml:"expected_status,omitempty"`
	Extract        map[string]string `json:"extract,omitempty" yaml:"extract,omitempty"`
}

type JSONContract struct {
	Fields []ContractField `json:"fields" yaml:"fields"`
}

// ContractField requires Path to exist; Type (string, number, boolean,
// object, array, null) is checked when set.
type ContractField struct {
	Path string `json:"path" yaml:"path"`
	Type string `json:"type,omitempty" yaml:"type,omitempty"`
}

type BrowserCheck struct {
	Steps      []BrowserStep `json:"steps" yaml:"steps"`
	Screenshot bool          `json:"screenshot,omitempty" yaml:"screenshot,omitempty"`
	TimeoutMS  int           `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
}

type BrowserStep struct {
	Action   string `json:"action" yaml:"action"`
	Selector string `json:"selector,omitempty" yaml:"selector,omitempty"`
	Value    string `json:"value,omitempty" yaml:"value,omitempty"`
}

type PageSpeedCheck struct {
	Strategy      string  `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	MinScore      float64 `json:"min_score,omitempty" yaml:"min_score,omitempty"`
	IntervalHours int     `json:"interval_hours,omitempty" yaml:"interval_hours,omitempty"`
}

// Interval returns how often the audit may run; 24h by default.
func (p PageSpeedCheck) Interval() time.Duration {
	if p.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(p.IntervalHours) * time.Hour
}

type SecurityHeaders struct {
	Required []string `json:"required,omitempty" yaml:"required,omitempty"`
}

type CDNCheck struct {
	OriginURL       string  `json:"origin_url" yaml:"origin_url"`
	MaxLatencyRatio float64 `json:"max_latency_ratio,omitempty" yaml:"max_latency_ratio,omitempty"`
}

type PingConfig struct {
	Count int `json:"count,omitempty" yaml:"count,omitempty"`
}

type BannerConfig struct {
	Port int  `json:"port,omitempty" yaml:"port,omitempty"`
	TLS  bool `json:"tls,omitempty" yaml:"tls,omitempty"`
}

type BlackboxConfig struct {
	ExporterURL string `json:"exporter_url" yaml:"exporter_url"`
	Module      string `json:"module" yaml:"module"`
}

type PromQLConfig struct {
	ServerURL         string   `json:"server_url" yaml:"server_url"`
	Query             string   `json:"query" yaml:"query"`
	RangeSeconds      int      `json:"range_seconds,omitempty" yaml:"range_seconds,omitempty"`
	StepSeconds       int      `json:"step_seconds,omitempty" yaml:"step_seconds,omitempty"`
	Comparator        string   `json:"comparator,omitempty" yaml:"comparator,omitempty"`
	Threshold         float64  `json:"threshold" yaml:"threshold"`
	DegradedThreshold *float64 `json:"degraded_threshold,omitempty" yaml:"degraded_threshold,omitempty"`
}

// OrgSettings are per-organization credentials read fresh for every check.
type OrgSettings struct {
	OrganizationID    OrganizationID    `json:"organization_id" yaml:"organization_id"`
	DoHToken          string            `json:"doh_token,omitempty" yaml:"doh_token,omitempty"`
	PromQLToken       string            `json:"promql_token,omitempty" yaml:"promql_token,omitempty"`
	PageSpeedAPIKey   string            `json:"page_speed_api_key,omitempty" yaml:"page_speed_api_key,omitempty"`
	BrowserServiceURL string            `json:"browser_service_url,omitempty" yaml:"browser_service_url,omitempty"`
	Credentials       map[string]string `json:"credentials,omitempty" yaml:"credentials,omitempty"`
}
