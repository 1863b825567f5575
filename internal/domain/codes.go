package domain

// ErrorCode is the machine-readable reason persisted with a check result.
type ErrorCode string

const (
	CodeTimeout    ErrorCode = "TIMEOUT"
	CodeValidation ErrorCode = "VALIDATION_ERROR"

	// transport / protocol
	CodeDNSError        ErrorCode = "DNS_ERROR"
	CodeHTTPError       ErrorCode = "HTTP_ERROR"
	CodePingError       ErrorCode = "PING_ERROR"
	CodeConnectionError ErrorCode = "CONNECTION_ERROR"
	CodeTLSError        ErrorCode = "TLS_ERROR"
	CodeBlackboxError   ErrorCode = "BLACKBOX_ERROR"
	CodePromQLError     ErrorCode = "PROMQL_ERROR"

	// semantic
	CodeNoRecords             ErrorCode = "NO_RECORDS"
	CodeExpectedValueMismatch ErrorCode = "EXPECTED_VALUE_MISMATCH"
	CodePropagationIncomplete ErrorCode = "PROPAGATION_INCOMPLETE"
	CodePropagationMismatch   ErrorCode = "PROPAGATION_MISMATCH"
	CodePropagationRegion     ErrorCode = "PROPAGATION_REGION_MISSING"
	CodeDNSSECFailed          ErrorCode = "DNSSEC_VALIDATION_FAILED"
	CodeDoHUnreachable        ErrorCode = "DOH_UNREACHABLE"
	CodeDoTUnreachable        ErrorCode = "DOT_UNREACHABLE"
	CodeUnexpectedStatus      ErrorCode = "UNEXPECTED_STATUS"
	CodeAssertionFailed       ErrorCode = "ASSERTION_FAILED"
	CodeCachePolicy           ErrorCode = "CACHE_POLICY_VIOLATION"
	CodeResponseSize          ErrorCode = "RESPONSE_SIZE_VIOLATION"
	CodeGraphQLFailed         ErrorCode = "GRAPHQL_CHECK_FAILED"
	CodeIntrospection         ErrorCode = "GRAPHQL_INTROSPECTION_MISMATCH"
	CodeAPIFlowFailed         ErrorCode = "API_FLOW_FAILED"
	CodeContractViolation     ErrorCode = "CONTRACT_VIOLATION"
	CodeBrowserStepFailed     ErrorCode = "BROWSER_STEP_FAILED"
	CodeVisualRegression      ErrorCode = "VISUAL_REGRESSION"
	CodeLowPerformance        ErrorCode = "LOW_PERFORMANCE_SCORE"
	CodeSecurityHeaders       ErrorCode = "MISSING_SECURITY_HEADERS"
	CodeCDNMismatch           ErrorCode = "CDN_STATUS_MISMATCH"
	CodeCDNSlow               ErrorCode = "CDN_SLOWER_THAN_ORIGIN"
	CodePacketLoss            ErrorCode = "PACKET_LOSS"
	CodeHostUnreachable       ErrorCode = "HOST_UNREACHABLE"
	CodeUnexpectedBanner      ErrorCode = "UNEXPECTED_BANNER"
	CodeNoResponse            ErrorCode = "NO_RESPONSE"
	CodeBlackboxFailed        ErrorCode = "BLACKBOX_PROBE_FAILED"
	CodeNoData                ErrorCode = "NO_DATA"
	CodeThresholdBreached     ErrorCode = "THRESHOLD_BREACHED"
)
