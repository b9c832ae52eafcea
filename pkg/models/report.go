package models

import "time"

// ReportKind identifies the detector that produced a report.
type ReportKind string

const (
	KindCCServer          ReportKind = "CC_SERVER_DETECTED"
	KindDataExfiltration  ReportKind = "DATA_EXFILTRATION"
	KindRateLimitExceeded ReportKind = "RATE_LIMIT_EXCEEDED"
	KindCrossOriginAbuse  ReportKind = "CROSS_ORIGIN_ABUSE"
	KindDoHUsage          ReportKind = "DOH_USAGE"
	KindSuspiciousHeader  ReportKind = "SUSPICIOUS_HEADER"
	KindWebSocketAbuse    ReportKind = "WEBSOCKET_ABUSE"
	KindFingerprinting    ReportKind = "FINGERPRINTING"
	KindBehavioral        ReportKind = "BEHAVIORAL"
	KindRuleMatch         ReportKind = "RULE_MATCH"
)

// FingerprintTechnique names a specific fingerprinting vector.
type FingerprintTechnique string

const (
	TechniqueCanvas       FingerprintTechnique = "CANVAS_FINGERPRINTING"
	TechniqueCanvasText   FingerprintTechnique = "CANVAS_TEXT_FINGERPRINTING"
	TechniqueWebGL        FingerprintTechnique = "WEBGL_FINGERPRINTING"
	TechniqueWebGLGPU     FingerprintTechnique = "WEBGL_GPU_FINGERPRINTING"
	TechniqueAudio        FingerprintTechnique = "AUDIO_FINGERPRINTING"
	TechniqueFont         FingerprintTechnique = "FONT_FINGERPRINTING"
	TechniqueLocalStorage FingerprintTechnique = "LOCALSTORAGE_ABUSE"
	TechniqueStorageReads FingerprintTechnique = "LOCALSTORAGE_EXCESSIVE_READS"
	TechniqueNavigator    FingerprintTechnique = "NAVIGATOR_FINGERPRINTING"
	TechniqueScreen       FingerprintTechnique = "SCREEN_FINGERPRINTING"
	TechniqueBattery      FingerprintTechnique = "BATTERY_API_FINGERPRINTING"
)

// BehaviorKind names a page-level behavioral detection.
type BehaviorKind string

const (
	BehaviorImmediatePassword  BehaviorKind = "IMMEDIATE_PASSWORD_REQUEST"
	BehaviorRapidRedirects     BehaviorKind = "RAPID_REDIRECTS"
	BehaviorExternalFormSubmit BehaviorKind = "EXTERNAL_FORM_SUBMIT"
	BehaviorSuspiciousParams   BehaviorKind = "SUSPICIOUS_FORM_PARAMS"
	BehaviorSensitiveFocus     BehaviorKind = "IMMEDIATE_SENSITIVE_FOCUS"
	BehaviorClipboardAbuse     BehaviorKind = "CLIPBOARD_ABUSE"
	BehaviorExcessivePopups    BehaviorKind = "EXCESSIVE_POPUPS"
	BehaviorAutoSubmitForm     BehaviorKind = "AUTO_SUBMIT_FORM"
)

// Report is an immutable record emitted by a monitor on each positive
// detection. Exactly one Detail field is populated, selected by Kind.
type Report struct {
	Kind      ReportKind `json:"type"`
	Severity  Severity   `json:"severity"`
	URL       string     `json:"url,omitempty"`
	Domain    string     `json:"domain,omitempty"`
	Score     int        `json:"score"`
	Timestamp time.Time  `json:"timestamp"`

	CC          *CCDetail          `json:"cc,omitempty"`
	Exfil       *ExfilDetail       `json:"exfil,omitempty"`
	RateLimit   *RateLimitDetail   `json:"rate_limit,omitempty"`
	CrossOrigin *CrossOriginDetail `json:"cross_origin,omitempty"`
	DoH         *DoHDetail         `json:"doh,omitempty"`
	Header      *HeaderDetail      `json:"header,omitempty"`
	WebSocket   *WebSocketDetail   `json:"websocket,omitempty"`
	Fingerprint *FingerprintDetail `json:"fingerprint,omitempty"`
	Behavior    *BehaviorDetail    `json:"behavior,omitempty"`
	RuleMatch   *RuleMatchDetail   `json:"rule_match,omitempty"`
}

// CCDetail describes a Command-and-Control pattern match.
type CCDetail struct {
	Pattern string `json:"pattern,omitempty"`
	Port    int    `json:"port,omitempty"`
	Reason  string `json:"reason"`
}

// ExfilDetail describes a large outbound request body.
type ExfilDetail struct {
	Size       int64 `json:"size"`
	TotalBytes int64 `json:"total_bytes"`
}

// RateLimitDetail describes a per-domain request burst.
type RateLimitDetail struct {
	RequestCount int `json:"request_count"`
	Threshold    int `json:"threshold"`
}

// CrossOriginDetail describes cross-origin request volume.
type CrossOriginDetail struct {
	OriginDomain  string `json:"origin_domain"`
	TotalRequests int    `json:"total_requests"`
	UniqueDomains int    `json:"unique_domains"`
}

// DoHDetail describes DNS-over-HTTPS provider usage.
type DoHDetail struct {
	Provider string `json:"provider"`
	Count    int    `json:"count"`
}

// HeaderDetail describes a spoofing-prone request header.
type HeaderDetail struct {
	Header string `json:"header"`
}

// WebSocketDetail describes WebSocket connection volume or payload size.
type WebSocketDetail struct {
	Connections int   `json:"connections,omitempty"`
	SendSize    int64 `json:"send_size,omitempty"`
}

// FingerprintDetail describes one fingerprinting technique crossing its
// threshold.
type FingerprintDetail struct {
	Technique FingerprintTechnique `json:"technique"`
	Count     int                  `json:"count"`
	Property  string               `json:"property,omitempty"`
}

// BehaviorDetail describes a page-level behavioral detection.
type BehaviorDetail struct {
	Behavior    BehaviorKind `json:"behavior"`
	TimeDeltaMS int64        `json:"time_delta_ms,omitempty"`
	Count       int          `json:"count,omitempty"`
	FormAction  string       `json:"form_action,omitempty"`
	FormOrigin  string       `json:"form_origin,omitempty"`
	PageOrigin  string       `json:"page_origin,omitempty"`
	InputName   string       `json:"input_name,omitempty"`
	Keywords    []string     `json:"keywords,omitempty"`
}

// RuleMatchDetail carries a matched detection rule annotation.
type RuleMatchDetail struct {
	RuleID   string `json:"rule_id,omitempty"`
	RuleName string `json:"rule_name,omitempty"`
}

// BlacklistEntry is a blacklisted domain with its insertion context.
type BlacklistEntry struct {
	Domain  string    `json:"domain"`
	Reason  string    `json:"reason"`
	AddedAt time.Time `json:"added_at"`
}
