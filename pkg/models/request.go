package models

import "time"

// RequestBody is the observed representation of an outbound request body:
// either raw byte parts or decoded form fields, never both.
type RequestBody struct {
	RawParts [][]byte            `json:"-"`
	FormData map[string][]string `json:"form_data,omitempty"`
}

// RequestEvent is one outgoing network request as observed by the
// browser-side shim.
type RequestEvent struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Initiator string            `json:"initiator,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      *RequestBody      `json:"body,omitempty"`
	TabID     int               `json:"tab_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// IsWebSocket reports whether the request opens a WebSocket connection.
func (e *RequestEvent) IsWebSocket() bool {
	if e == nil {
		return false
	}
	return len(e.URL) >= 5 && (e.URL[:5] == "ws://" || (len(e.URL) >= 6 && e.URL[:6] == "wss://"))
}
