// Package requestjson normalizes queued capture payloads into request
// events. Payloads arrive in the webRequest wire shape; the parser is
// tolerant of the field-name variants different capture agents emit.
package requestjson

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"phishguard/pkg/models"
)

// Parse converts one queued payload into a normalized RequestEvent.
// A payload without a URL is rejected; everything else degrades to
// zero values.
func Parse(data []byte) (models.RequestEvent, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.RequestEvent{}, fmt.Errorf("decode request payload: %w", err)
	}

	event := models.RequestEvent{
		URL:       getString(raw, "url"),
		Method:    getString(raw, "method"),
		Initiator: getString(raw, "initiator", "originUrl", "documentUrl"),
		TabID:     getInt(raw, "tabId", "tab_id"),
	}
	if event.URL == "" {
		return models.RequestEvent{}, fmt.Errorf("request payload has no url")
	}
	if event.Method == "" {
		event.Method = "GET"
	}

	// timeStamp is epoch milliseconds in the capture format.
	if ms := getFloat(raw, "timeStamp", "timestamp"); ms > 0 {
		event.Timestamp = time.UnixMilli(int64(ms)).UTC()
	}

	event.Headers = parseHeaders(raw)
	event.Body = parseBody(raw)
	return event, nil
}

// parseHeaders accepts both the name/value pair list of the webRequest
// API and a plain string map.
func parseHeaders(raw map[string]interface{}) map[string]string {
	v, ok := firstOf(raw, "requestHeaders", "headers")
	if !ok {
		return nil
	}

	switch headers := v.(type) {
	case []interface{}:
		out := make(map[string]string, len(headers))
		for _, item := range headers {
			pair, ok := item.(map[string]interface{})
			if !ok {
				continue
			}
			name := getString(pair, "name")
			if name == "" {
				continue
			}
			out[name] = getString(pair, "value")
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case map[string]interface{}:
		out := make(map[string]string, len(headers))
		for name, value := range headers {
			if s, ok := value.(string); ok {
				out[name] = s
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	default:
		return nil
	}
}

// parseBody accepts the webRequest requestBody shape: raw byte chunks
// as base64, or a form-data value map.
func parseBody(raw map[string]interface{}) *models.RequestBody {
	v, ok := firstOf(raw, "requestBody", "body")
	if !ok {
		return nil
	}
	bodyMap, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}

	body := &models.RequestBody{}

	if parts, ok := bodyMap["raw"].([]interface{}); ok {
		for _, part := range parts {
			chunk, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			encoded := getString(chunk, "bytes")
			if encoded == "" {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(encoded)
			if err != nil {
				continue
			}
			body.RawParts = append(body.RawParts, decoded)
		}
	}

	if form, ok := bodyMap["formData"].(map[string]interface{}); ok {
		body.FormData = make(map[string][]string, len(form))
		for key, values := range form {
			switch vals := values.(type) {
			case []interface{}:
				for _, item := range vals {
					if s, ok := item.(string); ok {
						body.FormData[key] = append(body.FormData[key], s)
					}
				}
			case string:
				body.FormData[key] = []string{vals}
			}
		}
	}

	if len(body.RawParts) == 0 && len(body.FormData) == 0 {
		return nil
	}
	return body
}

func firstOf(root map[string]interface{}, keys ...string) (interface{}, bool) {
	for _, key := range keys {
		if v, ok := root[key]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func getString(root map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := root[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case fmt.Stringer:
			return val.String()
		}
	}
	return ""
}

func getInt(root map[string]interface{}, keys ...string) int {
	for _, key := range keys {
		switch val := root[key].(type) {
		case float64:
			return int(val)
		case int:
			return val
		}
	}
	return 0
}

func getFloat(root map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		if val, ok := root[key].(float64); ok {
			return val
		}
	}
	return 0
}
