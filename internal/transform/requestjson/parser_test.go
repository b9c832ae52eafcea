package requestjson

import (
	"encoding/base64"
	"fmt"
	"testing"
	"time"
)

func TestParseFullWebRequestShape(t *testing.T) {
	chunk := base64.StdEncoding.EncodeToString([]byte("field=value"))
	payload := fmt.Sprintf(`{
		"url": "https://collector.example.net/upload",
		"method": "POST",
		"initiator": "https://page.example.org",
		"tabId": 7,
		"timeStamp": 1741942800000,
		"requestHeaders": [
			{"name": "X-Forwarded-For", "value": "10.0.0.1"},
			{"name": "Content-Type", "value": "application/x-www-form-urlencoded"}
		],
		"requestBody": {"raw": [{"bytes": %q}]}
	}`, chunk)

	event, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if event.URL != "https://collector.example.net/upload" || event.Method != "POST" {
		t.Fatalf("event = %+v", event)
	}
	if event.Initiator != "https://page.example.org" || event.TabID != 7 {
		t.Fatalf("event = %+v", event)
	}
	want := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	if !event.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v; want %v", event.Timestamp, want)
	}
	if event.Headers["X-Forwarded-For"] != "10.0.0.1" {
		t.Fatalf("headers = %+v", event.Headers)
	}
	if event.Body == nil || len(event.Body.RawParts) != 1 || string(event.Body.RawParts[0]) != "field=value" {
		t.Fatalf("body = %+v", event.Body)
	}
}

func TestParseFormDataBody(t *testing.T) {
	payload := `{
		"url": "https://login.example.net/session",
		"method": "POST",
		"body": {"formData": {"username": ["alice"], "password": ["hunter2"]}}
	}`

	event, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if event.Body == nil {
		t.Fatalf("form body missing")
	}
	if got := event.Body.FormData["password"]; len(got) != 1 || got[0] != "hunter2" {
		t.Fatalf("form data = %+v", event.Body.FormData)
	}
}

func TestParseHeaderMapVariant(t *testing.T) {
	payload := `{
		"url": "https://x.example/",
		"headers": {"Accept": "text/html"}
	}`

	event, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if event.Method != "GET" {
		t.Fatalf("default method = %q; want GET", event.Method)
	}
	if event.Headers["Accept"] != "text/html" {
		t.Fatalf("headers = %+v", event.Headers)
	}
}

func TestParseRejectsMissingURL(t *testing.T) {
	if _, err := Parse([]byte(`{"method": "GET"}`)); err == nil {
		t.Fatalf("payload without url must be rejected")
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	if _, err := Parse([]byte("not json")); err == nil {
		t.Fatalf("malformed payload must be rejected")
	}
}

func TestParseSkipsUndecodableChunks(t *testing.T) {
	payload := `{
		"url": "https://x.example/",
		"method": "POST",
		"requestBody": {"raw": [{"bytes": "!!!not-base64!!!"}]}
	}`

	event, err := Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if event.Body != nil {
		t.Fatalf("undecodable chunk must not produce a body: %+v", event.Body)
	}
}
