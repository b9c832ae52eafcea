package classify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCheckURLPhishingVerdict(t *testing.T) {
	var gotBody checkRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s; want POST", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(checkResponse{
			IsPhishing:  true,
			Confidence:  0.93,
			ThreatLevel: "high",
			ThreatType:  "credential_harvesting",
		})
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL, SensitivityMode: "strict"})
	res, err := c.CheckURL(context.Background(), "https://login.suspect.example/")
	if err != nil {
		t.Fatalf("CheckURL: %v", err)
	}
	if res.Verdict != VerdictPhishing {
		t.Fatalf("verdict = %v; want phishing", res.Verdict)
	}
	if res.Confidence != 0.93 || res.ThreatType != "credential_harvesting" {
		t.Fatalf("result = %+v", res)
	}
	if gotBody.URL != "https://login.suspect.example/" || gotBody.SensitivityMode != "strict" {
		t.Fatalf("request body = %+v", gotBody)
	}
}

func TestCheckURLSafeVerdict(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(checkResponse{IsPhishing: false, Confidence: 0.1})
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL})
	res, err := c.CheckURL(context.Background(), "https://plain.example.net/")
	if err != nil {
		t.Fatalf("CheckURL: %v", err)
	}
	if res.Verdict != VerdictSafe {
		t.Fatalf("verdict = %v; want safe", res.Verdict)
	}
}

func TestServerErrorYieldsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL})
	res, err := c.CheckURL(context.Background(), "https://plain.example.net/")
	if err == nil {
		t.Fatalf("expected error on 503")
	}
	if res.Verdict != VerdictUnknown {
		t.Fatalf("failed call verdict = %v; want unknown, never safe", res.Verdict)
	}
}

func TestUnreachableServiceYieldsUnknown(t *testing.T) {
	c := NewClient(Config{URL: "http://127.0.0.1:1/classify", Timeout: 200 * time.Millisecond})
	res, err := c.CheckURL(context.Background(), "https://plain.example.net/")
	if err == nil {
		t.Fatalf("expected transport error")
	}
	if res.Verdict != VerdictUnknown {
		t.Fatalf("verdict = %v; want unknown", res.Verdict)
	}
}

func TestMalformedResponseYieldsUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	c := NewClient(Config{URL: server.URL})
	res, err := c.CheckURL(context.Background(), "https://plain.example.net/")
	if err == nil {
		t.Fatalf("expected decode error")
	}
	if res.Verdict != VerdictUnknown {
		t.Fatalf("verdict = %v; want unknown", res.Verdict)
	}
}
