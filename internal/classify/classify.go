// Package classify calls the remote URL classification service. The
// service is advisory: a failed call yields an Unknown verdict, which
// callers must never treat as Safe.
package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Verdict is the classification outcome for a URL.
type Verdict int

const (
	VerdictUnknown Verdict = iota
	VerdictSafe
	VerdictPhishing
)

func (v Verdict) String() string {
	switch v {
	case VerdictSafe:
		return "safe"
	case VerdictPhishing:
		return "phishing"
	default:
		return "unknown"
	}
}

// Result carries the service verdict and its supporting fields.
type Result struct {
	Verdict     Verdict
	Confidence  float64
	ThreatLevel string
	ThreatType  string
}

// Config configures the classification client.
type Config struct {
	URL             string
	Timeout         time.Duration
	SensitivityMode string
}

// Client posts URLs to the classification endpoint.
type Client struct {
	url  string
	mode string
	http *http.Client
}

// NewClient builds a classification client. The default timeout is 30
// seconds.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	mode := cfg.SensitivityMode
	if mode == "" {
		mode = "balanced"
	}
	return &Client{
		url:  cfg.URL,
		mode: mode,
		http: &http.Client{Timeout: timeout},
	}
}

type checkRequest struct {
	URL             string `json:"url"`
	SensitivityMode string `json:"sensitivity_mode"`
}

type checkResponse struct {
	IsPhishing  bool    `json:"is_phishing"`
	Confidence  float64 `json:"confidence"`
	ThreatLevel string  `json:"threat_level"`
	ThreatType  string  `json:"threat_type"`
}

// CheckURL classifies one URL. Any transport or decode failure returns
// an Unknown verdict alongside the error.
func (c *Client) CheckURL(ctx context.Context, target string) (Result, error) {
	payload, err := json.Marshal(checkRequest{URL: target, SensitivityMode: c.mode})
	if err != nil {
		return Result{}, fmt.Errorf("encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classify %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Result{}, fmt.Errorf("classify %s: unexpected status %d", target, resp.StatusCode)
	}

	var decoded checkResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Result{}, fmt.Errorf("decode classify response: %w", err)
	}

	verdict := VerdictSafe
	if decoded.IsPhishing {
		verdict = VerdictPhishing
	}
	return Result{
		Verdict:     verdict,
		Confidence:  decoded.Confidence,
		ThreatLevel: decoded.ThreatLevel,
		ThreatType:  decoded.ThreatType,
	}, nil
}
