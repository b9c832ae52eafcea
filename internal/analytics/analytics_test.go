package analytics

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
)

var testInstallID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func fixedNonce(b []byte) error {
	for i := range b {
		b[i] = byte(i)
	}
	return nil
}

func fixedClock() func() time.Time {
	t := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestReportActivityNeverSendsPlaintext(t *testing.T) {
	const visited = "https://login.suspect.example/account?user=alice"

	var rawBody []byte
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		rawBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL}, testInstallID,
		WithClock(fixedClock()), WithNonceSource(fixedNonce))
	if err := c.ReportActivity(context.Background(), visited); err != nil {
		t.Fatalf("ReportActivity: %v", err)
	}

	if want := "/user/" + testInstallID.String() + "/activity"; path != want {
		t.Fatalf("path = %q; want %q", path, want)
	}
	if strings.Contains(string(rawBody), visited) {
		t.Fatalf("plaintext URL leaked in request body")
	}
	if strings.Contains(string(rawBody), "suspect.example") {
		t.Fatalf("plaintext domain leaked in request body")
	}

	var rec activityRecord
	if err := json.Unmarshal(rawBody, &rec); err != nil {
		t.Fatalf("decode record: %v", err)
	}
	sum := sha256.Sum256([]byte(visited))
	if rec.URLHash != hex.EncodeToString(sum[:]) {
		t.Fatalf("url hash mismatch: %s", rec.URLHash)
	}
	if rec.EncryptedURL == "" {
		t.Fatalf("encrypted url missing")
	}
	if rec.Timestamp != fixedClock()().Unix() {
		t.Fatalf("timestamp = %d", rec.Timestamp)
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c := NewClient(Config{BaseURL: "http://unused"}, testInstallID,
		WithNonceSource(fixedNonce))

	const url = "https://example.net/path?q=1"
	sealed, err := c.encryptURL(url)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if sealed == url {
		t.Fatalf("ciphertext equals plaintext")
	}

	opened, err := c.decryptURL(sealed)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if opened != url {
		t.Fatalf("round trip = %q; want %q", opened, url)
	}
}

func TestDifferentInstallKeysCannotDecrypt(t *testing.T) {
	a := NewClient(Config{BaseURL: "http://unused"}, testInstallID,
		WithNonceSource(fixedNonce))
	b := NewClient(Config{BaseURL: "http://unused"}, uuid.MustParse("6ba7b811-9dad-11d1-80b4-00c04fd430c8"),
		WithNonceSource(fixedNonce))

	sealed, err := a.encryptURL("https://example.net/secret")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	opened, err := b.decryptURL(sealed)
	if err == nil && opened == "https://example.net/secret" {
		t.Fatalf("foreign key must not recover the plaintext")
	}
}

func TestHashURLIsDeterministic(t *testing.T) {
	if hashURL("https://a.example/") != hashURL("https://a.example/") {
		t.Fatalf("hash must be deterministic")
	}
	if hashURL("https://a.example/") == hashURL("https://b.example/") {
		t.Fatalf("distinct urls must hash differently")
	}
}

func TestServerErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(Config{BaseURL: server.URL}, testInstallID, WithNonceSource(fixedNonce))
	if err := c.ReportActivity(context.Background(), "https://example.net/"); err == nil {
		t.Fatalf("expected error on 500")
	}
}
