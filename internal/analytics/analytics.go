// Package analytics reports visit activity to the backend without ever
// transmitting a plaintext URL. URLs travel as a SHA-256 digest for
// indexing plus a keystream-encrypted copy only the install key can
// open. Reporting is best effort: failures are logged and dropped.
package analytics

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const nonceSize = 16

// Config configures the analytics client.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client posts encrypted activity records for one install.
type Client struct {
	baseURL   string
	installID uuid.UUID
	key       [32]byte
	http      *http.Client
	now       func() time.Time
	readNonce func([]byte) error
}

// Option configures optional collaborators of a Client.
type Option func(*Client)

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithNonceSource overrides the nonce reader. Tests use a fixed source;
// production keeps crypto/rand.
func WithNonceSource(read func([]byte) error) Option {
	return func(c *Client) { c.readNonce = read }
}

// NewClient builds an analytics client. The encryption key is derived
// from the install ID and never leaves the process.
func NewClient(cfg Config, installID uuid.UUID, opts ...Option) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	c := &Client{
		baseURL:   cfg.BaseURL,
		installID: installID,
		key:       sha256.Sum256([]byte(installID.String())),
		http:      &http.Client{Timeout: timeout},
		now:       time.Now,
		readNonce: func(b []byte) error {
			_, err := rand.Read(b)
			return err
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type activityRecord struct {
	URLHash      string `json:"url_hash"`
	EncryptedURL string `json:"encrypted_url"`
	Timestamp    int64  `json:"timestamp"`
}

// hashURL produces the deterministic index digest of a URL.
func hashURL(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// keystream derives the XOR stream for one nonce: block i is
// SHA-256(key || nonce || i).
func (c *Client) keystream(nonce []byte, length int) []byte {
	out := make([]byte, 0, length+sha256.Size)
	var counter [4]byte
	for i := 0; len(out) < length; i++ {
		binary.BigEndian.PutUint32(counter[:], uint32(i))
		h := sha256.New()
		h.Write(c.key[:])
		h.Write(nonce)
		h.Write(counter[:])
		out = h.Sum(out)
	}
	return out[:length]
}

// encryptURL seals a URL under a fresh nonce. Output layout is
// base64(nonce || ciphertext).
func (c *Client) encryptURL(rawURL string) (string, error) {
	nonce := make([]byte, nonceSize)
	if err := c.readNonce(nonce); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}

	plaintext := []byte(rawURL)
	stream := c.keystream(nonce, len(plaintext))
	sealed := make([]byte, nonceSize+len(plaintext))
	copy(sealed, nonce)
	for i, b := range plaintext {
		sealed[nonceSize+i] = b ^ stream[i]
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decryptURL opens a sealed URL. Used by the local history view; the
// backend never holds the key.
func (c *Client) decryptURL(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed url: %w", err)
	}
	if len(raw) < nonceSize {
		return "", fmt.Errorf("sealed url too short: %d bytes", len(raw))
	}

	nonce, ciphertext := raw[:nonceSize], raw[nonceSize:]
	stream := c.keystream(nonce, len(ciphertext))
	plain := make([]byte, len(ciphertext))
	for i, b := range ciphertext {
		plain[i] = b ^ stream[i]
	}
	return string(plain), nil
}

// ReportActivity posts one visit record. The caller logs and drops the
// error; activity reporting never blocks protection.
func (c *Client) ReportActivity(ctx context.Context, rawURL string) error {
	sealed, err := c.encryptURL(rawURL)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(activityRecord{
		URLHash:      hashURL(rawURL),
		EncryptedURL: sealed,
		Timestamp:    c.now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("encode activity record: %w", err)
	}

	endpoint := fmt.Sprintf("%s/user/%s/activity", c.baseURL, c.installID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build activity request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post activity: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post activity: unexpected status %d", resp.StatusCode)
	}
	return nil
}
