// Package livefeed subscribes to the backend's server-sent threat
// stream. The connection is long-lived; any drop is retried on a fixed
// cadence until the context ends.
package livefeed

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"time"

	"phishguard/internal/logger"
)

// Handler consumes one decoded event payload.
type Handler func(data []byte)

// Config configures the feed subscriber.
type Config struct {
	URL     string
	Backoff time.Duration
}

// Subscriber maintains the SSE connection and dispatches event data.
type Subscriber struct {
	url     string
	backoff time.Duration
	handler Handler
	http    *http.Client
}

// NewSubscriber builds a subscriber. The default reconnect backoff is
// 5 seconds, fixed, no jitter.
func NewSubscriber(cfg Config, handler Handler) *Subscriber {
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	return &Subscriber{
		url:     cfg.URL,
		backoff: backoff,
		handler: handler,
		http:    &http.Client{},
	}
}

// Run connects and re-connects until the context ends. Each drop waits
// one backoff interval before the next attempt.
func (s *Subscriber) Run(ctx context.Context) {
	for {
		if err := s.stream(ctx); err != nil && ctx.Err() == nil {
			logger.Warnf("threat feed disconnected: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff):
		}
	}
}

// stream holds one connection open and dispatches its events.
func (s *Subscriber) stream(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	logger.Debugf("threat feed connected: %s", s.url)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		// A blank line terminates one event.
		if line == "" {
			if len(data) > 0 && s.handler != nil {
				s.handler([]byte(strings.Join(data, "\n")))
			}
			data = data[:0]
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
		// Comment and id/event lines are ignored.
	}
	return scanner.Err()
}
