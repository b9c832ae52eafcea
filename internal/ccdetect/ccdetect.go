// Package ccdetect flags Command-and-Control style endpoints with fixed
// URL, port and IP heuristics. Matching is pure; the caller decides
// blocking policy.
package ccdetect

import (
	"fmt"
	"regexp"

	"phishguard/pkg/models"
)

// DefaultPatterns are the stock C&C URL indicators: IP:PORT endpoints,
// Tor/I2P services, DGA-looking domains, paste/webhook hosts and URL
// shorteners.
var DefaultPatterns = []string{
	`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}:\d+`,
	`\.onion($|/)`,
	`\.i2p($|/)`,
	`[a-z0-9]{20,}\.com`,
	`pastebin\.com/raw`,
	`discord\.com/api/webhooks`,
	`bit\.ly|tinyurl\.com|goo\.gl`,
}

// DefaultPorts are ports commonly used by backdoors, IRC bots and
// alternative HTTP(S) C&C channels.
var DefaultPorts = []int{4444, 5555, 6666, 7777, 8888, 9999, 1337, 31337, 6667, 6668, 6669, 8080, 8443}

var bareIPPattern = regexp.MustCompile(`^(https?|wss?)://\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`)

// Match is the result of testing one URL.
type Match struct {
	Hit      bool
	Reason   string
	Pattern  string
	Port     int
	Severity models.Severity
}

// Matcher tests URLs against a compiled heuristic set.
type Matcher struct {
	patterns []*regexp.Regexp
	ports    map[int]struct{}
}

// NewMatcher compiles the pattern list and port set. Invalid patterns
// are rejected so a config typo surfaces at startup, not per request.
func NewMatcher(patterns []string, ports []int) (*Matcher, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	if len(ports) == 0 {
		ports = DefaultPorts
	}

	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile cc pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	portSet := make(map[int]struct{}, len(ports))
	for _, p := range ports {
		portSet[p] = struct{}{}
	}

	return &Matcher{patterns: compiled, ports: portSet}, nil
}

// Check tests a URL in order: pattern list, suspicious port, bare IPv4
// host. First match wins. No state is mutated.
func (m *Matcher) Check(url string, port int) Match {
	for _, re := range m.patterns {
		if re.MatchString(url) {
			return Match{
				Hit:      true,
				Reason:   "URL matches known C&C server pattern",
				Pattern:  re.String(),
				Severity: models.SeverityCritical,
			}
		}
	}

	if _, ok := m.ports[port]; ok {
		return Match{
			Hit:      true,
			Reason:   "Connection to suspicious port",
			Port:     port,
			Severity: models.SeverityHigh,
		}
	}

	if bareIPPattern.MatchString(url) {
		return Match{
			Hit:      true,
			Reason:   "Direct IP connection (no domain name)",
			Severity: models.SeverityMedium,
		}
	}

	return Match{}
}
