// Package urlutil parses request URLs into the pieces the monitors
// classify on.
package urlutil

import (
	"net/url"
	"strconv"
	"strings"
)

// ExtractDomain returns the hostname of a URL, or "" with ok=false when
// the input is not a parseable absolute URL. It never panics.
func ExtractDomain(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "", false
	}
	return u.Hostname(), true
}

// ExtractPort returns the explicit port of a URL, or the protocol
// default when absent: 443 for https/wss, 80 otherwise.
func ExtractPort(raw string) (int, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return 0, false
	}
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return 0, false
		}
		return port, true
	}
	switch u.Scheme {
	case "https", "wss":
		return 443, true
	default:
		return 80, true
	}
}

// IsWhitelisted reports whether the domain contains any configured
// whitelist entry as a substring. The loose match is intentional and
// preserved: "evil-google.com.attacker.net" passes if "google.com" is
// listed. Known false-negative risk, kept for behavioral compatibility.
func IsWhitelisted(domain string, whitelist []string) bool {
	for _, entry := range whitelist {
		if entry != "" && strings.Contains(domain, entry) {
			return true
		}
	}
	return false
}

// SameOrigin reports whether two URLs share scheme, host and port.
// Unparseable inputs compare as not same-origin.
func SameOrigin(a, b string) bool {
	ua, err := url.Parse(a)
	if err != nil || ua.Host == "" {
		return false
	}
	ub, err := url.Parse(b)
	if err != nil || ub.Host == "" {
		return false
	}
	return ua.Scheme == ub.Scheme && ua.Host == ub.Host
}
