package models

import "time"

// Statistics is a read-only view of the aggregation state for the popup
// and dashboard surfaces.
type Statistics struct {
	ProtectionEnabled    bool      `json:"protection_enabled"`
	TotalRequests        int64     `json:"total_requests"`
	BlockedRequests      int64     `json:"blocked_requests"`
	PhishingSitesBlocked int64     `json:"phishing_sites_blocked"`
	BlacklistedDomains   int       `json:"blacklisted_domains"`
	CCServersDetected    int       `json:"cc_servers_detected"`
	LastThreatDetected   time.Time `json:"last_threat_detected,omitempty"`
}

// Snapshot is the persisted state layout: blacklists, the protection
// flag, rolling counters and capped event histories. Raw request bodies
// are never part of a snapshot.
type Snapshot struct {
	DomainBlacklist    []BlacklistEntry `json:"domain_blacklist"`
	CCServerBlacklist  []BlacklistEntry `json:"cc_server_blacklist"`
	ProtectionEnabled  bool             `json:"protection_enabled"`
	Statistics         Statistics       `json:"statistics"`
	SuspiciousActivity []Report         `json:"suspicious_activity,omitempty"`
	ExfilEvents        []Report         `json:"exfil_events,omitempty"`
	Fingerprinting     []Report         `json:"fingerprinting,omitempty"`
	BehavioralAlerts   []Report         `json:"behavioral_alerts,omitempty"`
	SavedAt            time.Time        `json:"saved_at"`
}
