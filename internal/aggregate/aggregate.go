// Package aggregate holds the process-wide protection state: the
// blacklists, the statistics counters and the bounded report histories.
// It is the single sink for every monitor and the unit of persistence.
package aggregate

import (
	"context"
	"sync"
	"time"

	"phishguard/internal/logger"
	"phishguard/internal/urlutil"
	"phishguard/pkg/models"
)

// Store persists and restores aggregator snapshots.
type Store interface {
	SaveSnapshot(ctx context.Context, snap models.Snapshot) error
	LoadSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// Notifier surfaces a user-visible threat notification.
type Notifier interface {
	Notify(title, message string)
}

// Config carries the flush cadence and history caps.
type Config struct {
	FlushInterval      time.Duration
	ActivityHistoryCap int
	ExfilHistoryCap    int
	FingerprintCap     int
	BehavioralCap      int
}

// DefaultConfig returns the stock caps and a 30 second flush cadence.
func DefaultConfig() Config {
	return Config{
		FlushInterval:      30 * time.Second,
		ActivityHistoryCap: 100,
		ExfilHistoryCap:    50,
		FingerprintCap:     50,
		BehavioralCap:      50,
	}
}

// Aggregator is the shared protection state. Safe for concurrent use;
// monitors feed it through Report, the bridge queries and toggles it.
type Aggregator struct {
	mu       sync.Mutex
	cfg      Config
	store    Store
	notifier Notifier
	now      func() time.Time

	enabled   bool
	dirty     bool
	stats     models.Statistics
	whitelist []string

	domainBlacklist map[string]models.BlacklistEntry
	ccBlacklist     map[string]models.BlacklistEntry

	activity    []models.Report
	exfil       []models.Report
	fingerprint []models.Report
	behavioral  []models.Report
}

// Option configures optional collaborators of an Aggregator.
type Option func(*Aggregator)

// WithStore installs the snapshot persistence backend.
func WithStore(store Store) Option {
	return func(a *Aggregator) { a.store = store }
}

// WithNotifier installs the user notification surface.
func WithNotifier(n Notifier) Option {
	return func(a *Aggregator) { a.notifier = n }
}

// WithWhitelist installs the trusted domains. Whitelisted domains are
// never blacklisted, auto or manual.
func WithWhitelist(domains []string) Option {
	return func(a *Aggregator) { a.whitelist = domains }
}

// WithClock overrides the aggregator clock.
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// New creates an aggregator with protection enabled and empty state.
func New(cfg Config, opts ...Option) *Aggregator {
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultConfig().FlushInterval
	}
	if cfg.ActivityHistoryCap <= 0 {
		cfg.ActivityHistoryCap = DefaultConfig().ActivityHistoryCap
	}
	if cfg.ExfilHistoryCap <= 0 {
		cfg.ExfilHistoryCap = DefaultConfig().ExfilHistoryCap
	}
	if cfg.FingerprintCap <= 0 {
		cfg.FingerprintCap = DefaultConfig().FingerprintCap
	}
	if cfg.BehavioralCap <= 0 {
		cfg.BehavioralCap = DefaultConfig().BehavioralCap
	}

	a := &Aggregator{
		cfg:             cfg,
		now:             time.Now,
		enabled:         true,
		domainBlacklist: make(map[string]models.BlacklistEntry),
		ccBlacklist:     make(map[string]models.BlacklistEntry),
	}
	a.stats.ProtectionEnabled = true
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Enabled reports whether protection is on. Monitors consult this at
// the top of each handler.
func (a *Aggregator) Enabled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.enabled
}

// ToggleProtection flips the kill switch. Disabling keeps all state;
// re-enabling resumes with the counters and blacklists intact.
func (a *Aggregator) ToggleProtection(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
	a.stats.ProtectionEnabled = enabled
	a.dirty = true
}

// RecordRequest counts one handled request.
func (a *Aggregator) RecordRequest(blocked bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stats.TotalRequests++
	if blocked {
		a.stats.BlockedRequests++
	}
	a.dirty = true
}

// Contains answers the blacklist lookup for the network monitor. Both
// lists count.
func (a *Aggregator) Contains(domain string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.domainBlacklist[domain]; ok {
		return true
	}
	_, ok := a.ccBlacklist[domain]
	return ok
}

// Report routes a monitor report into the matching history, updates the
// counters and applies the auto-blacklist rules.
func (a *Aggregator) Report(r models.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.dirty = true
	a.stats.LastThreatDetected = r.Timestamp

	switch r.Kind {
	case models.KindDataExfiltration:
		a.exfil = appendCapped(a.exfil, r, a.cfg.ExfilHistoryCap)
	case models.KindFingerprinting:
		a.fingerprint = appendCapped(a.fingerprint, r, a.cfg.FingerprintCap)
	case models.KindBehavioral:
		a.behavioral = appendCapped(a.behavioral, r, a.cfg.BehavioralCap)
	default:
		a.activity = appendCapped(a.activity, r, a.cfg.ActivityHistoryCap)
	}

	if r.Kind == models.KindCCServer {
		a.stats.CCServersDetected++
		// Every hit tier lands in the C&C set. The detail may be
		// absent on reports from outside the network monitor.
		reason := string(r.Kind)
		if r.CC != nil && r.CC.Reason != "" {
			reason = r.CC.Reason
		}
		if domain := reportDomain(r); domain != "" {
			a.addCCLocked(domain, reason)
			if r.Severity.AtLeast(models.SeverityCritical) {
				a.notify("C&C server blocked", "Blocked connection to "+domain)
			}
		}
		return
	}

	if r.Kind == models.KindBehavioral && r.Severity.AtLeast(models.SeverityHigh) {
		domain := reportDomain(r)
		if domain != "" {
			a.addDomainLocked(domain, string(behaviorOf(r)))
		}
		a.stats.PhishingSitesBlocked++
		a.notify("Phishing attempt blocked",
			"Suspicious behavior detected on "+domain)
		return
	}

	if r.Severity.AtLeast(models.SeverityCritical) {
		domain := reportDomain(r)
		if domain != "" {
			a.addDomainLocked(domain, string(r.Kind))
		}
		a.notify("Critical threat detected",
			"Blocked suspicious activity on "+domain)
	}
}

func (a *Aggregator) notify(title, message string) {
	if a.notifier != nil {
		a.notifier.Notify(title, message)
	}
}

func behaviorOf(r models.Report) models.BehaviorKind {
	if r.Behavior != nil {
		return r.Behavior.Behavior
	}
	return ""
}

// reportDomain resolves the report's domain, falling back to its URL.
func reportDomain(r models.Report) string {
	if r.Domain != "" {
		return r.Domain
	}
	domain, _ := urlutil.ExtractDomain(r.URL)
	return domain
}

func (a *Aggregator) addDomainLocked(domain, reason string) {
	if urlutil.IsWhitelisted(domain, a.whitelist) {
		return
	}
	if _, ok := a.domainBlacklist[domain]; ok {
		return
	}
	a.domainBlacklist[domain] = models.BlacklistEntry{
		Domain:  domain,
		Reason:  reason,
		AddedAt: a.now(),
	}
	a.stats.BlacklistedDomains = len(a.domainBlacklist) + len(a.ccBlacklist)
	logger.Infof("blacklisted domain %s: %s", domain, reason)
}

func (a *Aggregator) addCCLocked(domain, reason string) {
	if urlutil.IsWhitelisted(domain, a.whitelist) {
		return
	}
	if _, ok := a.ccBlacklist[domain]; ok {
		return
	}
	a.ccBlacklist[domain] = models.BlacklistEntry{
		Domain:  domain,
		Reason:  reason,
		AddedAt: a.now(),
	}
	a.stats.BlacklistedDomains = len(a.domainBlacklist) + len(a.ccBlacklist)
	logger.Infof("blacklisted C&C server %s: %s", domain, reason)
}

// AddDomain blacklists a domain explicitly, outside the auto rules.
func (a *Aggregator) AddDomain(domain, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addDomainLocked(domain, reason)
	a.dirty = true
}

// appendCapped appends to a FIFO history, dropping the oldest entry
// past the cap.
func appendCapped(history []models.Report, r models.Report, max int) []models.Report {
	history = append(history, r)
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}

// QueryStatistics returns a copy of the current counters.
func (a *Aggregator) QueryStatistics() models.Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Histories returns copies of the bounded report histories.
func (a *Aggregator) Histories() (activity, exfil, fingerprint, behavioral []models.Report) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyReports(a.activity), copyReports(a.exfil),
		copyReports(a.fingerprint), copyReports(a.behavioral)
}

func copyReports(in []models.Report) []models.Report {
	out := make([]models.Report, len(in))
	copy(out, in)
	return out
}

// Snapshot captures the full aggregator state for persistence. The
// copy happens under the lock; the write does not.
func (a *Aggregator) Snapshot() models.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked()
}

func (a *Aggregator) snapshotLocked() models.Snapshot {
	snap := models.Snapshot{
		ProtectionEnabled:  a.enabled,
		Statistics:         a.stats,
		SuspiciousActivity: copyReports(a.activity),
		ExfilEvents:        copyReports(a.exfil),
		Fingerprinting:     copyReports(a.fingerprint),
		BehavioralAlerts:   copyReports(a.behavioral),
		SavedAt:            a.now(),
	}
	for _, e := range a.domainBlacklist {
		snap.DomainBlacklist = append(snap.DomainBlacklist, e)
	}
	for _, e := range a.ccBlacklist {
		snap.CCServerBlacklist = append(snap.CCServerBlacklist, e)
	}
	return snap
}

// Rehydrate restores persisted state. Must run before any monitor
// starts feeding reports. A missing snapshot is a clean first run.
func (a *Aggregator) Rehydrate(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	snap, err := a.store.LoadSnapshot(ctx)
	if err != nil {
		return err
	}
	if snap == nil {
		logger.Debugf("no persisted state, starting clean")
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.enabled = snap.ProtectionEnabled
	a.stats = snap.Statistics
	a.activity = copyReports(snap.SuspiciousActivity)
	a.exfil = copyReports(snap.ExfilEvents)
	a.fingerprint = copyReports(snap.Fingerprinting)
	a.behavioral = copyReports(snap.BehavioralAlerts)
	for _, e := range snap.DomainBlacklist {
		a.domainBlacklist[e.Domain] = e
	}
	for _, e := range snap.CCServerBlacklist {
		a.ccBlacklist[e.Domain] = e
	}
	a.stats.BlacklistedDomains = len(a.domainBlacklist) + len(a.ccBlacklist)

	logger.Infof("restored state: %d blacklisted domains, %d requests seen",
		a.stats.BlacklistedDomains, a.stats.TotalRequests)
	return nil
}

// Flush persists the current state if anything changed since the last
// write. The snapshot is taken under the lock, the store write is not.
func (a *Aggregator) Flush(ctx context.Context) error {
	if a.store == nil {
		return nil
	}

	a.mu.Lock()
	if !a.dirty {
		a.mu.Unlock()
		return nil
	}
	snap := a.snapshotLocked()
	a.dirty = false
	a.mu.Unlock()

	return a.store.SaveSnapshot(ctx, snap)
}

// Run flushes on the configured cadence until the context ends, then
// writes one final snapshot.
func (a *Aggregator) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := a.Flush(flushCtx); err != nil {
				logger.Errorf("final state flush failed: %v", err)
			}
			cancel()
			return
		case <-ticker.C:
			if err := a.Flush(ctx); err != nil {
				logger.Errorf("state flush failed: %v", err)
			}
		}
	}
}
