// Package netmon inspects the request stream: C&C endpoints, data
// exfiltration, request bursts, cross-origin fan-out, DNS-over-HTTPS
// and spoofing-prone headers. It renders a per-request decision and
// maintains the 0-100 network threat score.
package netmon

import (
	"strings"
	"sync"
	"time"

	"phishguard/internal/ccdetect"
	"phishguard/internal/exfil"
	"phishguard/internal/logger"
	"phishguard/internal/urlutil"
	"phishguard/pkg/models"
)

// Sink consumes network reports.
type Sink interface {
	Report(report models.Report)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(report models.Report)

// Report invokes the wrapped function.
func (f SinkFunc) Report(report models.Report) { f(report) }

// Blacklist answers whether a domain is on either blacklist.
type Blacklist interface {
	Contains(domain string) bool
}

// RuleVerdict is one detection-rule hit against a request event.
type RuleVerdict struct {
	RuleID   string
	RuleName string
	Severity models.Severity
}

// RuleEngine evaluates detection rules against raw request events.
type RuleEngine interface {
	Evaluate(event models.RequestEvent) []RuleVerdict
}

// Action is the per-request verdict.
type Action int

const (
	ActionAllow Action = iota
	ActionObserve
	ActionBlock
)

func (a Action) String() string {
	switch a {
	case ActionBlock:
		return "block"
	case ActionObserve:
		return "observe"
	default:
		return "allow"
	}
}

// Decision is the monitor's verdict on one request.
type Decision struct {
	Action Action
	Reason string
	Domain string
}

// Config carries the network monitor thresholds and toggles.
type Config struct {
	LargePostThreshold    int64
	CriticalPostThreshold int64
	MaxRequestsPerMinute  int
	RateLimitWindow       time.Duration
	CCServerPatterns      []string
	SuspiciousPorts       []int
	DoHProviders          []string
	SuspiciousHeaders     []string
	Whitelist             []string
	WebSocketThreshold    int
	CrossOriginThreshold  int
	DoHThreshold          int

	MonitorPostSize    bool
	MonitorCCServers   bool
	MonitorWebSockets  bool
	MonitorDoH         bool
	MonitorHeaders     bool
	MonitorCrossOrigin bool

	AutoBlockCCServers         bool
	AutoBlockLargeExfiltration bool

	// CanBlock is false on platforms without a blocking request hook.
	// Block decisions degrade to observe-and-report there.
	CanBlock bool
}

// DefaultConfig returns the stock network thresholds with every monitor
// on and blocking available.
func DefaultConfig() Config {
	return Config{
		LargePostThreshold:    exfil.DefaultLargeThreshold,
		CriticalPostThreshold: exfil.DefaultCriticalThreshold,
		MaxRequestsPerMinute:  100,
		RateLimitWindow:       time.Minute,
		CCServerPatterns:      ccdetect.DefaultPatterns,
		SuspiciousPorts:       ccdetect.DefaultPorts,
		DoHProviders: []string{
			"dns.google", "cloudflare-dns.com", "1.1.1.1", "8.8.8.8",
			"dns.quad9.net", "doh.opendns.com",
		},
		SuspiciousHeaders: []string{"x-forwarded-for", "x-originating-ip", "x-real-ip"},
		Whitelist: []string{
			"google.com", "googleapis.com", "gstatic.com", "microsoft.com",
			"amazon.com", "facebook.com", "twitter.com", "linkedin.com", "github.com",
		},
		WebSocketThreshold:         10,
		CrossOriginThreshold:       20,
		DoHThreshold:               5,
		MonitorPostSize:            true,
		MonitorCCServers:           true,
		MonitorWebSockets:          true,
		MonitorDoH:                 true,
		MonitorHeaders:             true,
		MonitorCrossOrigin:         true,
		AutoBlockCCServers:         true,
		AutoBlockLargeExfiltration: true,
		CanBlock:                   true,
	}
}

type rateWindow struct {
	start time.Time
	count int
}

type originStats struct {
	requests int
	domains  map[string]struct{}
}

// Monitor is the process-wide network monitor. Safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	cfg       Config
	sink      Sink
	matcher   *ccdetect.Matcher
	estimator *exfil.Estimator
	blacklist Blacklist
	rules     RuleEngine
	enabled   func() bool
	now       func() time.Time

	degradeOnce sync.Once

	largePosts     int
	totalExfil     int64
	ccHits         int
	wsConnections  int
	dohRequests    int
	crossOriginReq int

	rate        map[string]*rateWindow
	crossOrigin map[string]*originStats
}

// Option configures optional collaborators of a Monitor.
type Option func(*Monitor)

// WithBlacklist installs the domain blacklist lookup.
func WithBlacklist(bl Blacklist) Option {
	return func(m *Monitor) { m.blacklist = bl }
}

// WithRules installs a detection-rule engine evaluated per request.
func WithRules(engine RuleEngine) Option {
	return func(m *Monitor) { m.rules = engine }
}

// WithEnabled installs the protection kill-switch check.
func WithEnabled(enabled func() bool) Option {
	return func(m *Monitor) { m.enabled = enabled }
}

// WithClock overrides the monitor clock.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// NewMonitor builds a network monitor. Pattern compilation errors
// surface here, not per request.
func NewMonitor(cfg Config, sink Sink, opts ...Option) (*Monitor, error) {
	matcher, err := ccdetect.NewMatcher(cfg.CCServerPatterns, cfg.SuspiciousPorts)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:         cfg,
		sink:        sink,
		matcher:     matcher,
		estimator:   exfil.NewEstimator(cfg.LargePostThreshold, cfg.CriticalPostThreshold),
		enabled:     func() bool { return true },
		now:         time.Now,
		rate:        make(map[string]*rateWindow),
		crossOrigin: make(map[string]*originStats),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// block resolves a block decision against the platform capability.
// Without a blocking hook every block downgrades to observe; logged
// once, not per request.
func (m *Monitor) block(reason, domain string) Decision {
	if !m.cfg.CanBlock {
		m.degradeOnce.Do(func() {
			logger.Warnf("request blocking unavailable, downgrading to observe mode")
		})
		return Decision{Action: ActionObserve, Reason: reason, Domain: domain}
	}
	return Decision{Action: ActionBlock, Reason: reason, Domain: domain}
}

func (m *Monitor) report(r models.Report) {
	if m.sink != nil {
		r.Timestamp = m.now()
		r.Score = m.scoreLocked()
		m.sink.Report(r)
	}
}

// HandleRequest runs every enabled check against one request event and
// returns the verdict. Checks run in a fixed order; the first blocking
// condition ends the pipeline.
func (m *Monitor) HandleRequest(event models.RequestEvent) Decision {
	if !m.enabled() {
		return Decision{Action: ActionAllow}
	}

	domain, ok := urlutil.ExtractDomain(event.URL)
	if !ok {
		return Decision{Action: ActionAllow}
	}
	if urlutil.IsWhitelisted(domain, m.cfg.Whitelist) {
		return Decision{Action: ActionAllow, Domain: domain}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.blacklist != nil && m.blacklist.Contains(domain) {
		return m.block("blacklisted domain", domain)
	}

	if m.cfg.MonitorCCServers {
		port, _ := urlutil.ExtractPort(event.URL)
		if match := m.matcher.Check(event.URL, port); match.Hit {
			// Only pattern-tier detections feed the score; port and
			// bare-IP hits still report and block.
			if match.Pattern != "" {
				m.ccHits++
			}
			m.report(models.Report{
				Kind:     models.KindCCServer,
				Severity: match.Severity,
				URL:      event.URL,
				Domain:   domain,
				CC: &models.CCDetail{
					Pattern: match.Pattern,
					Port:    match.Port,
					Reason:  match.Reason,
				},
			})
			if m.cfg.AutoBlockCCServers {
				return m.block(match.Reason, domain)
			}
		}
	}

	if m.cfg.MonitorWebSockets && event.IsWebSocket() {
		m.wsConnections++
		if m.wsConnections > m.cfg.WebSocketThreshold {
			m.report(models.Report{
				Kind:     models.KindWebSocketAbuse,
				Severity: models.SeverityHigh,
				URL:      event.URL,
				Domain:   domain,
				WebSocket: &models.WebSocketDetail{
					Connections: m.wsConnections,
				},
			})
		}
	}

	if m.cfg.MonitorPostSize {
		class, size := m.estimator.Classify(event.Method, event.Body)
		if class != exfil.ClassNone {
			m.largePosts++
			m.totalExfil += size
			m.report(models.Report{
				Kind:     models.KindDataExfiltration,
				Severity: class.Severity(),
				URL:      event.URL,
				Domain:   domain,
				Exfil: &models.ExfilDetail{
					Size:       size,
					TotalBytes: m.totalExfil,
				},
			})
			if class == exfil.ClassCritical && m.cfg.AutoBlockLargeExfiltration {
				return m.block("critical data exfiltration", domain)
			}
		}
	}

	m.trackRate(domain, event.URL)
	if m.cfg.MonitorCrossOrigin {
		m.trackCrossOrigin(domain, event)
	}
	if m.cfg.MonitorDoH {
		m.trackDoH(domain, event.URL)
	}
	if m.cfg.MonitorHeaders {
		m.checkHeaders(domain, event)
	}

	if m.rules != nil {
		for _, v := range m.rules.Evaluate(event) {
			m.report(models.Report{
				Kind:     models.KindRuleMatch,
				Severity: v.Severity,
				URL:      event.URL,
				Domain:   domain,
				RuleMatch: &models.RuleMatchDetail{
					RuleID:   v.RuleID,
					RuleName: v.RuleName,
				},
			})
		}
	}

	return Decision{Action: ActionAllow, Domain: domain}
}

// trackRate counts requests per domain in fixed windows. The window
// restarts when it expires; no sliding behavior.
func (m *Monitor) trackRate(domain, url string) {
	now := m.now()
	w := m.rate[domain]
	if w == nil || now.Sub(w.start) >= m.cfg.RateLimitWindow {
		m.rate[domain] = &rateWindow{start: now, count: 1}
		return
	}
	w.count++
	if w.count > m.cfg.MaxRequestsPerMinute {
		m.report(models.Report{
			Kind:     models.KindRateLimitExceeded,
			Severity: models.SeverityMedium,
			URL:      url,
			Domain:   domain,
			RateLimit: &models.RateLimitDetail{
				RequestCount: w.count,
				Threshold:    m.cfg.MaxRequestsPerMinute,
			},
		})
	}
}

func (m *Monitor) trackCrossOrigin(domain string, event models.RequestEvent) {
	if event.Initiator == "" {
		return
	}
	initiator, ok := urlutil.ExtractDomain(event.Initiator)
	if !ok || initiator == domain {
		return
	}

	m.crossOriginReq++
	stats := m.crossOrigin[initiator]
	if stats == nil {
		stats = &originStats{domains: make(map[string]struct{})}
		m.crossOrigin[initiator] = stats
	}
	stats.requests++
	stats.domains[domain] = struct{}{}

	if stats.requests > m.cfg.CrossOriginThreshold {
		m.report(models.Report{
			Kind:     models.KindCrossOriginAbuse,
			Severity: models.SeverityMedium,
			URL:      event.URL,
			Domain:   domain,
			CrossOrigin: &models.CrossOriginDetail{
				OriginDomain:  initiator,
				TotalRequests: stats.requests,
				UniqueDomains: len(stats.domains),
			},
		})
	}
}

func (m *Monitor) trackDoH(domain, url string) {
	provider := ""
	for _, p := range m.cfg.DoHProviders {
		if strings.Contains(domain, p) {
			provider = p
			break
		}
	}
	if provider == "" && strings.Contains(url, "/dns-query") {
		provider = domain
	}
	if provider == "" {
		return
	}

	m.dohRequests++
	if m.dohRequests <= m.cfg.DoHThreshold {
		return
	}
	m.report(models.Report{
		Kind:     models.KindDoHUsage,
		Severity: models.SeverityMedium,
		URL:      url,
		Domain:   domain,
		DoH: &models.DoHDetail{
			Provider: provider,
			Count:    m.dohRequests,
		},
	})
}

func (m *Monitor) checkHeaders(domain string, event models.RequestEvent) {
	for name := range event.Headers {
		lowered := strings.ToLower(name)
		for _, suspicious := range m.cfg.SuspiciousHeaders {
			if lowered == suspicious {
				m.report(models.Report{
					Kind:     models.KindSuspiciousHeader,
					Severity: models.SeverityLow,
					URL:      event.URL,
					Domain:   domain,
					Header: &models.HeaderDetail{
						Header: lowered,
					},
				})
			}
		}
	}
}

// RecordWebSocketSend tracks one outbound WebSocket payload. A send at
// or past the large-post threshold is exfiltration over a socket.
func (m *Monitor) RecordWebSocketSend(url string, size int64) {
	if !m.enabled() || !m.cfg.MonitorWebSockets {
		return
	}
	domain, _ := urlutil.ExtractDomain(url)
	if urlutil.IsWhitelisted(domain, m.cfg.Whitelist) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if size > m.cfg.LargePostThreshold {
		m.report(models.Report{
			Kind:     models.KindWebSocketAbuse,
			Severity: models.SeverityHigh,
			URL:      url,
			Domain:   domain,
			WebSocket: &models.WebSocketDetail{
				Connections: m.wsConnections,
				SendSize:    size,
			},
		})
	}
}

// Score recomputes the network threat score from the current counters.
// Each factor contributes a bounded slice; the total clamps to 100.
func (m *Monitor) Score() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoreLocked()
}

func (m *Monitor) scoreLocked() int {
	score := minInt(30, m.largePosts*10)
	score += minInt(30, m.ccHits*15)
	if m.wsConnections > m.cfg.WebSocketThreshold {
		score += 20
	}
	if m.dohRequests > m.cfg.DoHThreshold {
		score += 10
	}
	if m.crossOriginReq > m.cfg.CrossOriginThreshold {
		score += 10
	}
	return minInt(100, score)
}

// Counters returns a copy of the raw counters.
func (m *Monitor) Counters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Counters{
		LargePosts:          m.largePosts,
		TotalExfilBytes:     m.totalExfil,
		CCHits:              m.ccHits,
		WebSocketConns:      m.wsConnections,
		DoHRequests:         m.dohRequests,
		CrossOriginRequests: m.crossOriginReq,
	}
}

// Counters is a read-only view of the monitor state.
type Counters struct {
	LargePosts          int
	TotalExfilBytes     int64
	CCHits              int
	WebSocketConns      int
	DoHRequests         int
	CrossOriginRequests int
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
