package netmon

import (
	"testing"
	"time"

	"phishguard/pkg/models"
)

type captureSink struct {
	reports []models.Report
}

func (s *captureSink) Report(r models.Report) {
	s.reports = append(s.reports, r)
}

func (s *captureSink) byKind(kind models.ReportKind) []models.Report {
	var out []models.Report
	for _, r := range s.reports {
		if r.Kind == kind {
			out = append(out, r)
		}
	}
	return out
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type staticBlacklist map[string]bool

func (b staticBlacklist) Contains(domain string) bool { return b[domain] }

func newTestMonitor(t *testing.T, cfg Config, opts ...Option) (*Monitor, *captureSink, *fakeClock) {
	t.Helper()
	sink := &captureSink{}
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.now)}, opts...)
	m, err := NewMonitor(cfg, sink, opts...)
	if err != nil {
		t.Fatalf("NewMonitor: %v", err)
	}
	return m, sink, clock
}

func get(url string) models.RequestEvent {
	return models.RequestEvent{URL: url, Method: "GET"}
}

func TestWhitelistedDomainSkipsAllChecks(t *testing.T) {
	m, sink, _ := newTestMonitor(t, DefaultConfig())

	// Suspicious port on a whitelisted domain: still allowed, no report.
	d := m.HandleRequest(get("https://api.google.com:4444/upload"))
	if d.Action != ActionAllow {
		t.Fatalf("whitelisted request action = %v; want allow", d.Action)
	}
	if len(sink.reports) != 0 {
		t.Fatalf("whitelisted request must not report, got %d", len(sink.reports))
	}
}

func TestCCPatternBlocksAndReports(t *testing.T) {
	m, sink, _ := newTestMonitor(t, DefaultConfig())

	d := m.HandleRequest(get("http://abcdef.onion/panel"))
	if d.Action != ActionBlock {
		t.Fatalf("onion endpoint action = %v; want block", d.Action)
	}
	reports := sink.byKind(models.KindCCServer)
	if len(reports) != 1 {
		t.Fatalf("expected 1 C&C report, got %d", len(reports))
	}
	if reports[0].Severity != models.SeverityCritical {
		t.Fatalf("severity = %v; want CRITICAL", reports[0].Severity)
	}
	if c := m.Counters(); c.CCHits != 1 {
		t.Fatalf("cc hits = %d; want 1", c.CCHits)
	}
}

func TestSuspiciousPortReportsHigh(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoBlockCCServers = false
	m, sink, _ := newTestMonitor(t, cfg)

	d := m.HandleRequest(get("https://telemetry.example.net:1337/beacon"))
	if d.Action != ActionAllow {
		t.Fatalf("without auto-block action = %v; want allow", d.Action)
	}
	reports := sink.byKind(models.KindCCServer)
	if len(reports) != 1 || reports[0].Severity != models.SeverityHigh {
		t.Fatalf("expected 1 HIGH port report, got %+v", reports)
	}
	if reports[0].CC.Port != 1337 {
		t.Fatalf("port = %d; want 1337", reports[0].CC.Port)
	}
	if c := m.Counters(); c.CCHits != 0 {
		t.Fatalf("port-tier hits must not feed the score, cc hits = %d", c.CCHits)
	}
}

func TestBlockDegradesWithoutBlockingCapability(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CanBlock = false
	m, _, _ := newTestMonitor(t, cfg)

	d := m.HandleRequest(get("http://abcdef.onion/panel"))
	if d.Action != ActionObserve {
		t.Fatalf("action without blocking hook = %v; want observe", d.Action)
	}
}

func TestBlacklistedDomainBlocked(t *testing.T) {
	m, sink, _ := newTestMonitor(t, DefaultConfig(),
		WithBlacklist(staticBlacklist{"stolen.example.net": true}))

	d := m.HandleRequest(get("https://stolen.example.net/login"))
	if d.Action != ActionBlock {
		t.Fatalf("blacklisted domain action = %v; want block", d.Action)
	}
	if len(sink.reports) != 0 {
		t.Fatalf("blacklist block needs no new report, got %d", len(sink.reports))
	}
}

func TestLargePostReportsExfiltration(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoBlockLargeExfiltration = false
	m, sink, _ := newTestMonitor(t, cfg)

	body := &models.RequestBody{RawParts: [][]byte{make([]byte, 100*1024+1)}}
	m.HandleRequest(models.RequestEvent{
		URL:    "https://collector.example.net/upload",
		Method: "POST",
		Body:   body,
	})

	reports := sink.byKind(models.KindDataExfiltration)
	if len(reports) != 1 {
		t.Fatalf("expected 1 exfiltration report, got %d", len(reports))
	}
	if reports[0].Severity != models.SeverityHigh {
		t.Fatalf("severity = %v; want HIGH", reports[0].Severity)
	}
	if reports[0].Exfil.Size != 100*1024+1 {
		t.Fatalf("size = %d", reports[0].Exfil.Size)
	}
}

func TestCriticalPostBlocks(t *testing.T) {
	m, sink, _ := newTestMonitor(t, DefaultConfig())

	body := &models.RequestBody{RawParts: [][]byte{make([]byte, 1024*1024+1)}}
	d := m.HandleRequest(models.RequestEvent{
		URL:    "https://collector.example.net/upload",
		Method: "POST",
		Body:   body,
	})
	if d.Action != ActionBlock {
		t.Fatalf("critical upload action = %v; want block", d.Action)
	}
	reports := sink.byKind(models.KindDataExfiltration)
	if len(reports) != 1 || reports[0].Severity != models.SeverityCritical {
		t.Fatalf("expected 1 CRITICAL exfiltration report, got %+v", reports)
	}
}

func TestRateLimitFixedWindow(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxRequestsPerMinute = 5
	m, sink, clock := newTestMonitor(t, cfg)

	for i := 0; i < 5; i++ {
		m.HandleRequest(get("https://burst.example.net/api"))
	}
	if len(sink.byKind(models.KindRateLimitExceeded)) != 0 {
		t.Fatalf("no rate report expected at threshold")
	}

	m.HandleRequest(get("https://burst.example.net/api"))
	reports := sink.byKind(models.KindRateLimitExceeded)
	if len(reports) != 1 {
		t.Fatalf("expected 1 rate report, got %d", len(reports))
	}
	if reports[0].RateLimit.RequestCount != 6 {
		t.Fatalf("request count = %d; want 6", reports[0].RateLimit.RequestCount)
	}

	// The window is fixed: once it expires the counter restarts.
	clock.advance(61 * time.Second)
	m.HandleRequest(get("https://burst.example.net/api"))
	if got := sink.byKind(models.KindRateLimitExceeded); len(got) != 1 {
		t.Fatalf("expired window must reset the counter, got %d reports", len(got))
	}
}

func TestCrossOriginFanOut(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CrossOriginThreshold = 3
	m, sink, _ := newTestMonitor(t, cfg)

	for i := 0; i < 3; i++ {
		m.HandleRequest(models.RequestEvent{
			URL:       "https://third-party.example.net/pixel",
			Method:    "GET",
			Initiator: "https://page.example.org/",
		})
	}
	if len(sink.byKind(models.KindCrossOriginAbuse)) != 0 {
		t.Fatalf("no cross-origin report expected at threshold")
	}

	m.HandleRequest(models.RequestEvent{
		URL:       "https://other.example.net/pixel",
		Method:    "GET",
		Initiator: "https://page.example.org/",
	})
	reports := sink.byKind(models.KindCrossOriginAbuse)
	if len(reports) != 1 {
		t.Fatalf("expected 1 cross-origin report, got %d", len(reports))
	}
	if reports[0].CrossOrigin.OriginDomain != "page.example.org" {
		t.Fatalf("origin = %q", reports[0].CrossOrigin.OriginDomain)
	}
	if reports[0].CrossOrigin.UniqueDomains != 2 {
		t.Fatalf("unique domains = %d; want 2", reports[0].CrossOrigin.UniqueDomains)
	}
}

func TestSameOriginRequestsNotCounted(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CrossOriginThreshold = 1
	m, sink, _ := newTestMonitor(t, cfg)

	for i := 0; i < 5; i++ {
		m.HandleRequest(models.RequestEvent{
			URL:       "https://page.example.org/api",
			Method:    "GET",
			Initiator: "https://page.example.org/",
		})
	}
	if len(sink.byKind(models.KindCrossOriginAbuse)) != 0 {
		t.Fatalf("same-origin traffic must not count as cross-origin")
	}
}

func TestDoHReportsOnlyPastThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DoHThreshold = 2
	m, sink, _ := newTestMonitor(t, cfg)

	m.HandleRequest(get("https://cloudflare-dns.com/dns-query?name=example.com"))
	m.HandleRequest(get("https://resolver.example.net/dns-query"))
	if len(sink.byKind(models.KindDoHUsage)) != 0 {
		t.Fatalf("no DoH report expected at or below threshold")
	}

	// Unknown resolver, detected by path, crosses the threshold.
	m.HandleRequest(get("https://resolver.example.net/dns-query"))
	reports := sink.byKind(models.KindDoHUsage)
	if len(reports) != 1 {
		t.Fatalf("expected 1 DoH report past threshold, got %d", len(reports))
	}
	if reports[0].DoH.Provider != "resolver.example.net" || reports[0].DoH.Count != 3 {
		t.Fatalf("unexpected DoH detail: %+v", reports[0].DoH)
	}

	// Provider-host detection keeps reporting past the threshold.
	m.HandleRequest(get("https://cloudflare-dns.com/dns-query?name=example.org"))
	reports = sink.byKind(models.KindDoHUsage)
	if len(reports) != 2 || reports[1].DoH.Provider != "cloudflare-dns.com" {
		t.Fatalf("unexpected DoH reports: %+v", reports)
	}
}

func TestSuspiciousHeaderDetection(t *testing.T) {
	m, sink, _ := newTestMonitor(t, DefaultConfig())

	m.HandleRequest(models.RequestEvent{
		URL:    "https://api.example.net/data",
		Method: "GET",
		Headers: map[string]string{
			"X-Forwarded-For": "10.0.0.1",
			"Accept":          "application/json",
		},
	})
	reports := sink.byKind(models.KindSuspiciousHeader)
	if len(reports) != 1 {
		t.Fatalf("expected 1 header report, got %d", len(reports))
	}
	if reports[0].Header.Header != "x-forwarded-for" {
		t.Fatalf("header = %q", reports[0].Header.Header)
	}
	if reports[0].Severity != models.SeverityLow {
		t.Fatalf("severity = %v; want LOW", reports[0].Severity)
	}
}

func TestLargeWebSocketSendReports(t *testing.T) {
	m, sink, _ := newTestMonitor(t, DefaultConfig())

	m.RecordWebSocketSend("wss://relay.example.net/sock", 10*1024)
	if len(sink.reports) != 0 {
		t.Fatalf("small send must not report")
	}

	m.RecordWebSocketSend("wss://relay.example.net/sock", 200*1024)
	reports := sink.byKind(models.KindWebSocketAbuse)
	if len(reports) != 1 || reports[0].Severity != models.SeverityHigh {
		t.Fatalf("unexpected send reports: %+v", reports)
	}
	if reports[0].WebSocket.SendSize != 200*1024 {
		t.Fatalf("send size = %d", reports[0].WebSocket.SendSize)
	}
}

func TestWebSocketThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebSocketThreshold = 2
	m, sink, _ := newTestMonitor(t, cfg)

	for i := 0; i < 2; i++ {
		m.HandleRequest(models.RequestEvent{URL: "wss://relay.example.net/sock", Method: "GET"})
	}
	if len(sink.byKind(models.KindWebSocketAbuse)) != 0 {
		t.Fatalf("no websocket report expected at threshold")
	}
	m.HandleRequest(models.RequestEvent{URL: "wss://relay.example.net/sock", Method: "GET"})
	reports := sink.byKind(models.KindWebSocketAbuse)
	if len(reports) != 1 || reports[0].WebSocket.Connections != 3 {
		t.Fatalf("unexpected websocket reports: %+v", reports)
	}
}

func TestScoreFormula(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoBlockCCServers = false
	cfg.AutoBlockLargeExfiltration = false
	m, _, _ := newTestMonitor(t, cfg)

	if m.Score() != 0 {
		t.Fatalf("fresh score = %d; want 0", m.Score())
	}

	// Two large posts and one pattern-tier C&C hit:
	// min(30,20) + min(30,15) = 35.
	body := &models.RequestBody{RawParts: [][]byte{make([]byte, 200*1024)}}
	m.HandleRequest(models.RequestEvent{URL: "https://a.example.net/u", Method: "POST", Body: body})
	m.HandleRequest(models.RequestEvent{URL: "https://b.example.net/u", Method: "POST", Body: body})
	m.HandleRequest(get("http://panela.onion/c2"))

	if got := m.Score(); got != 35 {
		t.Fatalf("score = %d; want 35", got)
	}

	// Port-tier hits report but do not move the score.
	m.HandleRequest(get("https://c.example.net:4444/"))
	if got := m.Score(); got != 35 {
		t.Fatalf("score after port hit = %d; want 35", got)
	}

	// Pattern hits saturate their slice at 30.
	m.HandleRequest(get("http://panelb.onion/c2"))
	m.HandleRequest(get("http://panelc.onion/c2"))
	if got := m.Score(); got != 50 {
		t.Fatalf("score = %d; want 50 (20 + capped 30)", got)
	}
}

func TestDisabledProtectionAllowsEverything(t *testing.T) {
	m, sink, _ := newTestMonitor(t, DefaultConfig(),
		WithEnabled(func() bool { return false }))

	d := m.HandleRequest(get("http://abcdef.onion/panel"))
	if d.Action != ActionAllow {
		t.Fatalf("disabled protection action = %v; want allow", d.Action)
	}
	if len(sink.reports) != 0 {
		t.Fatalf("disabled protection must not report")
	}
}

type staticRules struct {
	verdicts []RuleVerdict
}

func (r staticRules) Evaluate(models.RequestEvent) []RuleVerdict { return r.verdicts }

func TestRuleEngineVerdictsReported(t *testing.T) {
	m, sink, _ := newTestMonitor(t, DefaultConfig(), WithRules(staticRules{
		verdicts: []RuleVerdict{{RuleID: "r1", RuleName: "beacon interval", Severity: models.SeverityHigh}},
	}))

	m.HandleRequest(get("https://plain.example.net/"))
	reports := sink.byKind(models.KindRuleMatch)
	if len(reports) != 1 {
		t.Fatalf("expected 1 rule report, got %d", len(reports))
	}
	if reports[0].RuleMatch.RuleID != "r1" {
		t.Fatalf("rule id = %q", reports[0].RuleMatch.RuleID)
	}
}
