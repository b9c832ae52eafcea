package aggregate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"phishguard/pkg/models"
)

type memStore struct {
	snap  *models.Snapshot
	saves int
}

func (s *memStore) SaveSnapshot(ctx context.Context, snap models.Snapshot) error {
	s.snap = &snap
	s.saves++
	return nil
}

func (s *memStore) LoadSnapshot(ctx context.Context) (*models.Snapshot, error) {
	return s.snap, nil
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(title, message string) {
	n.messages = append(n.messages, message)
}

func testClock() func() time.Time {
	t := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestCriticalReportAutoBlacklists(t *testing.T) {
	a := New(DefaultConfig(), WithClock(testClock()))

	a.Report(models.Report{
		Kind:     models.KindDataExfiltration,
		Severity: models.SeverityCritical,
		Domain:   "collector.example.net",
		Exfil:    &models.ExfilDetail{Size: 2 << 20},
	})

	if !a.Contains("collector.example.net") {
		t.Fatalf("critical report must blacklist the domain")
	}
	if stats := a.QueryStatistics(); stats.BlacklistedDomains != 1 {
		t.Fatalf("blacklisted domains = %d; want 1", stats.BlacklistedDomains)
	}
}

func TestHighReportDoesNotBlacklist(t *testing.T) {
	a := New(DefaultConfig(), WithClock(testClock()))

	a.Report(models.Report{
		Kind:     models.KindDataExfiltration,
		Severity: models.SeverityHigh,
		Domain:   "upload.example.net",
		Exfil:    &models.ExfilDetail{Size: 200 * 1024},
	})
	if a.Contains("upload.example.net") {
		t.Fatalf("HIGH non-behavioral report must not blacklist")
	}
}

func TestCCReportFeedsSeparateBlacklist(t *testing.T) {
	a := New(DefaultConfig(), WithClock(testClock()))

	a.Report(models.Report{
		Kind:     models.KindCCServer,
		Severity: models.SeverityCritical,
		Domain:   "panel.onion",
		CC:       &models.CCDetail{Reason: "URL matches known C&C server pattern"},
	})

	if !a.Contains("panel.onion") {
		t.Fatalf("C&C domain must be blacklisted")
	}
	stats := a.QueryStatistics()
	if stats.CCServersDetected != 1 {
		t.Fatalf("cc servers detected = %d; want 1", stats.CCServersDetected)
	}
	snap := a.Snapshot()
	if len(snap.CCServerBlacklist) != 1 || len(snap.DomainBlacklist) != 0 {
		t.Fatalf("C&C entries belong on the C&C list: %+v", snap)
	}
}

func TestBehavioralHighBlocksAndNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	a := New(DefaultConfig(), WithClock(testClock()), WithNotifier(notifier))

	a.Report(models.Report{
		Kind:     models.KindBehavioral,
		Severity: models.SeverityHigh,
		URL:      "https://login.suspect.example/account",
		Behavior: &models.BehaviorDetail{Behavior: models.BehaviorImmediatePassword},
	})

	if !a.Contains("login.suspect.example") {
		t.Fatalf("behavioral HIGH must blacklist the page domain")
	}
	stats := a.QueryStatistics()
	if stats.PhishingSitesBlocked != 1 {
		t.Fatalf("phishing sites blocked = %d; want 1", stats.PhishingSitesBlocked)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.messages))
	}
}

func TestBehavioralMediumIsHistoryOnly(t *testing.T) {
	notifier := &fakeNotifier{}
	a := New(DefaultConfig(), WithClock(testClock()), WithNotifier(notifier))

	a.Report(models.Report{
		Kind:     models.KindBehavioral,
		Severity: models.SeverityMedium,
		URL:      "https://popup.example.net/",
		Behavior: &models.BehaviorDetail{Behavior: models.BehaviorExcessivePopups},
	})

	if a.Contains("popup.example.net") {
		t.Fatalf("MEDIUM behavioral report must not blacklist")
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("MEDIUM behavioral report must not notify")
	}
	_, _, _, behavioral := a.Histories()
	if len(behavioral) != 1 {
		t.Fatalf("behavioral history = %d entries; want 1", len(behavioral))
	}
}

func TestHistoriesAreCapped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExfilHistoryCap = 3
	a := New(cfg, WithClock(testClock()))

	for i := 0; i < 5; i++ {
		a.Report(models.Report{
			Kind:     models.KindDataExfiltration,
			Severity: models.SeverityHigh,
			URL:      fmt.Sprintf("https://u%d.example.net/", i),
			Exfil:    &models.ExfilDetail{Size: int64(i)},
		})
	}

	_, exfil, _, _ := a.Histories()
	if len(exfil) != 3 {
		t.Fatalf("exfil history = %d entries; want 3", len(exfil))
	}
	// Oldest entries dropped first.
	if exfil[0].Exfil.Size != 2 || exfil[2].Exfil.Size != 4 {
		t.Fatalf("history kept wrong entries: %+v", exfil)
	}
}

func TestRequestCounters(t *testing.T) {
	a := New(DefaultConfig(), WithClock(testClock()))

	a.RecordRequest(false)
	a.RecordRequest(true)
	a.RecordRequest(false)

	stats := a.QueryStatistics()
	if stats.TotalRequests != 3 || stats.BlockedRequests != 1 {
		t.Fatalf("counters = %+v", stats)
	}
}

func TestToggleProtection(t *testing.T) {
	a := New(DefaultConfig(), WithClock(testClock()))

	if !a.Enabled() {
		t.Fatalf("protection must start enabled")
	}
	a.ToggleProtection(false)
	if a.Enabled() {
		t.Fatalf("toggle off failed")
	}
	if a.QueryStatistics().ProtectionEnabled {
		t.Fatalf("statistics must mirror the toggle")
	}
	a.ToggleProtection(true)
	if !a.Enabled() {
		t.Fatalf("toggle back on failed")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := &memStore{}
	clock := testClock()

	a := New(DefaultConfig(), WithClock(clock), WithStore(store))
	a.RecordRequest(true)
	a.Report(models.Report{
		Kind:     models.KindCCServer,
		Severity: models.SeverityCritical,
		Domain:   "panel.onion",
		CC:       &models.CCDetail{Reason: "pattern"},
	})
	a.ToggleProtection(false)
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	restored := New(DefaultConfig(), WithClock(clock), WithStore(store))
	if err := restored.Rehydrate(context.Background()); err != nil {
		t.Fatalf("rehydrate: %v", err)
	}

	if restored.Enabled() {
		t.Fatalf("rehydrate must restore the disabled state")
	}
	if !restored.Contains("panel.onion") {
		t.Fatalf("rehydrate must restore the blacklists")
	}
	stats := restored.QueryStatistics()
	if stats.TotalRequests != 1 || stats.BlockedRequests != 1 {
		t.Fatalf("restored counters = %+v", stats)
	}
}

func TestFlushSkipsWhenClean(t *testing.T) {
	store := &memStore{}
	a := New(DefaultConfig(), WithClock(testClock()), WithStore(store))

	a.RecordRequest(false)
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := a.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if store.saves != 1 {
		t.Fatalf("clean flush must not rewrite, saves = %d", store.saves)
	}
}

func TestRehydrateWithoutSnapshotIsClean(t *testing.T) {
	a := New(DefaultConfig(), WithClock(testClock()), WithStore(&memStore{}))
	if err := a.Rehydrate(context.Background()); err != nil {
		t.Fatalf("rehydrate on empty store: %v", err)
	}
	if stats := a.QueryStatistics(); stats.TotalRequests != 0 {
		t.Fatalf("clean start expected, got %+v", stats)
	}
}

func TestWhitelistedDomainNeverBlacklisted(t *testing.T) {
	a := New(DefaultConfig(),
		WithClock(testClock()),
		WithWhitelist([]string{"google.com", "github.com"}))

	a.Report(models.Report{
		Kind:     models.KindDataExfiltration,
		Severity: models.SeverityCritical,
		Domain:   "docs.google.com",
		Exfil:    &models.ExfilDetail{Size: 2 << 20},
	})
	a.AddDomain("github.com", "manual block")

	if a.Contains("docs.google.com") || a.Contains("github.com") {
		t.Fatalf("whitelisted domains must never be blacklisted")
	}
	if stats := a.QueryStatistics(); stats.BlacklistedDomains != 0 {
		t.Fatalf("blacklisted domains = %d; want 0", stats.BlacklistedDomains)
	}
}

func TestCCReportWithoutDetailIsHandled(t *testing.T) {
	notifier := &fakeNotifier{}
	a := New(DefaultConfig(), WithClock(testClock()), WithNotifier(notifier))

	// A bridge caller may omit the detail payload; the report must
	// still land instead of taking down aggregation.
	a.Report(models.Report{
		Kind:     models.KindCCServer,
		Severity: models.SeverityCritical,
		Domain:   "evil.example.net",
	})

	if !a.Contains("evil.example.net") {
		t.Fatalf("detail-less C&C report must still blacklist")
	}
	snap := a.Snapshot()
	if len(snap.CCServerBlacklist) != 1 || snap.CCServerBlacklist[0].Reason != string(models.KindCCServer) {
		t.Fatalf("unexpected C&C entry: %+v", snap.CCServerBlacklist)
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(notifier.messages))
	}
}

func TestPortTierCCReportEntersCCSet(t *testing.T) {
	notifier := &fakeNotifier{}
	a := New(DefaultConfig(), WithClock(testClock()), WithNotifier(notifier))

	a.Report(models.Report{
		Kind:     models.KindCCServer,
		Severity: models.SeverityHigh,
		Domain:   "beacon.example.net",
		CC:       &models.CCDetail{Port: 1337, Reason: "Connection to suspicious port"},
	})

	if !a.Contains("beacon.example.net") {
		t.Fatalf("every C&C hit tier must enter the C&C set")
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("non-critical C&C hit must not notify, got %d", len(notifier.messages))
	}
}

func TestCriticalReportNotifies(t *testing.T) {
	notifier := &fakeNotifier{}
	a := New(DefaultConfig(), WithClock(testClock()), WithNotifier(notifier))

	a.Report(models.Report{
		Kind:     models.KindDataExfiltration,
		Severity: models.SeverityCritical,
		Domain:   "collector.example.net",
		Exfil:    &models.ExfilDetail{Size: 2 << 20},
	})

	if len(notifier.messages) != 1 {
		t.Fatalf("critical report must notify, got %d messages", len(notifier.messages))
	}
}
