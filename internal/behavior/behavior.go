// Package behavior holds the page-level phishing detectors: password
// timing, redirect cadence, form analysis, input focus, clipboard,
// popups and auto-submit scanning. One PageMonitor exists per page
// load; its counters reset only with the page.
package behavior

import (
	"strings"
	"sync"
	"time"

	"phishguard/internal/urlutil"
	"phishguard/pkg/models"
)

// Sink consumes behavioral reports.
type Sink interface {
	Report(report models.Report)
}

// Warner renders an in-page warning for HIGH and CRITICAL detections.
type Warner interface {
	Show(kind models.BehaviorKind, detail *models.BehaviorDetail)
}

// Config carries the behavioral thresholds.
type Config struct {
	ImmediatePasswordThreshold time.Duration
	RapidRedirectThreshold     time.Duration
	RapidRedirectCount         int
	SensitiveFocusWindow       time.Duration
	ClipboardPasteThreshold    int
	PopupThreshold             int
	AutoSubmitScanDelay        time.Duration
	SuspiciousParamKeywords    []string
	SensitiveFieldPatterns     []string

	TrackInputFocus    bool
	TrackClipboard     bool
	BlockExternalForms bool
}

// DefaultConfig returns the stock behavioral thresholds.
func DefaultConfig() Config {
	return Config{
		ImmediatePasswordThreshold: 2000 * time.Millisecond,
		RapidRedirectThreshold:     1000 * time.Millisecond,
		RapidRedirectCount:         3,
		SensitiveFocusWindow:       1000 * time.Millisecond,
		ClipboardPasteThreshold:    10,
		PopupThreshold:             3,
		AutoSubmitScanDelay:        2 * time.Second,
		SuspiciousParamKeywords:    []string{"redirect", "return", "next", "continue", "goto", "url", "link"},
		SensitiveFieldPatterns:     []string{"password", "credit-card", "cvv"},
		TrackInputFocus:            true,
		TrackClipboard:             true,
		BlockExternalForms:         true,
	}
}

// FormInput describes one input element of a form.
type FormInput struct {
	Type         string
	Name         string
	Autocomplete string
}

// FormSubmission is a form submit observed in the capture phase, before
// the default navigation runs.
type FormSubmission struct {
	Action string
	Method string
	Inputs []FormInput
}

// FormScan is a form's static content for the auto-submit scan.
type FormScan struct {
	Action        string
	ID            string
	InlineScripts []string
}

// Decision is the monitor's verdict on a form submission.
type Decision struct {
	Block  bool
	Reason models.BehaviorKind
}

// PageMonitor runs all behavioral detectors for one page load.
type PageMonitor struct {
	mu      sync.Mutex
	cfg     Config
	sink    Sink
	warner  Warner
	enabled func() bool
	now     func() time.Time

	url        string
	pageOrigin string
	loadedAt   time.Time

	passwordSeen     bool
	passwordReported bool

	redirectCount    int
	lastRedirect     time.Time
	redirectReported bool

	pasteCount  int
	popupCount  int
	onPopup     func(url string, count int)
	modalActive bool

	formSubmissions int
	focusEvents     int
}

// Option configures optional collaborators of a PageMonitor.
type Option func(*PageMonitor)

// WithWarner installs the in-page warning surface.
func WithWarner(w Warner) Option {
	return func(m *PageMonitor) { m.warner = w }
}

// WithEnabled installs the protection kill-switch check. Detectors
// no-op at the top of each handler while it returns false; no state is
// unregistered, so re-enabling is cheap.
func WithEnabled(enabled func() bool) Option {
	return func(m *PageMonitor) { m.enabled = enabled }
}

// WithClock overrides the monitor clock.
func WithClock(now func() time.Time) Option {
	return func(m *PageMonitor) { m.now = now }
}

// WithPopupListener forwards every popup attempt as a raw event,
// independent of the excessive-popup threshold.
func WithPopupListener(fn func(url string, count int)) Option {
	return func(m *PageMonitor) { m.onPopup = fn }
}

// NewPageMonitor creates the per-page monitor anchored at the load time
// of its page.
func NewPageMonitor(cfg Config, pageURL string, sink Sink, opts ...Option) *PageMonitor {
	m := &PageMonitor{
		cfg:     cfg,
		sink:    sink,
		url:     pageURL,
		enabled: func() bool { return true },
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.loadedAt = m.now()
	m.lastRedirect = m.loadedAt
	m.pageOrigin = originOf(pageURL)
	return m
}

func originOf(raw string) string {
	if i := strings.Index(raw, "://"); i > 0 {
		rest := raw[i+3:]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			return raw[:i+3+j]
		}
		return raw
	}
	return ""
}

func (m *PageMonitor) report(kind models.BehaviorKind, severity models.Severity, detail *models.BehaviorDetail) {
	detail.Behavior = kind
	if m.sink != nil {
		m.sink.Report(models.Report{
			Kind:      models.KindBehavioral,
			Severity:  severity,
			URL:       m.url,
			Timestamp: m.now(),
			Behavior:  detail,
		})
	}

	// One modal at a time. A second HIGH/CRITICAL trigger while one is
	// displayed is suppressed, not queued.
	if severity.AtLeast(models.SeverityHigh) && m.warner != nil && !m.modalActive {
		m.modalActive = true
		m.warner.Show(kind, detail)
	}
}

// WarningDismissed clears the modal gate after the user closes the
// warning overlay.
func (m *PageMonitor) WarningDismissed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modalActive = false
}

// ObservePasswordField handles the appearance of a password input,
// whether present at load or inserted later. Fires at most once per
// page load.
func (m *PageMonitor) ObservePasswordField(fieldCount int) {
	if !m.enabled() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.passwordSeen {
		return
	}
	m.passwordSeen = true

	delta := m.now().Sub(m.loadedAt)
	if delta < m.cfg.ImmediatePasswordThreshold && !m.passwordReported {
		m.passwordReported = true
		m.report(models.BehaviorImmediatePassword, models.SeverityHigh, &models.BehaviorDetail{
			TimeDeltaMS: delta.Milliseconds(),
			Count:       fieldCount,
		})
	}
}

// ObserveUnload handles a page unload for redirect-cadence tracking.
// Spaced-out redirects reset the counter to 1, not 0: a lone redirect
// after a quiet period already counts toward the threshold.
func (m *PageMonitor) ObserveUnload() {
	if !m.enabled() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	sinceLast := now.Sub(m.lastRedirect)
	if sinceLast < m.cfg.RapidRedirectThreshold {
		m.redirectCount++
		if m.redirectCount >= m.cfg.RapidRedirectCount && !m.redirectReported {
			m.redirectReported = true
			m.report(models.BehaviorRapidRedirects, models.SeverityCritical, &models.BehaviorDetail{
				Count:       m.redirectCount,
				TimeDeltaMS: sinceLast.Milliseconds(),
			})
		}
	} else {
		m.redirectCount = 1
	}
	m.lastRedirect = now
}

// ObserveFormSubmit classifies a form submission and decides whether
// the default action must be prevented.
func (m *PageMonitor) ObserveFormSubmit(form FormSubmission) Decision {
	if !m.enabled() {
		return Decision{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.formSubmissions++

	action := form.Action
	if action == "" {
		action = m.url
	}

	var hasPassword, hasIdentity, hasCard bool
	for _, in := range form.Inputs {
		name := strings.ToLower(in.Name)
		switch {
		case in.Type == "password":
			hasPassword = true
		case in.Type == "email" || strings.Contains(name, "email"):
			hasIdentity = true
		case strings.Contains(name, "user") || strings.Contains(name, "login"):
			hasIdentity = true
		case strings.Contains(name, "card") || strings.Contains(name, "cc") || in.Autocomplete == "cc-number":
			hasCard = true
		}
	}
	hasCredentials := hasPassword || hasIdentity || hasCard

	// An unparsable action is treated as same-origin; the original
	// swallows the URL parse error and skips the cross-origin check.
	formOrigin := originOf(action)
	crossOrigin := formOrigin != "" && m.pageOrigin != "" && !urlutil.SameOrigin(action, m.url)

	if crossOrigin && hasCredentials && m.cfg.BlockExternalForms {
		m.report(models.BehaviorExternalFormSubmit, models.SeverityCritical, &models.BehaviorDetail{
			FormAction: action,
			FormOrigin: formOrigin,
			PageOrigin: m.pageOrigin,
		})
		return Decision{Block: true, Reason: models.BehaviorExternalFormSubmit}
	}

	lowered := strings.ToLower(action)
	var keywords []string
	for _, kw := range m.cfg.SuspiciousParamKeywords {
		if strings.Contains(lowered, kw) {
			keywords = append(keywords, kw)
		}
	}
	if len(keywords) > 0 && hasPassword {
		m.report(models.BehaviorSuspiciousParams, models.SeverityMedium, &models.BehaviorDetail{
			FormAction: action,
			Keywords:   keywords,
		})
	}

	return Decision{}
}

// ObserveFocus handles a focus event on an input element. A sensitive
// field focused within the window after load is suspicious.
func (m *PageMonitor) ObserveFocus(input FormInput) {
	if !m.enabled() || !m.cfg.TrackInputFocus {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.focusEvents++

	delta := m.now().Sub(m.loadedAt)
	if delta >= m.cfg.SensitiveFocusWindow {
		return
	}
	name := strings.ToLower(input.Name)
	for _, pattern := range m.cfg.SensitiveFieldPatterns {
		if strings.Contains(input.Type, pattern) || strings.Contains(name, pattern) {
			m.report(models.BehaviorSensitiveFocus, models.SeverityMedium, &models.BehaviorDetail{
				InputName:   input.Name,
				TimeDeltaMS: delta.Milliseconds(),
			})
			return
		}
	}
}

// ObservePaste counts a clipboard paste or programmatic clipboard read.
func (m *PageMonitor) ObservePaste() {
	if !m.enabled() || !m.cfg.TrackClipboard {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pasteCount++
	if m.pasteCount > m.cfg.ClipboardPasteThreshold {
		m.report(models.BehaviorClipboardAbuse, models.SeverityMedium, &models.BehaviorDetail{
			Count: m.pasteCount,
		})
	}
}

// ObservePopup counts a window-open call. Every call is forwarded as a
// raw event; crossing the threshold additionally reports.
func (m *PageMonitor) ObservePopup(targetURL string) {
	if !m.enabled() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.popupCount++
	if m.onPopup != nil {
		m.onPopup(targetURL, m.popupCount)
	}
	if m.popupCount > m.cfg.PopupThreshold {
		m.report(models.BehaviorExcessivePopups, models.SeverityMedium, &models.BehaviorDetail{
			Count: m.popupCount,
		})
	}
}

// ScanAutoSubmit inspects each form's inline scripts for code that
// triggers submission without user action. Runs once per page load,
// normally via Start's delayed timer.
func (m *PageMonitor) ScanAutoSubmit(forms []FormScan) {
	if !m.enabled() {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, form := range forms {
		for _, script := range form.InlineScripts {
			if strings.Contains(script, "submit()") || strings.Contains(script, ".submit") {
				m.report(models.BehaviorAutoSubmitForm, models.SeverityHigh, &models.BehaviorDetail{
					FormAction: form.Action,
					InputName:  form.ID,
				})
				break
			}
		}
	}
}

// Start schedules the delayed auto-submit scan against the given form
// source. Returns the timer so the caller can stop it on page teardown.
func (m *PageMonitor) Start(forms func() []FormScan) *time.Timer {
	return time.AfterFunc(m.cfg.AutoSubmitScanDelay, func() {
		m.ScanAutoSubmit(forms())
	})
}

// Counters returns the raw behavioral counters.
func (m *PageMonitor) Counters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Counters{
		RedirectCount:   m.redirectCount,
		PasteCount:      m.pasteCount,
		PopupCount:      m.popupCount,
		FormSubmissions: m.formSubmissions,
		FocusEvents:     m.focusEvents,
	}
}

// Counters is a read-only view of the per-page state.
type Counters struct {
	RedirectCount   int
	PasteCount      int
	PopupCount      int
	FormSubmissions int
	FocusEvents     int
}
