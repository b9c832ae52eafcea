// Package fingerprint counts suspicious uses of fingerprintable browser
// capabilities and derives a 0-100 fingerprinting score. The monitor
// observes through instrumentation adapters; it never changes what the
// underlying capability returns unless noise injection is enabled.
package fingerprint

import (
	"strings"
	"sync"
	"time"

	"phishguard/pkg/models"
)

// Sink consumes fingerprinting reports.
type Sink interface {
	Report(report models.Report)
}

// Config carries the per-capability thresholds and toggles.
type Config struct {
	CanvasThreshold    int
	WebGLThreshold     int
	AudioThreshold     int
	FontThreshold      int
	StorageThreshold   int
	NavigatorThreshold int

	MonitorCanvas    bool
	MonitorWebGL     bool
	MonitorAudio     bool
	MonitorFonts     bool
	MonitorStorage   bool
	MonitorNavigator bool
	MonitorScreen    bool
	MonitorBattery   bool

	InjectCanvasNoise bool
	InjectAudioNoise  bool
}

// DefaultConfig returns the stock thresholds with every monitor on and
// noise injection off.
func DefaultConfig() Config {
	return Config{
		CanvasThreshold:    3,
		WebGLThreshold:     20,
		AudioThreshold:     2,
		FontThreshold:      50,
		StorageThreshold:   50,
		NavigatorThreshold: 10,
		MonitorCanvas:      true,
		MonitorWebGL:       true,
		MonitorAudio:       true,
		MonitorFonts:       true,
		MonitorStorage:     true,
		MonitorNavigator:   true,
		MonitorScreen:      true,
		MonitorBattery:     true,
	}
}

// fontDetectionStrings are the test strings font probes render to
// measure glyph widths.
var fontDetectionStrings = []string{
	"mmmmmmmmmmlli",
	"abcdefghijklmnopqrstuvwxyz0123456789",
	"The quick brown fox jumps over the lazy dog",
}

// Sensitive WebGL parameters that expose GPU vendor and renderer.
const (
	glVendor            = 0x1F00
	glRenderer          = 0x1F01
	glVersion           = 0x1F02
	unmaskedVendorWebGL = 0x9245
	unmaskedRenderer    = 0x9246
)

// Monitor holds the per-page fingerprinting counters. Counters only
// increase within a session; the score is always re-derived from them.
type Monitor struct {
	mu   sync.Mutex
	cfg  Config
	sink Sink
	url  string
	now  func() time.Time

	canvasOps       int
	canvasToDataURL int
	canvasImageData int
	canvasMeasure   int

	webglCalls  int
	webglParams map[uint32]int

	audioContexts    int
	audioOscillators int

	fontChecks   int
	fontsChecked map[string]struct{}

	localStorageWrites   int
	localStorageReads    int
	sessionStorageWrites int

	navigatorAccess map[string]int
	screenAccess    int
	batteryAccess   int

	firstDetection time.Time
	lastDetection  time.Time
}

// NewMonitor creates a page-scoped fingerprinting monitor.
func NewMonitor(cfg Config, url string, sink Sink) *Monitor {
	return &Monitor{
		cfg:             cfg,
		sink:            sink,
		url:             url,
		now:             time.Now,
		webglParams:     make(map[uint32]int),
		fontsChecked:    make(map[string]struct{}),
		navigatorAccess: make(map[string]int),
	}
}

// Score recomputes the fingerprinting score from the current counters.
// Capped additive rule: each category contributes a bounded slice and
// the total clamps to 100.
func (m *Monitor) Score() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scoreLocked()
}

func (m *Monitor) scoreLocked() int {
	score := 0

	if m.canvasOps > m.cfg.CanvasThreshold {
		score += minInt(20, m.canvasOps*2)
	}
	if m.webglCalls > m.cfg.WebGLThreshold {
		score += minInt(20, m.webglCalls)
	}
	if m.audioContexts > m.cfg.AudioThreshold {
		score += 15
	}
	if m.fontChecks > m.cfg.FontThreshold {
		score += 15
	}
	if m.localStorageWrites > m.cfg.StorageThreshold {
		score += 15
	}

	navTotal := 0
	for _, n := range m.navigatorAccess {
		navTotal += n
	}
	if navTotal > m.cfg.NavigatorThreshold*3 {
		score += 15
	}

	return minInt(100, score)
}

func (m *Monitor) report(technique models.FingerprintTechnique, severity models.Severity, count int, property string) {
	now := m.now()
	if m.firstDetection.IsZero() {
		m.firstDetection = now
	}
	m.lastDetection = now

	if m.sink == nil {
		return
	}
	m.sink.Report(models.Report{
		Kind:      models.KindFingerprinting,
		Severity:  severity,
		URL:       m.url,
		Score:     m.scoreLocked(),
		Timestamp: now,
		Fingerprint: &models.FingerprintDetail{
			Technique: technique,
			Count:     count,
			Property:  property,
		},
	})
}

func (m *Monitor) recordCanvasOp() {
	if m.canvasOps > m.cfg.CanvasThreshold {
		m.report(models.TechniqueCanvas, models.SeverityHigh, m.canvasOps, "")
	}
}

// RecordToDataURL counts one canvas pixel read-back via toDataURL.
func (m *Monitor) RecordToDataURL() {
	if !m.cfg.MonitorCanvas {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canvasToDataURL++
	m.canvasOps++
	m.recordCanvasOp()
}

// RecordGetImageData counts one canvas pixel read-back via getImageData.
func (m *Monitor) RecordGetImageData() {
	if !m.cfg.MonitorCanvas {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.canvasImageData++
	m.canvasOps++
	m.recordCanvasOp()
}

// RecordMeasureText counts a text-measurement call and classifies font
// probing by the rendered test string.
func (m *Monitor) RecordMeasureText(text, font string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.MonitorCanvas {
		m.canvasMeasure++
		m.canvasOps++
		if m.canvasMeasure > 20 {
			m.report(models.TechniqueCanvasText, models.SeverityMedium, m.canvasMeasure, "")
		}
	}

	if !m.cfg.MonitorFonts {
		return
	}
	for _, probe := range fontDetectionStrings {
		if strings.Contains(text, probe) {
			m.fontChecks++
			if font == "" {
				font = "unknown"
			}
			m.fontsChecked[font] = struct{}{}
			if m.fontChecks > m.cfg.FontThreshold {
				m.report(models.TechniqueFont, models.SeverityMedium, m.fontChecks, font)
			}
			break
		}
	}
}

// RecordWebGLParameter counts a WebGL getParameter call. Vendor and
// renderer queries report immediately at HIGH severity.
func (m *Monitor) RecordWebGLParameter(param uint32) {
	if !m.cfg.MonitorWebGL {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webglCalls++
	m.webglParams[param]++

	switch param {
	case glVendor, glRenderer, glVersion, unmaskedVendorWebGL, unmaskedRenderer:
		m.report(models.TechniqueWebGLGPU, models.SeverityHigh, m.webglCalls, "")
	}
	if m.webglCalls > m.cfg.WebGLThreshold {
		m.report(models.TechniqueWebGL, models.SeverityHigh, m.webglCalls, "")
	}
}

// RecordAudioContext counts an audio-context creation.
func (m *Monitor) RecordAudioContext() {
	if !m.cfg.MonitorAudio {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioContexts++
	if m.audioContexts > m.cfg.AudioThreshold {
		m.report(models.TechniqueAudio, models.SeverityHigh, m.audioContexts, "")
	}
}

// RecordOscillator counts an oscillator-node creation.
func (m *Monitor) RecordOscillator() {
	if !m.cfg.MonitorAudio {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioOscillators++
	if m.audioOscillators > 3 {
		m.report(models.TechniqueAudio, models.SeverityMedium, m.audioOscillators, "oscillator")
	}
}

// RecordStorageWrite counts a storage write; only localStorage writes
// feed the threshold.
func (m *Monitor) RecordStorageWrite(local bool) {
	if !m.cfg.MonitorStorage {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !local {
		m.sessionStorageWrites++
		return
	}
	m.localStorageWrites++
	if m.localStorageWrites > m.cfg.StorageThreshold {
		m.report(models.TechniqueLocalStorage, models.SeverityHigh, m.localStorageWrites, "")
	}
}

// RecordStorageRead counts a localStorage read.
func (m *Monitor) RecordStorageRead() {
	if !m.cfg.MonitorStorage {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.localStorageReads++
	if m.localStorageReads > 100 {
		m.report(models.TechniqueStorageReads, models.SeverityMedium, m.localStorageReads, "")
	}
}

// RecordNavigatorAccess counts a navigator property read.
func (m *Monitor) RecordNavigatorAccess(property string) {
	if !m.cfg.MonitorNavigator {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.navigatorAccess[property]++
	if m.navigatorAccess[property] > m.cfg.NavigatorThreshold {
		m.report(models.TechniqueNavigator, models.SeverityMedium, m.navigatorAccess[property], property)
	}
}

// RecordScreenAccess counts a screen property read.
func (m *Monitor) RecordScreenAccess(property string) {
	if !m.cfg.MonitorScreen {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.screenAccess++
	if m.screenAccess > 20 {
		m.report(models.TechniqueScreen, models.SeverityLow, m.screenAccess, property)
	}
}

// RecordBatteryAccess counts a battery API call.
func (m *Monitor) RecordBatteryAccess() {
	if !m.cfg.MonitorBattery {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batteryAccess++
	if m.batteryAccess > 2 {
		m.report(models.TechniqueBattery, models.SeverityLow, m.batteryAccess, "")
	}
}

// Counters returns a copy of the raw counters for summaries and tests.
func (m *Monitor) Counters() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()

	nav := make(map[string]int, len(m.navigatorAccess))
	for k, v := range m.navigatorAccess {
		nav[k] = v
	}
	return Counters{
		CanvasOps:          m.canvasOps,
		WebGLCalls:         m.webglCalls,
		AudioContexts:      m.audioContexts,
		FontChecks:         m.fontChecks,
		UniqueFonts:        len(m.fontsChecked),
		LocalStorageWrites: m.localStorageWrites,
		LocalStorageReads:  m.localStorageReads,
		NavigatorAccess:    nav,
		ScreenAccess:       m.screenAccess,
		BatteryAccess:      m.batteryAccess,
		FirstDetection:     m.firstDetection,
		LastDetection:      m.lastDetection,
	}
}

// Counters is a read-only view of the monitor state.
type Counters struct {
	CanvasOps          int
	WebGLCalls         int
	AudioContexts      int
	FontChecks         int
	UniqueFonts        int
	LocalStorageWrites int
	LocalStorageReads  int
	NavigatorAccess    map[string]int
	ScreenAccess       int
	BatteryAccess      int
	FirstDetection     time.Time
	LastDetection      time.Time
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
