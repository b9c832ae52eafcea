package fingerprint

// Instrumentation adapters: one small interface per monitored browser
// capability. Production wiring wraps the real host API; tests plug in
// counting stubs. The instrumented wrappers count through the monitor
// and delegate, leaving the underlying result untouched except when
// noise injection is enabled.

// CanvasAPI is the canvas surface the page can read pixels back from.
type CanvasAPI interface {
	ToDataURL() string
	GetImageData(x, y, w, h int) []byte
	MeasureText(text string) float64
	Font() string
}

// WebGLAPI exposes WebGL parameter queries.
type WebGLAPI interface {
	GetParameter(param uint32) interface{}
}

// AudioAPI exposes audio-context creation and sample read-back.
type AudioAPI interface {
	CreateContext() error
	CreateOscillator() error
	GetChannelData() []float32
}

// StorageAPI is a local/session storage pair.
type StorageAPI interface {
	GetItem(key string) string
	SetItem(key, value string)
}

// NavigatorAPI exposes navigator property reads.
type NavigatorAPI interface {
	Property(name string) string
}

// ScreenAPI exposes screen property reads.
type ScreenAPI interface {
	Property(name string) int
}

// BatteryAPI exposes the battery status call.
type BatteryAPI interface {
	GetBattery() (float64, error)
}

type instrumentedCanvas struct {
	api   CanvasAPI
	mon   *Monitor
	noise *noiseSource
}

// InstrumentCanvas wraps a canvas so pixel read-backs and text
// measurements are counted. With canvas noise enabled, returned pixel
// data is perturbed by at most one step per channel.
func (m *Monitor) InstrumentCanvas(api CanvasAPI) CanvasAPI {
	c := &instrumentedCanvas{api: api, mon: m}
	if m.cfg.InjectCanvasNoise {
		c.noise = newNoiseSource(canvasNoiseSeed)
	}
	return c
}

func (c *instrumentedCanvas) ToDataURL() string {
	c.mon.RecordToDataURL()
	return c.api.ToDataURL()
}

func (c *instrumentedCanvas) GetImageData(x, y, w, h int) []byte {
	c.mon.RecordGetImageData()
	data := c.api.GetImageData(x, y, w, h)
	if c.noise != nil {
		data = c.noise.perturbBytes(data)
	}
	return data
}

func (c *instrumentedCanvas) MeasureText(text string) float64 {
	c.mon.RecordMeasureText(text, c.api.Font())
	return c.api.MeasureText(text)
}

func (c *instrumentedCanvas) Font() string { return c.api.Font() }

type instrumentedWebGL struct {
	api WebGLAPI
	mon *Monitor
}

// InstrumentWebGL wraps a WebGL context so parameter queries are counted.
func (m *Monitor) InstrumentWebGL(api WebGLAPI) WebGLAPI {
	return &instrumentedWebGL{api: api, mon: m}
}

func (g *instrumentedWebGL) GetParameter(param uint32) interface{} {
	g.mon.RecordWebGLParameter(param)
	return g.api.GetParameter(param)
}

type instrumentedAudio struct {
	api   AudioAPI
	mon   *Monitor
	noise *noiseSource
}

// InstrumentAudio wraps an audio backend so context and oscillator
// creation are counted. With audio noise enabled, sample read-backs are
// perturbed within one quantization step.
func (m *Monitor) InstrumentAudio(api AudioAPI) AudioAPI {
	a := &instrumentedAudio{api: api, mon: m}
	if m.cfg.InjectAudioNoise {
		a.noise = newNoiseSource(audioNoiseSeed)
	}
	return a
}

func (a *instrumentedAudio) CreateContext() error {
	a.mon.RecordAudioContext()
	return a.api.CreateContext()
}

func (a *instrumentedAudio) CreateOscillator() error {
	a.mon.RecordOscillator()
	return a.api.CreateOscillator()
}

func (a *instrumentedAudio) GetChannelData() []float32 {
	data := a.api.GetChannelData()
	if a.noise != nil {
		data = a.noise.perturbSamples(data)
	}
	return data
}

type instrumentedStorage struct {
	api   StorageAPI
	mon   *Monitor
	local bool
}

// InstrumentStorage wraps a storage area; local selects the
// localStorage counters over the sessionStorage ones.
func (m *Monitor) InstrumentStorage(api StorageAPI, local bool) StorageAPI {
	return &instrumentedStorage{api: api, mon: m, local: local}
}

func (s *instrumentedStorage) GetItem(key string) string {
	if s.local {
		s.mon.RecordStorageRead()
	}
	return s.api.GetItem(key)
}

func (s *instrumentedStorage) SetItem(key, value string) {
	s.mon.RecordStorageWrite(s.local)
	s.api.SetItem(key, value)
}

type instrumentedNavigator struct {
	api NavigatorAPI
	mon *Monitor
}

// InstrumentNavigator wraps navigator property reads.
func (m *Monitor) InstrumentNavigator(api NavigatorAPI) NavigatorAPI {
	return &instrumentedNavigator{api: api, mon: m}
}

func (n *instrumentedNavigator) Property(name string) string {
	n.mon.RecordNavigatorAccess(name)
	return n.api.Property(name)
}

type instrumentedScreen struct {
	api ScreenAPI
	mon *Monitor
}

// InstrumentScreen wraps screen property reads.
func (m *Monitor) InstrumentScreen(api ScreenAPI) ScreenAPI {
	return &instrumentedScreen{api: api, mon: m}
}

func (s *instrumentedScreen) Property(name string) int {
	s.mon.RecordScreenAccess(name)
	return s.api.Property(name)
}

type instrumentedBattery struct {
	api BatteryAPI
	mon *Monitor
}

// InstrumentBattery wraps the battery status call.
func (m *Monitor) InstrumentBattery(api BatteryAPI) BatteryAPI {
	return &instrumentedBattery{api: api, mon: m}
}

func (b *instrumentedBattery) GetBattery() (float64, error) {
	b.mon.RecordBatteryAccess()
	return b.api.GetBattery()
}
