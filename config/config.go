package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	PhishGuard PhishGuardConfig `yaml:"phishguard"`
}

// PhishGuardConfig is the project configuration.
type PhishGuardConfig struct {
	Input       InputConfig       `yaml:"input"`
	Pipeline    PipelineConfig    `yaml:"pipeline"`
	Network     NetworkConfig     `yaml:"network"`
	Behavior    BehaviorConfig    `yaml:"behavior"`
	Fingerprint FingerprintConfig `yaml:"fingerprint"`
	Aggregator  AggregatorConfig  `yaml:"aggregator"`
	Rules       RulesConfig       `yaml:"rules"`
	State       StateConfig       `yaml:"state"`
	Notify      NotifyConfig      `yaml:"notify"`
	API         APIConfig         `yaml:"api"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// InputConfig controls the request-event reader.
type InputConfig struct {
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig controls Redis access for the event queue and state store.
type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Key          string        `yaml:"key"`
	KeyPrefix    string        `yaml:"key_prefix"`
	BlockTimeout time.Duration `yaml:"block_timeout"`
}

// PipelineConfig controls the request processing pipeline.
type PipelineConfig struct {
	Workers       int           `yaml:"workers"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

// NetworkConfig controls the background network monitor.
type NetworkConfig struct {
	LargePostThreshold    int64    `yaml:"large_post_threshold"`
	CriticalPostThreshold int64    `yaml:"critical_post_threshold"`
	MaxRequestsPerMinute  int      `yaml:"max_requests_per_minute"`
	CCServerPatterns      []string `yaml:"cc_server_patterns"`
	SuspiciousPorts       []int    `yaml:"suspicious_ports"`
	DoHProviders          []string `yaml:"doh_providers"`
	SuspiciousHeaders     []string `yaml:"suspicious_headers"`
	Whitelist             []string `yaml:"whitelist"`
	WebSocketThreshold    int      `yaml:"websocket_threshold"`
	CrossOriginThreshold  int      `yaml:"cross_origin_threshold"`
	DoHThreshold          int      `yaml:"doh_threshold"`

	MonitorPostSize    *bool `yaml:"monitor_post_size"`
	MonitorCCServers   *bool `yaml:"monitor_cc_servers"`
	MonitorWebSockets  *bool `yaml:"monitor_websockets"`
	MonitorDoH         *bool `yaml:"monitor_doh"`
	MonitorHeaders     *bool `yaml:"monitor_headers"`
	MonitorCrossOrigin *bool `yaml:"monitor_cross_origin"`

	AutoBlockCCServers         bool `yaml:"auto_block_cc_servers"`
	AutoBlockLargeExfiltration bool `yaml:"auto_block_large_exfiltration"`

	CanBlock *bool `yaml:"can_block"`
}

// BehaviorConfig controls the page-level behavioral monitors.
type BehaviorConfig struct {
	ImmediatePasswordThreshold time.Duration `yaml:"immediate_password_threshold"`
	RapidRedirectThreshold     time.Duration `yaml:"rapid_redirect_threshold"`
	RapidRedirectCount         int           `yaml:"rapid_redirect_count"`
	SensitiveFocusWindow       time.Duration `yaml:"sensitive_focus_window"`
	ClipboardPasteThreshold    int           `yaml:"clipboard_paste_threshold"`
	PopupThreshold             int           `yaml:"popup_threshold"`
	AutoSubmitScanDelay        time.Duration `yaml:"auto_submit_scan_delay"`
	SuspiciousParamKeywords    []string      `yaml:"suspicious_param_keywords"`
	SensitiveFieldPatterns     []string      `yaml:"sensitive_field_patterns"`

	TrackInputFocus    *bool `yaml:"track_input_focus"`
	TrackClipboard     *bool `yaml:"track_clipboard"`
	BlockExternalForms *bool `yaml:"block_external_forms"`
}

// FingerprintConfig controls the fingerprinting instrumentation.
type FingerprintConfig struct {
	CanvasThreshold    int `yaml:"canvas_threshold"`
	WebGLThreshold     int `yaml:"webgl_threshold"`
	AudioThreshold     int `yaml:"audio_threshold"`
	FontThreshold      int `yaml:"font_threshold"`
	StorageThreshold   int `yaml:"storage_threshold"`
	NavigatorThreshold int `yaml:"navigator_threshold"`

	MonitorCanvas    *bool `yaml:"monitor_canvas"`
	MonitorWebGL     *bool `yaml:"monitor_webgl"`
	MonitorAudio     *bool `yaml:"monitor_audio"`
	MonitorFonts     *bool `yaml:"monitor_fonts"`
	MonitorStorage   *bool `yaml:"monitor_storage"`
	MonitorNavigator *bool `yaml:"monitor_navigator"`
	MonitorScreen    *bool `yaml:"monitor_screen"`
	MonitorBattery   *bool `yaml:"monitor_battery"`

	InjectCanvasNoise bool `yaml:"inject_canvas_noise"`
	InjectAudioNoise  bool `yaml:"inject_audio_noise"`
}

// AggregatorConfig controls the process-wide aggregation state.
type AggregatorConfig struct {
	FlushInterval      time.Duration `yaml:"flush_interval"`
	ActivityHistoryCap int           `yaml:"activity_history_cap"`
	ExfilHistoryCap    int           `yaml:"exfil_history_cap"`
	FingerprintCap     int           `yaml:"fingerprint_history_cap"`
	BehavioralCap      int           `yaml:"behavioral_history_cap"`
}

// RulesConfig controls optional Sigma detection rules.
type RulesConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// StateConfig selects where aggregator snapshots persist.
type StateConfig struct {
	Mode string `yaml:"mode"` // redis|file
	File string `yaml:"file"`
}

// NotifyConfig controls the threat notification sink.
type NotifyConfig struct {
	Mode string           `yaml:"mode"` // file|http
	File FileOutputConfig `yaml:"file"`
	HTTP HTTPOutputConfig `yaml:"http"`
}

// FileOutputConfig config for local JSONL output.
type FileOutputConfig struct {
	Path string `yaml:"path"`
}

// HTTPOutputConfig config for remote output.
type HTTPOutputConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// APIConfig holds the external service endpoints.
type APIConfig struct {
	ClassifyURL     string        `yaml:"classify_url"`
	ClassifyTimeout time.Duration `yaml:"classify_timeout"`
	AnalyticsURL    string        `yaml:"analytics_url"`
	LiveFeedURL     string        `yaml:"live_feed_url"`
	SensitivityMode string        `yaml:"sensitivity_mode"`
	InstallIDFile   string        `yaml:"install_id_file"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// LoggingConfig controls logging output.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	File    string `yaml:"file"`
	Console bool   `yaml:"console"`
}

// LoadConfig reads and parses a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// BoolOrDefault resolves an optional monitor toggle against its default.
func BoolOrDefault(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
