package fingerprint

import "phishguard/config"

// FromConfig maps the file configuration onto a monitor Config. Zero
// thresholds take the defaults; nil toggles default to on.
func FromConfig(fc config.FingerprintConfig) Config {
	out := DefaultConfig()

	if fc.CanvasThreshold > 0 {
		out.CanvasThreshold = fc.CanvasThreshold
	}
	if fc.WebGLThreshold > 0 {
		out.WebGLThreshold = fc.WebGLThreshold
	}
	if fc.AudioThreshold > 0 {
		out.AudioThreshold = fc.AudioThreshold
	}
	if fc.FontThreshold > 0 {
		out.FontThreshold = fc.FontThreshold
	}
	if fc.StorageThreshold > 0 {
		out.StorageThreshold = fc.StorageThreshold
	}
	if fc.NavigatorThreshold > 0 {
		out.NavigatorThreshold = fc.NavigatorThreshold
	}

	out.MonitorCanvas = config.BoolOrDefault(fc.MonitorCanvas, true)
	out.MonitorWebGL = config.BoolOrDefault(fc.MonitorWebGL, true)
	out.MonitorAudio = config.BoolOrDefault(fc.MonitorAudio, true)
	out.MonitorFonts = config.BoolOrDefault(fc.MonitorFonts, true)
	out.MonitorStorage = config.BoolOrDefault(fc.MonitorStorage, true)
	out.MonitorNavigator = config.BoolOrDefault(fc.MonitorNavigator, true)
	out.MonitorScreen = config.BoolOrDefault(fc.MonitorScreen, true)
	out.MonitorBattery = config.BoolOrDefault(fc.MonitorBattery, true)
	out.InjectCanvasNoise = fc.InjectCanvasNoise
	out.InjectAudioNoise = fc.InjectAudioNoise

	return out
}
