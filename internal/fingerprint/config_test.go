package fingerprint

import (
	"testing"

	"phishguard/config"
)

func TestFromConfigDefaults(t *testing.T) {
	got := FromConfig(config.FingerprintConfig{})
	want := DefaultConfig()

	if got.CanvasThreshold != want.CanvasThreshold {
		t.Fatalf("CanvasThreshold = %d, want default %d", got.CanvasThreshold, want.CanvasThreshold)
	}
	if !got.MonitorCanvas || !got.MonitorBattery {
		t.Fatalf("nil toggles must default to on")
	}
	if got.InjectCanvasNoise || got.InjectAudioNoise {
		t.Fatalf("noise injection must default to off")
	}
}

func TestFromConfigOverrides(t *testing.T) {
	off := false
	got := FromConfig(config.FingerprintConfig{
		AudioThreshold:    7,
		MonitorScreen:     &off,
		InjectCanvasNoise: true,
	})

	if got.AudioThreshold != 7 {
		t.Fatalf("AudioThreshold = %d, want 7", got.AudioThreshold)
	}
	if got.MonitorScreen {
		t.Fatalf("explicit false toggle must stick")
	}
	if !got.InjectCanvasNoise {
		t.Fatalf("InjectCanvasNoise = false, want true")
	}
}
