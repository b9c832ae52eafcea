package behavior

import (
	"testing"
	"time"

	"phishguard/config"
)

func TestFromConfigDefaults(t *testing.T) {
	got := FromConfig(config.BehaviorConfig{})
	want := DefaultConfig()

	if got.ImmediatePasswordThreshold != want.ImmediatePasswordThreshold {
		t.Fatalf("ImmediatePasswordThreshold = %v, want default %v", got.ImmediatePasswordThreshold, want.ImmediatePasswordThreshold)
	}
	if len(got.SensitiveFieldPatterns) != len(want.SensitiveFieldPatterns) {
		t.Fatalf("empty pattern list must keep the stock patterns")
	}
	if !got.TrackClipboard || !got.BlockExternalForms {
		t.Fatalf("nil toggles must default to on")
	}
}

func TestFromConfigOverrides(t *testing.T) {
	off := false
	got := FromConfig(config.BehaviorConfig{
		RapidRedirectCount:     5,
		SensitiveFocusWindow:   250 * time.Millisecond,
		SensitiveFieldPatterns: []string{"ssn"},
		TrackInputFocus:        &off,
	})

	if got.RapidRedirectCount != 5 {
		t.Fatalf("RapidRedirectCount = %d, want 5", got.RapidRedirectCount)
	}
	if got.SensitiveFocusWindow != 250*time.Millisecond {
		t.Fatalf("SensitiveFocusWindow = %v, want 250ms", got.SensitiveFocusWindow)
	}
	if len(got.SensitiveFieldPatterns) != 1 || got.SensitiveFieldPatterns[0] != "ssn" {
		t.Fatalf("SensitiveFieldPatterns = %v, want [ssn]", got.SensitiveFieldPatterns)
	}
	if got.TrackInputFocus {
		t.Fatalf("explicit false toggle must stick")
	}
}
