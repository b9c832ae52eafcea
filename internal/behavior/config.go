package behavior

import "phishguard/config"

// FromConfig maps the file configuration onto a monitor Config. Zero
// thresholds take the defaults; nil toggles default to on.
func FromConfig(bc config.BehaviorConfig) Config {
	out := DefaultConfig()

	if bc.ImmediatePasswordThreshold > 0 {
		out.ImmediatePasswordThreshold = bc.ImmediatePasswordThreshold
	}
	if bc.RapidRedirectThreshold > 0 {
		out.RapidRedirectThreshold = bc.RapidRedirectThreshold
	}
	if bc.RapidRedirectCount > 0 {
		out.RapidRedirectCount = bc.RapidRedirectCount
	}
	if bc.SensitiveFocusWindow > 0 {
		out.SensitiveFocusWindow = bc.SensitiveFocusWindow
	}
	if bc.ClipboardPasteThreshold > 0 {
		out.ClipboardPasteThreshold = bc.ClipboardPasteThreshold
	}
	if bc.PopupThreshold > 0 {
		out.PopupThreshold = bc.PopupThreshold
	}
	if bc.AutoSubmitScanDelay > 0 {
		out.AutoSubmitScanDelay = bc.AutoSubmitScanDelay
	}
	if len(bc.SuspiciousParamKeywords) > 0 {
		out.SuspiciousParamKeywords = bc.SuspiciousParamKeywords
	}
	if len(bc.SensitiveFieldPatterns) > 0 {
		out.SensitiveFieldPatterns = bc.SensitiveFieldPatterns
	}

	out.TrackInputFocus = config.BoolOrDefault(bc.TrackInputFocus, true)
	out.TrackClipboard = config.BoolOrDefault(bc.TrackClipboard, true)
	out.BlockExternalForms = config.BoolOrDefault(bc.BlockExternalForms, true)

	return out
}
