package netmon

import "phishguard/config"

// FromConfig maps the file configuration onto a monitor Config. Empty
// lists fall back to the stock patterns; nil toggles default to on.
func FromConfig(net config.NetworkConfig) Config {
	out := DefaultConfig()

	if net.LargePostThreshold > 0 {
		out.LargePostThreshold = net.LargePostThreshold
	}
	if net.CriticalPostThreshold > 0 {
		out.CriticalPostThreshold = net.CriticalPostThreshold
	}
	if net.MaxRequestsPerMinute > 0 {
		out.MaxRequestsPerMinute = net.MaxRequestsPerMinute
	}
	if len(net.CCServerPatterns) > 0 {
		out.CCServerPatterns = net.CCServerPatterns
	}
	if len(net.SuspiciousPorts) > 0 {
		out.SuspiciousPorts = net.SuspiciousPorts
	}
	if len(net.DoHProviders) > 0 {
		out.DoHProviders = net.DoHProviders
	}
	if len(net.SuspiciousHeaders) > 0 {
		out.SuspiciousHeaders = net.SuspiciousHeaders
	}
	if len(net.Whitelist) > 0 {
		out.Whitelist = net.Whitelist
	}
	if net.WebSocketThreshold > 0 {
		out.WebSocketThreshold = net.WebSocketThreshold
	}
	if net.CrossOriginThreshold > 0 {
		out.CrossOriginThreshold = net.CrossOriginThreshold
	}
	if net.DoHThreshold > 0 {
		out.DoHThreshold = net.DoHThreshold
	}

	out.MonitorPostSize = config.BoolOrDefault(net.MonitorPostSize, true)
	out.MonitorCCServers = config.BoolOrDefault(net.MonitorCCServers, true)
	out.MonitorWebSockets = config.BoolOrDefault(net.MonitorWebSockets, true)
	out.MonitorDoH = config.BoolOrDefault(net.MonitorDoH, true)
	out.MonitorHeaders = config.BoolOrDefault(net.MonitorHeaders, true)
	out.MonitorCrossOrigin = config.BoolOrDefault(net.MonitorCrossOrigin, true)
	out.AutoBlockCCServers = net.AutoBlockCCServers
	out.AutoBlockLargeExfiltration = net.AutoBlockLargeExfiltration
	out.CanBlock = config.BoolOrDefault(net.CanBlock, true)

	return out
}
