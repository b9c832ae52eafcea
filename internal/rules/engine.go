// Package rules evaluates detection rules against request events. The
// fixed heuristics cover the known phishing patterns; rules add
// operator-supplied detections without a rebuild.
package rules

import (
	"phishguard/internal/netmon"
	"phishguard/pkg/models"
)

// Engine applies detection rules to request events.
type Engine interface {
	Evaluate(event models.RequestEvent) []netmon.RuleVerdict
}

// NoopEngine returns no verdicts.
type NoopEngine struct{}

// Evaluate returns an empty verdict list.
func (n *NoopEngine) Evaluate(event models.RequestEvent) []netmon.RuleVerdict {
	return nil
}
