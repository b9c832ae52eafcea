// Package bridge is the typed message surface between the page-side
// monitors, the control panel and the aggregation core. Every message
// names an action; the dispatcher validates the payload against it and
// routes to the matching operation.
package bridge

import (
	"context"
	"fmt"

	"phishguard/internal/classify"
	"phishguard/internal/logger"
	"phishguard/internal/urlutil"
	"phishguard/pkg/models"
)

// Action names one bridge operation.
type Action string

const (
	ActionNetworkThreat    Action = "networkThreatDetected"
	ActionFingerprinting   Action = "fingerprintingDetected"
	ActionBehavioralThreat Action = "behavioralThreatDetected"
	ActionBlockConnection  Action = "blockConnection"
	ActionGetStatistics    Action = "getStatistics"
	ActionToggleProtection Action = "toggleProtection"
	ActionCheckURL         Action = "checkURL"
)

// Message is one bridge request. Fields beyond Action are read per
// action; extras are ignored.
type Message struct {
	Action  Action         `json:"action"`
	Report  *models.Report `json:"report,omitempty"`
	Domain  string         `json:"domain,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Enabled *bool          `json:"enabled,omitempty"`
	URL     string         `json:"url,omitempty"`
}

// CheckResult is the checkURL response payload.
type CheckResult struct {
	Verdict     string  `json:"verdict"`
	Confidence  float64 `json:"confidence,omitempty"`
	ThreatLevel string  `json:"threat_level,omitempty"`
	ThreatType  string  `json:"threat_type,omitempty"`
}

// Response is one bridge reply.
type Response struct {
	OK         bool               `json:"ok"`
	Error      string             `json:"error,omitempty"`
	Statistics *models.Statistics `json:"statistics,omitempty"`
	Check      *CheckResult       `json:"check,omitempty"`
}

// State is the aggregation surface the bridge operates on.
type State interface {
	Report(report models.Report)
	AddDomain(domain, reason string)
	QueryStatistics() models.Statistics
	ToggleProtection(enabled bool)
}

// Classifier resolves checkURL against the remote service.
type Classifier interface {
	CheckURL(ctx context.Context, url string) (classify.Result, error)
}

// Dispatcher routes bridge messages.
type Dispatcher struct {
	state      State
	classifier Classifier
}

// NewDispatcher builds a dispatcher. The classifier may be nil when no
// remote service is configured; checkURL then answers unknown.
func NewDispatcher(state State, classifier Classifier) *Dispatcher {
	return &Dispatcher{state: state, classifier: classifier}
}

// Dispatch handles one message. Threat reports and control operations
// resolve synchronously; checkURL waits on the remote service, so
// callers that must not block should dispatch it from a goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (Response, error) {
	switch msg.Action {
	case ActionNetworkThreat:
		return d.recordReport(msg, models.KindBehavioral, false)
	case ActionFingerprinting:
		return d.recordReport(msg, models.KindFingerprinting, true)
	case ActionBehavioralThreat:
		return d.recordReport(msg, models.KindBehavioral, true)

	case ActionBlockConnection:
		if msg.Domain == "" {
			return Response{}, fmt.Errorf("blockConnection requires a domain")
		}
		reason := msg.Reason
		if reason == "" {
			reason = "manual block"
		}
		d.state.AddDomain(msg.Domain, reason)
		return Response{OK: true}, nil

	case ActionGetStatistics:
		stats := d.state.QueryStatistics()
		return Response{OK: true, Statistics: &stats}, nil

	case ActionToggleProtection:
		if msg.Enabled == nil {
			return Response{}, fmt.Errorf("toggleProtection requires enabled")
		}
		d.state.ToggleProtection(*msg.Enabled)
		return Response{OK: true}, nil

	case ActionCheckURL:
		return d.checkURL(ctx, msg)

	default:
		return Response{}, fmt.Errorf("unknown bridge action %q", msg.Action)
	}
}

// DispatchAsync handles one message on its own goroutine and delivers
// the reply on the returned channel. Meant for checkURL, where the
// caller must stay responsive while the remote service answers.
func (d *Dispatcher) DispatchAsync(ctx context.Context, msg Message) <-chan Response {
	out := make(chan Response, 1)
	go func() {
		resp, err := d.Dispatch(ctx, msg)
		if err != nil {
			resp = Response{OK: false, Error: err.Error()}
		}
		out <- resp
	}()
	return out
}

// recordReport validates and forwards a threat report. Fingerprinting
// and behavioral actions carry exactly their kind; network threats
// carry any of the network kinds.
func (d *Dispatcher) recordReport(msg Message, want models.ReportKind, exact bool) (Response, error) {
	if msg.Report == nil {
		return Response{}, fmt.Errorf("%s requires a report", msg.Action)
	}
	if exact && msg.Report.Kind != want {
		return Response{}, fmt.Errorf("%s cannot carry a %s report", msg.Action, msg.Report.Kind)
	}
	if !exact && (msg.Report.Kind == models.KindFingerprinting || msg.Report.Kind == models.KindBehavioral) {
		return Response{}, fmt.Errorf("%s cannot carry a %s report", msg.Action, msg.Report.Kind)
	}
	d.state.Report(*msg.Report)
	return Response{OK: true}, nil
}

// checkURL resolves the classification. A failed or missing service
// yields an unknown verdict; unknown is never reported as safe.
func (d *Dispatcher) checkURL(ctx context.Context, msg Message) (Response, error) {
	if msg.URL == "" {
		return Response{}, fmt.Errorf("checkURL requires a url")
	}
	if d.classifier == nil {
		return Response{OK: true, Check: &CheckResult{Verdict: classify.VerdictUnknown.String()}}, nil
	}

	res, err := d.classifier.CheckURL(ctx, msg.URL)
	if err != nil {
		logger.Warnf("checkURL %s failed: %v", msg.URL, err)
		return Response{
			OK:    false,
			Error: err.Error(),
			Check: &CheckResult{Verdict: classify.VerdictUnknown.String()},
		}, nil
	}
	if res.Verdict == classify.VerdictPhishing {
		if domain, ok := urlutil.ExtractDomain(msg.URL); ok {
			d.state.AddDomain(domain, "ML detected phishing")
		}
	}
	return Response{
		OK: true,
		Check: &CheckResult{
			Verdict:     res.Verdict.String(),
			Confidence:  res.Confidence,
			ThreatLevel: res.ThreatLevel,
			ThreatType:  res.ThreatType,
		},
	}, nil
}
