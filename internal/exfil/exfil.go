// Package exfil estimates outbound request body sizes and classifies
// them against the exfiltration thresholds.
package exfil

import "phishguard/pkg/models"

// Default thresholds: 100 KiB marks a suspicious upload, 1 MiB a
// critical one.
const (
	DefaultLargeThreshold    int64 = 100 * 1024
	DefaultCriticalThreshold int64 = 1024 * 1024
)

// Class is the exfiltration classification of one request body.
type Class int

const (
	ClassNone Class = iota
	ClassLarge
	ClassCritical
)

// Severity maps the classification onto report severity.
func (c Class) Severity() models.Severity {
	if c == ClassCritical {
		return models.SeverityCritical
	}
	return models.SeverityHigh
}

// Estimator classifies body sizes against a threshold pair.
type Estimator struct {
	Large    int64
	Critical int64
}

// NewEstimator builds an estimator, falling back to defaults for
// non-positive thresholds.
func NewEstimator(large, critical int64) *Estimator {
	if large <= 0 {
		large = DefaultLargeThreshold
	}
	if critical <= 0 {
		critical = DefaultCriticalThreshold
	}
	return &Estimator{Large: large, Critical: critical}
}

// EstimateBodySize computes the approximate size of a request body.
// Raw parts are summed by byte length. Form values count two bytes per
// character, an estimate rather than exact wire size.
func EstimateBodySize(body *models.RequestBody) int64 {
	if body == nil {
		return 0
	}

	var size int64
	if len(body.RawParts) > 0 {
		for _, part := range body.RawParts {
			size += int64(len(part))
		}
		return size
	}

	for _, values := range body.FormData {
		for _, v := range values {
			size += int64(len(v)) * 2
		}
	}
	return size
}

// Classify evaluates a request. Only POST and PUT bodies are examined;
// every other method yields ClassNone with size zero.
func (e *Estimator) Classify(method string, body *models.RequestBody) (Class, int64) {
	if method != "POST" && method != "PUT" {
		return ClassNone, 0
	}

	size := EstimateBodySize(body)
	switch {
	case size > e.Critical:
		return ClassCritical, size
	case size > e.Large:
		return ClassLarge, size
	default:
		return ClassNone, size
	}
}
