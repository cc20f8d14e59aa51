package w215

import (
	"time"

	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215/hnap"
	"github.com/nerrad567/gray-logic-w215/internal/device"
)

// Outcome is how one feature pipeline ended.
type Outcome string

// Outcome values.
const (
	// OutcomeEmitted means a changed value was handed to the event sink.
	OutcomeEmitted Outcome = "emitted"

	// OutcomeUnchanged means the rounded reading equals the last value.
	OutcomeUnchanged Outcome = "unchanged"

	// OutcomeRejected means the reading was a sentinel or not a number.
	OutcomeRejected Outcome = "rejected"

	// OutcomeTransportError means the fetch itself failed.
	OutcomeTransportError Outcome = "transport_error"

	// OutcomeEmitFailed means the event sink refused the change.
	OutcomeEmitFailed Outcome = "emit_failed"

	// OutcomeAbsent means the device has no such feature.
	OutcomeAbsent Outcome = "absent"

	// OutcomeSkipped means the feature was not fetched because the cycle
	// ended early (configuration error or failed login).
	OutcomeSkipped Outcome = "skipped"
)

// FeatureReport describes one feature pipeline of a cycle.
type FeatureReport struct {
	ExternalID string   `json:"external_id,omitempty"`
	Outcome    Outcome  `json:"outcome"`
	Raw        string   `json:"raw,omitempty"`
	Value      *float64 `json:"value,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Report describes a finished cycle.
type Report struct {
	DeviceID    string                                `json:"device_id"`
	Address     string                                `json:"address,omitempty"`
	LoginStatus hnap.LoginStatus                      `json:"login_status,omitempty"`
	Features    map[device.FeatureType]FeatureReport `json:"features"`
	StartedAt   time.Time                             `json:"started_at"`
	FinishedAt  time.Time                             `json:"finished_at"`
	Error       string                                `json:"error,omitempty"`
}

func newReport(deviceID string, started time.Time) *Report {
	r := &Report{
		DeviceID:  deviceID,
		Features:  make(map[device.FeatureType]FeatureReport, len(device.AllFeatureTypes())),
		StartedAt: started,
	}
	for _, typ := range device.AllFeatureTypes() {
		r.Features[typ] = FeatureReport{Outcome: OutcomeSkipped}
	}
	return r
}

// Count returns the number of features that ended with o.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, f := range r.Features {
		if f.Outcome == o {
			n++
		}
	}
	return n
}

// Duration returns how long the cycle took.
func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
