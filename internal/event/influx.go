package event

import (
	"context"
	"time"
)

// measurementFeatureState is the InfluxDB measurement for accepted values.
const measurementFeatureState = "w215_feature_state"

// PointWriter is the subset of the InfluxDB client used by InfluxRecorder.
type PointWriter interface {
	WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time)
}

// InfluxRecorder writes every state change as a time-series point.
// Writes are batched by the client, so Handle never blocks on the network.
type InfluxRecorder struct {
	writer PointWriter
	site   string
}

// NewInfluxRecorder creates a recorder tagging points with the site ID.
func NewInfluxRecorder(writer PointWriter, siteID string) *InfluxRecorder {
	return &InfluxRecorder{writer: writer, site: siteID}
}

// Handle implements Handler.
func (r *InfluxRecorder) Handle(_ context.Context, kind Kind, change StateChange) error {
	if kind != KindNewState {
		return nil
	}

	r.writer.WritePointWithTime(measurementFeatureState,
		map[string]string{
			"site":    r.site,
			"feature": change.FeatureExternalID,
		},
		map[string]any{
			"value": change.Value,
		},
		change.Timestamp,
	)
	return nil
}
