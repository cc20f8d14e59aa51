package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementPollCycle is the measurement of per-cycle summaries.
const measurementPollCycle = "w215_poll_cycle"

// CycleSummary is one completed polling cycle, as written to InfluxDB.
type CycleSummary struct {
	DeviceID    string
	LoginStatus string
	Emitted     int
	Unchanged   int
	Rejected    int
	Failed      int
	Duration    time.Duration
	FinishedAt  time.Time
}

// WriteCycle records a polling cycle summary.
func (c *Client) WriteCycle(s CycleSummary) {
	c.WritePointWithTime(measurementPollCycle,
		map[string]string{
			"device_id":    s.DeviceID,
			"login_status": s.LoginStatus,
		},
		map[string]any{
			"emitted":     s.Emitted,
			"unchanged":   s.Unchanged,
			"rejected":    s.Rejected,
			"failed":      s.Failed,
			"duration_ms": s.Duration.Milliseconds(),
		},
		s.FinishedAt,
	)
}

// WritePointWithTime writes a point with an explicit timestamp.
// Dropped silently when the client is closed.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
