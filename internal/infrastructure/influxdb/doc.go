// Package influxdb provides InfluxDB connectivity for the W215 bridge.
//
// It wraps the official influxdb-client-go v2 library. Points are written
// through the non-blocking, batched WriteAPI so that a slow or absent
// time-series database never delays a polling cycle.
//
// The bridge records two series:
//   - w215_feature_state: every accepted feature value (event.InfluxRecorder)
//   - w215_poll_cycle: one point per completed cycle (login status, outcomes, duration)
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
// Connect retries the initial ping with exponential backoff, up to
// cfg.ConnectAttempts attempts.
package influxdb
