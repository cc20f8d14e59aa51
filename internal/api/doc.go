// Package api implements the HTTP API and live state stream of the W215 bridge.
//
// This package provides:
//   - REST endpoints to inspect plugs, their features and state history
//   - On-demand poll cycles (POST /api/v1/devices/{id}/poll)
//   - Prometheus metrics and a JSON system summary
//   - A WebSocket hub that relays every emitted state change
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Graceful Degradation
//
// The server runs without MQTT or InfluxDB; their status is simply reported
// as disconnected.
package api
