// Package w215 polls D-Link DSP-W215 smart plugs and turns their readings
// into state-change events.
//
// One poll cycle opens a fresh HNAP session, resolves the plug's four
// switch features (binary, power, temperature, energy) and its pin code,
// fetches every present feature concurrently, validates and rounds each
// reading, and emits a "device.new-state" event only when the rounded value
// differs from the feature's last value.
//
// Per-feature failures (transport errors, sentinel readings) never affect
// sibling features, and a failed login ends the cycle without fetching
// anything. Only configuration errors (unparseable external ID, missing or
// non-numeric pin) are returned to the caller.
//
// The Poller does not schedule itself, persist values or retry. Those are
// the jobs of the Scheduler in this package and of the event bus handlers
// in internal/event and internal/device.
//
// # Rounding
//
//   - binary: "true" is 1, any other non-sentinel reading is 0
//   - power: rounded half away from zero to whole watts
//   - temperature: truncated to whole degrees
//   - energy: rounded to three decimals (kWh)
//
// The same rounding is applied to the stored last value before comparing,
// so a value is never re-emitted because of floating noise.
package w215
