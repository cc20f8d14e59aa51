// Package event carries accepted device state changes from the poller to
// their consumers.
//
// The poller emits a StateChange on the Bus and moves on; the Bus queues it
// and a single worker dispatches it to every subscribed Handler in
// subscription order. Handler failures are logged and counted, never
// reported back to the emitter.
//
// Handlers provided here:
//   - MQTTPublisher: publishes the change to graylogic/state/w215/{feature}
//   - InfluxRecorder: writes the change as a time-series point
//
// The device package provides the StateCommitter handler that stores the
// value as the feature's last value.
package event
