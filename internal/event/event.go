package event

import (
	"context"
	"time"
)

// Kind names the type of an emitted event.
type Kind string

// KindNewState is emitted when a device feature reports a changed value.
const KindNewState Kind = "device.new-state"

// StateChange is the payload of a KindNewState event.
type StateChange struct {
	ID                string    `json:"id"`
	FeatureExternalID string    `json:"device_feature_external_id"`
	Value             float64   `json:"state"`
	Timestamp         time.Time `json:"timestamp"`
}

// Handler consumes events dispatched by the Bus.
type Handler interface {
	Handle(ctx context.Context, kind Kind, change StateChange) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, kind Kind, change StateChange) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, kind Kind, change StateChange) error {
	return f(ctx, kind, change)
}

// Logger defines the logging interface used by this package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}
