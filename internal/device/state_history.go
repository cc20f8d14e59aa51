package device

import (
	"context"
	"time"
)

// StateHistoryEntry is one accepted feature value.
//
// The history is a local audit trail of every emitted state change and is
// kept even when the time-series database is unavailable.
type StateHistoryEntry struct {
	ID                string    `json:"id"`
	DeviceID          string    `json:"device_id"`
	FeatureExternalID string    `json:"feature_external_id"`
	Value             float64   `json:"value"`
	CreatedAt         time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves feature value history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange appends an accepted value for a device feature.
	RecordStateChange(ctx context.Context, entry StateHistoryEntry) error

	// GetHistory returns recent entries for the device, newest first.
	// The implementation may clamp limit.
	GetHistory(ctx context.Context, deviceID string, limit int) ([]StateHistoryEntry, error)
}
