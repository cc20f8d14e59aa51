package device

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-w215/internal/event"
)

// StateCommitter is the event bus handler that makes an emitted state change
// durable: it becomes the feature's last value and a history entry.
type StateCommitter struct {
	registry *Registry
	history  StateHistoryRepository
	logger   Logger
}

// NewStateCommitter creates a committer.
//
// Parameters:
//   - registry: Registry that stores accepted values as last values
//   - history: State history store; nil skips recording
//
// Returns:
//   - *StateCommitter: Event handler to subscribe to the bus
func NewStateCommitter(registry *Registry, history StateHistoryRepository) *StateCommitter {
	return &StateCommitter{registry: registry, history: history, logger: noopLogger{}}
}

// SetLogger sets the logger for the committer.
func (c *StateCommitter) SetLogger(logger Logger) {
	c.logger = logger
}

// Handle implements event.Handler.
func (c *StateCommitter) Handle(ctx context.Context, kind event.Kind, change event.StateChange) error {
	if kind != event.KindNewState {
		return nil
	}

	deviceID, err := c.registry.ApplyFeatureValue(ctx, change.FeatureExternalID, change.Value, change.Timestamp)
	if err != nil {
		return fmt.Errorf("committing %s: %w", change.FeatureExternalID, err)
	}

	if c.history != nil {
		if err := c.history.RecordStateChange(ctx, StateHistoryEntry{
			ID:                change.ID,
			DeviceID:          deviceID,
			FeatureExternalID: change.FeatureExternalID,
			Value:             change.Value,
			CreatedAt:         change.Timestamp,
		}); err != nil {
			return fmt.Errorf("recording history for %s: %w", change.FeatureExternalID, err)
		}
	}

	c.logger.Debug("state committed",
		"device_id", deviceID,
		"feature", change.FeatureExternalID,
		"value", change.Value,
	)
	return nil
}
