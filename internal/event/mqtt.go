package event

import (
	"context"
	"encoding/json"
	"fmt"
)

// Publisher is the subset of the MQTT client used by MQTTPublisher.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// TopicFunc maps a feature external ID to a state topic.
type TopicFunc func(featureExternalID string) string

// MQTTPublisher publishes state changes as retained JSON messages.
type MQTTPublisher struct {
	client Publisher
	topic  TopicFunc
	qos    byte
}

// NewMQTTPublisher creates a handler publishing on the topics built by topic.
func NewMQTTPublisher(client Publisher, topic TopicFunc, qos byte) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, qos: qos}
}

// Handle implements Handler.
func (p *MQTTPublisher) Handle(_ context.Context, kind Kind, change StateChange) error {
	if kind != KindNewState {
		return nil
	}

	payload, err := json.Marshal(change)
	if err != nil {
		return fmt.Errorf("marshalling state change: %w", err)
	}

	topic := p.topic(change.FeatureExternalID)
	if err := p.client.Publish(topic, payload, p.qos, true); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}
