package w215

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-w215/internal/device"
)

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

type mockPublisher struct {
	mu        sync.Mutex
	connected bool
	messages  []publishedMessage
}

func (m *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, publishedMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (m *mockPublisher) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

func (m *mockPublisher) last(t *testing.T) (publishedMessage, HealthMessage) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.messages)
	msg := m.messages[len(m.messages)-1]
	var hm HealthMessage
	require.NoError(t, json.Unmarshal(msg.payload, &hm))
	return msg, hm
}

func TestHealthReporter_PublishNow(t *testing.T) {
	online := NewPlug("plug-1", "One", "10.0.0.1")
	online.HealthStatus = device.HealthStatusOnline
	offline := NewPlug("plug-2", "Two", "10.0.0.2")
	offline.HealthStatus = device.HealthStatusOffline

	tests := []struct {
		name    string
		devices []*device.Device
		want    BridgeStatus
	}{
		{"all online", []*device.Device{online}, BridgeHealthy},
		{"one offline", []*device.Device{online, offline}, BridgeDegraded},
		{"no devices", nil, BridgeHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &mockPublisher{connected: true}
			h := NewHealthReporter(HealthReporterConfig{
				BridgeID:  "w215-bridge",
				Version:   "test",
				Publisher: pub,
				Devices:   newFakeRegistry(tt.devices...),
			})

			require.NoError(t, h.PublishNow(context.Background()))

			msg, hm := pub.last(t)
			assert.Equal(t, "graylogic/health/w215", msg.topic)
			assert.True(t, msg.retained)
			assert.Equal(t, byte(1), msg.qos)
			assert.Equal(t, tt.want, hm.Status)
			assert.Equal(t, len(tt.devices), hm.Devices)
			assert.Equal(t, "w215-bridge", hm.BridgeID)
		})
	}
}

func TestHealthReporter_Disconnected(t *testing.T) {
	pub := &mockPublisher{connected: false}
	h := NewHealthReporter(HealthReporterConfig{Publisher: pub})

	require.NoError(t, h.PublishNow(context.Background()))
	assert.Empty(t, pub.messages)
}

func TestHealthReporter_StartStop(t *testing.T) {
	pub := &mockPublisher{connected: true}
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "w215-bridge", Publisher: pub})

	require.NoError(t, h.PublishStarting())
	h.Start(context.Background())
	h.Stop()
	h.Stop()

	_, hm := pub.last(t)
	assert.Equal(t, BridgeStopping, hm.Status)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.GreaterOrEqual(t, len(pub.messages), 3, "starting, initial and stopping")
}
