package w215

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-w215/internal/device"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/mqtt"
)

// BridgeStatus is the operational status published by the HealthReporter.
type BridgeStatus string

// BridgeStatus values.
const (
	BridgeHealthy  BridgeStatus = "healthy"
	BridgeDegraded BridgeStatus = "degraded"
	BridgeStarting BridgeStatus = "starting"
	BridgeStopping BridgeStatus = "stopping"
)

// HealthMessage is the retained bridge health payload.
// Topic: graylogic/health/w215
type HealthMessage struct {
	BridgeID      string         `json:"bridge_id"`
	Version       string         `json:"version"`
	Status        BridgeStatus   `json:"status"`
	Reason        string         `json:"reason,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Devices       int            `json:"devices"`
	DevicesOnline int            `json:"devices_online"`
	Cycles        SchedulerStats `json:"cycles"`
}

// HealthPublisher is the interface for publishing health messages.
// *mqtt.Client implements it.
type HealthPublisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	BridgeID string
	Version  string

	// Interval is how often to publish. Default: 30 seconds.
	Interval time.Duration

	Publisher HealthPublisher
	Devices   DeviceStore
	Scheduler *Scheduler
}

// HealthReporter periodically publishes bridge health.
type HealthReporter struct {
	cfg       HealthReporterConfig
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger Logger
}

// NewHealthReporter creates a health reporter. Call Start to begin.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &HealthReporter{
		cfg:       cfg,
		startTime: time.Now(),
		done:      make(chan struct{}),
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.logger = logger
}

// Start begins periodic reporting until ctx is cancelled or Stop is called.
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // Best-effort during shutdown
		h.publish(context.Background(), BridgeStopping, "bridge stopping")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publish(context.Background(), BridgeStarting, "bridge starting")
}

// PublishNow publishes the current status immediately.
func (h *HealthReporter) PublishNow(ctx context.Context) error {
	status, reason := h.determineStatus(ctx)
	return h.publish(ctx, status, reason)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	if err := h.PublishNow(ctx); err != nil {
		h.logger.Error("failed to publish initial health", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(ctx); err != nil {
				h.logger.Error("failed to publish health", "error", err)
			}
		}
	}
}

// determineStatus reports degraded while any plug is offline.
func (h *HealthReporter) determineStatus(ctx context.Context) (BridgeStatus, string) {
	total, online := h.deviceCounts(ctx)
	if offline := total - online; offline > 0 {
		return BridgeDegraded, fmt.Sprintf("%d of %d plugs not online", offline, total)
	}
	return BridgeHealthy, ""
}

func (h *HealthReporter) deviceCounts(ctx context.Context) (total, online int) {
	if h.cfg.Devices == nil {
		return 0, 0
	}
	devices, err := h.cfg.Devices.GetDevicesByProtocol(ctx, device.ProtocolW215)
	if err != nil {
		return 0, 0
	}
	for _, d := range devices {
		if d.HealthStatus == device.HealthStatusOnline {
			online++
		}
	}
	return len(devices), online
}

// Message builds the health message for status.
func (h *HealthReporter) Message(ctx context.Context, status BridgeStatus, reason string) HealthMessage {
	total, online := h.deviceCounts(ctx)
	msg := HealthMessage{
		BridgeID:      h.cfg.BridgeID,
		Version:       h.cfg.Version,
		Status:        status,
		Reason:        reason,
		Timestamp:     time.Now().UTC(),
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Devices:       total,
		DevicesOnline: online,
	}
	if h.cfg.Scheduler != nil {
		msg.Cycles = h.cfg.Scheduler.Stats()
	}
	return msg
}

func (h *HealthReporter) publish(ctx context.Context, status BridgeStatus, reason string) error {
	if h.cfg.Publisher == nil || !h.cfg.Publisher.IsConnected() {
		return nil
	}
	payload, err := json.Marshal(h.Message(ctx, status, reason))
	if err != nil {
		return err
	}
	return h.cfg.Publisher.Publish(mqtt.Topics{}.Health(), payload, 1, true)
}
