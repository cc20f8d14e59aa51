package w215

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215/hnap"
	"github.com/nerrad567/gray-logic-w215/internal/device"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/influxdb"
)

// DeviceStore is the part of the device registry the scheduler needs.
// *device.Registry implements it.
type DeviceStore interface {
	GetDevice(ctx context.Context, id string) (*device.Device, error)
	GetDevicesByProtocol(ctx context.Context, protocol device.Protocol) ([]device.Device, error)
	SetDeviceHealth(ctx context.Context, id string, status device.HealthStatus, lastSeen time.Time) error
}

// CycleRecorder stores a summary of every finished cycle.
// *influxdb.Client implements it.
type CycleRecorder interface {
	WriteCycle(s influxdb.CycleSummary)
}

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	// Interval between two ticks. Default: 30 seconds.
	Interval time.Duration

	// Recorder receives cycle summaries when set.
	Recorder CycleRecorder
}

// SchedulerStats are cumulative scheduler counters.
type SchedulerStats struct {
	Cycles              uint64 `json:"cycles"`
	ConfigurationErrors uint64 `json:"configuration_errors"`
	LoginFailures       uint64 `json:"login_failures"`
	Emitted             uint64 `json:"emitted"`
	Overlaps            uint64 `json:"overlaps"`
	InFlight            int    `json:"in_flight"`
}

// Scheduler starts a poll cycle for every W215 device on each tick and
// guarantees at most one in-flight cycle per device. A failed cycle is not
// retried; the next tick polls again.
type Scheduler struct {
	poller   *Poller
	devices  DeviceStore
	interval time.Duration
	recorder CycleRecorder

	mu       sync.Mutex
	inFlight map[string]struct{}
	last     map[string]*Report
	stopped  bool
	wg       sync.WaitGroup

	cycles        atomic.Uint64
	configErrors  atomic.Uint64
	loginFailures atomic.Uint64
	emitted       atomic.Uint64
	overlaps      atomic.Uint64

	logger Logger
}

// NewScheduler creates a Scheduler.
func NewScheduler(poller *Poller, devices DeviceStore, cfg SchedulerConfig) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		poller:   poller,
		devices:  devices,
		interval: interval,
		recorder: cfg.Recorder,
		inFlight: make(map[string]struct{}),
		last:     make(map[string]*Report),
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// Run ticks until ctx is cancelled, then waits for in-flight cycles.
// The first tick happens immediately. Once Run returns no new background
// cycle starts, including ones requested by HandleCommand.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.stopped = true
			s.mu.Unlock()
			s.wg.Wait()
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick starts one cycle per W215 device in the background. Devices whose
// previous cycle is still running are skipped.
func (s *Scheduler) Tick(ctx context.Context) {
	devices, err := s.devices.GetDevicesByProtocol(ctx, device.ProtocolW215)
	if err != nil {
		s.logger.Error("listing w215 devices", "error", err)
		return
	}

	for i := range devices {
		if ctx.Err() != nil {
			return
		}
		if !s.start(ctx, &devices[i]) {
			s.logger.Debug("w215 cycle still running, tick skipped", "device_id", devices[i].ID)
		}
	}
}

// start runs a cycle for d in the background unless one is already running
// or the scheduler is shutting down. The slot and the WaitGroup are taken
// under one lock so Run never waits while a cycle is being added.
func (s *Scheduler) start(ctx context.Context, d *device.Device) bool {
	s.mu.Lock()
	if s.stopped || ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	if _, busy := s.inFlight[d.ID]; busy {
		s.mu.Unlock()
		s.overlaps.Add(1)
		return false
	}
	s.inFlight[d.ID] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.release(d.ID)
		s.runCycle(ctx, d) //nolint:errcheck // logged and recorded in runCycle
	}()
	return true
}

// Wait blocks until every cycle started by Tick has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// PollDevice runs one cycle for the device synchronously. It returns
// ErrCycleInProgress when a cycle for the device is already running.
func (s *Scheduler) PollDevice(ctx context.Context, deviceID string) (*Report, error) {
	d, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if d.Protocol != device.ProtocolW215 {
		return nil, fmt.Errorf("%w: device %s is not a w215 plug", ErrConfiguration, deviceID)
	}
	if !s.acquire(d.ID) {
		s.overlaps.Add(1)
		return nil, ErrCycleInProgress
	}
	defer s.release(d.ID)

	return s.runCycle(ctx, d)
}

// LastReport returns the report of the device's latest finished cycle.
func (s *Scheduler) LastReport(deviceID string) (*Report, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.last[deviceID]
	return r, ok
}

// Stats returns the scheduler counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.Lock()
	inFlight := len(s.inFlight)
	s.mu.Unlock()

	return SchedulerStats{
		Cycles:              s.cycles.Load(),
		ConfigurationErrors: s.configErrors.Load(),
		LoginFailures:       s.loginFailures.Load(),
		Emitted:             s.emitted.Load(),
		Overlaps:            s.overlaps.Load(),
		InFlight:            inFlight,
	}
}

// CommandMessage requests an immediate cycle over MQTT.
// Topic: graylogic/command/w215/{device_id}
type CommandMessage struct {
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
}

// CommandPoll is the only supported command.
const CommandPoll = "poll"

// HandleCommand handles a message received on the command topic of
// deviceID. A poll command starts a background cycle; it is ignored while
// a cycle for the device is running.
func (s *Scheduler) HandleCommand(ctx context.Context, deviceID string, payload []byte) error {
	var cmd CommandMessage
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("decoding command for %s: %w", deviceID, err)
	}
	if cmd.Command != CommandPoll {
		return fmt.Errorf("unsupported command %q for %s", cmd.Command, deviceID)
	}

	d, err := s.devices.GetDevice(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("poll command for %s: %w", deviceID, err)
	}
	if d.Protocol != device.ProtocolW215 {
		return fmt.Errorf("%w: device %s is not a w215 plug", ErrConfiguration, deviceID)
	}

	started := s.start(ctx, d)
	s.logger.Info("w215 poll requested", "device_id", deviceID, "command_id", cmd.ID, "started", started)
	return nil
}

func (s *Scheduler) acquire(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[id]; busy {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Scheduler) release(id string) {
	s.mu.Lock()
	delete(s.inFlight, id)
	s.mu.Unlock()
}

// runCycle polls one device and applies the result to health, counters and
// the cycle recorder. The caller holds the device's in-flight slot.
func (s *Scheduler) runCycle(ctx context.Context, d *device.Device) (*Report, error) {
	s.poller.metrics.cycleStarted()
	report, err := s.poller.Poll(ctx, d)
	s.poller.metrics.cycleFinished()

	s.cycles.Add(1)
	s.emitted.Add(uint64(report.Count(OutcomeEmitted)))

	s.mu.Lock()
	s.last[d.ID] = report
	s.mu.Unlock()

	status, lastSeen := healthFromReport(report, err)
	switch status {
	case device.HealthStatusUnknown:
		s.configErrors.Add(1)
		s.logger.Error("w215 device misconfigured", "device_id", d.ID, "error", err)
	case device.HealthStatusOffline:
		s.loginFailures.Add(1)
	}
	if status != d.HealthStatus || status == device.HealthStatusOnline {
		if herr := s.devices.SetDeviceHealth(ctx, d.ID, status, lastSeen); herr != nil {
			s.logger.Warn("updating w215 device health", "device_id", d.ID, "error", herr)
		}
	}

	if s.recorder != nil {
		s.recorder.WriteCycle(influxdb.CycleSummary{
			DeviceID:    d.ID,
			LoginStatus: string(report.LoginStatus),
			Emitted:     report.Count(OutcomeEmitted),
			Unchanged:   report.Count(OutcomeUnchanged),
			Rejected:    report.Count(OutcomeRejected),
			Failed:      report.Count(OutcomeTransportError) + report.Count(OutcomeEmitFailed),
			Duration:    report.Duration(),
			FinishedAt:  report.FinishedAt,
		})
	}
	return report, err
}

// healthFromReport maps a cycle result to device health. lastSeen is zero
// unless the plug answered.
func healthFromReport(r *Report, err error) (device.HealthStatus, time.Time) {
	switch {
	case err != nil:
		return device.HealthStatusUnknown, time.Time{}
	case r.LoginStatus == hnap.LoginSuccess:
		return device.HealthStatusOnline, r.FinishedAt
	default:
		return device.HealthStatusOffline, time.Time{}
	}
}
