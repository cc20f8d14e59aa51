package w215

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215/hnap"
	"github.com/nerrad567/gray-logic-w215/internal/device"
	"github.com/nerrad567/gray-logic-w215/internal/event"
)

// DefaultUsername is the only HNAP user the plug accepts.
const DefaultUsername = "admin"

// FeatureResolver looks up a device's features and parameters.
// *device.Registry implements it.
type FeatureResolver interface {
	// GetFeature returns device.ErrFeatureNotFound when the device has no
	// feature of that category and type.
	GetFeature(ctx context.Context, deviceID string, category device.FeatureCategory, typ device.FeatureType) (*device.Feature, error)

	// GetParam returns device.ErrParamNotFound when the parameter is unset.
	GetParam(ctx context.Context, deviceID, name string) (string, error)
}

// EventSink receives state changes. *event.Bus implements it.
type EventSink interface {
	Emit(ctx context.Context, kind event.Kind, change event.StateChange) error
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

// PollerOptions configure a Poller.
type PollerOptions struct {
	// Username is the HNAP login user. Default: "admin".
	Username string

	// Metrics records cycle outcomes when set.
	Metrics *Metrics
}

// Poller runs poll cycles. It keeps no per-cycle state, so one Poller may
// run cycles for different devices concurrently. Running two cycles for the
// same device at once is the caller's responsibility to prevent (see
// Scheduler).
type Poller struct {
	client   *hnap.Client
	resolver FeatureResolver
	sink     EventSink
	username string
	metrics  *Metrics
	now      func() time.Time
	logger   Logger
}

// NewPoller creates a Poller.
func NewPoller(client *hnap.Client, resolver FeatureResolver, sink EventSink, opts PollerOptions) *Poller {
	username := opts.Username
	if username == "" {
		username = DefaultUsername
	}
	return &Poller{
		client:   client,
		resolver: resolver,
		sink:     sink,
		username: username,
		metrics:  opts.Metrics,
		now:      time.Now,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the poller.
func (p *Poller) SetLogger(logger Logger) {
	p.logger = logger
}

// PollOnce runs one cycle for d. Only configuration errors are returned;
// every other failure ends in "nothing emitted" and a log line.
func (p *Poller) PollOnce(ctx context.Context, d *device.Device) error {
	_, err := p.Poll(ctx, d)
	return err
}

// cycle is the immutable per-cycle input shared by the pipelines.
type cycle struct {
	session *hnap.Session
	log     Logger
}

// Poll runs one cycle for d and reports what happened to every feature.
// The returned error is nil or wraps ErrConfiguration.
func (p *Poller) Poll(ctx context.Context, d *device.Device) (*Report, error) {
	report := newReport(d.ID, p.now())
	err := p.poll(ctx, d, report)
	report.FinishedAt = p.now()
	if err != nil {
		report.Error = err.Error()
	}
	p.metrics.observe(report, err)
	return report, err
}

func (p *Poller) poll(ctx context.Context, d *device.Device, report *Report) error {
	log := withArgs(p.logger, "device_id", d.ID)

	addr, err := ParseExternalID(d.ExternalID)
	if err != nil {
		log.Warn("w215 cycle aborted", "error", err)
		return err
	}
	report.Address = addr.String()
	log = withArgs(log, "address", report.Address)

	// Resolve the features while the pin is resolved and the session opened.
	types := device.AllFeatureTypes()
	var (
		features = make([]*device.Feature, len(types))
		session  *hnap.Session
		status   hnap.LoginStatus
		loginErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, typ := range types {
		g.Go(func() error {
			f, err := p.resolver.GetFeature(gctx, d.ID, device.CategorySwitch, typ)
			if err != nil {
				if !errors.Is(err, device.ErrFeatureNotFound) {
					log.Warn("w215 feature lookup failed", "feature", typ, "error", err)
				}
				return nil
			}
			features[i] = f
			return nil
		})
	}
	g.Go(func() error {
		pin, err := p.resolvePin(gctx, d.ID)
		if err != nil {
			return err
		}
		log.Debug("w215 opening session", "pin_set", true)
		session, status, loginErr = p.client.Login(gctx, hnap.Credentials{
			Endpoint: Endpoint(addr),
			Username: p.username,
			Pin:      pin,
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Warn("w215 cycle aborted", "error", err)
		return err
	}

	for i, typ := range types {
		if features[i] == nil {
			report.Features[typ] = FeatureReport{Outcome: OutcomeAbsent}
			continue
		}
		report.Features[typ] = FeatureReport{ExternalID: features[i].ExternalID, Outcome: OutcomeSkipped}
	}

	report.LoginStatus = status
	if status != hnap.LoginSuccess {
		log.Info("w215 login unsuccessful, cycle ends", "login_status", status, "error", loginErr)
		return nil
	}
	defer session.Close() //nolint:errcheck // Close only marks the session unusable

	c := cycle{session: session, log: log}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[device.FeatureType]FeatureReport, len(types))
	)
	for _, f := range features {
		if f == nil {
			continue
		}
		wg.Add(1)
		go func(f *device.Feature) {
			defer wg.Done()
			fr := p.runPipeline(ctx, c, f)
			mu.Lock()
			results[f.Type] = fr
			mu.Unlock()
		}(f)
	}
	wg.Wait()

	for typ, fr := range results {
		report.Features[typ] = fr
	}
	return nil
}

// resolvePin reads and parses the pin code parameter.
func (p *Poller) resolvePin(ctx context.Context, deviceID string) (int, error) {
	raw, err := p.resolver.GetParam(ctx, deviceID, device.ParamW215PinCode)
	if err != nil {
		if errors.Is(err, device.ErrParamNotFound) || errors.Is(err, device.ErrDeviceNotFound) {
			return 0, fmt.Errorf("%w: device %s", ErrMissingPin, deviceID)
		}
		return 0, fmt.Errorf("%w: device %s: %w", ErrConfiguration, deviceID, err)
	}
	if raw == "" {
		return 0, fmt.Errorf("%w: device %s", ErrMissingPin, deviceID)
	}

	// Leading zeros are not significant: the plug takes the pin as a number.
	pin, err := strconv.Atoi(raw)
	if err != nil || pin < 0 {
		return 0, fmt.Errorf("%w: device %s", ErrInvalidPin, deviceID)
	}
	return pin, nil
}

// runPipeline fetches, validates and reconciles one feature. It never
// panics into the cycle.
func (p *Poller) runPipeline(ctx context.Context, c cycle, f *device.Feature) (fr FeatureReport) {
	fr = FeatureReport{ExternalID: f.ExternalID}
	log := withArgs(c.log, "feature", f.ExternalID)

	defer func() {
		if r := recover(); r != nil {
			log.Error("w215 feature pipeline panicked", "panic", r)
			fr.Outcome = OutcomeTransportError
			fr.Error = fmt.Sprint(r)
		}
	}()

	raw, err := fetch(ctx, c.session, f.Type)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrTransport, err)
		log.Warn("w215 fetch failed", "outcome", OutcomeTransportError, "error", err)
		fr.Outcome = OutcomeTransportError
		fr.Error = err.Error()
		return fr
	}
	fr.Raw = raw

	value, err := Normalize(f.Type, raw)
	if err != nil {
		log.Debug("w215 reading rejected, no update", "raw", raw, "outcome", OutcomeRejected)
		fr.Outcome = OutcomeRejected
		fr.Error = err.Error()
		return fr
	}
	v := value.InexactFloat64()
	if !finite(v) {
		log.Debug("w215 reading not representable, no update", "raw", raw, "outcome", OutcomeRejected)
		fr.Outcome = OutcomeRejected
		fr.Error = fmt.Sprintf("%v: %s reading %q is not finite", ErrInvalidReading, f.Type, raw)
		return fr
	}
	fr.Value = &v

	if !Changed(f.Type, value, f.LastValue) {
		log.Debug("w215 value unchanged", "raw", raw, "value", v, "outcome", OutcomeUnchanged)
		fr.Outcome = OutcomeUnchanged
		return fr
	}

	if err := p.sink.Emit(ctx, event.KindNewState, event.StateChange{
		FeatureExternalID: f.ExternalID,
		Value:             v,
		Timestamp:         p.now().UTC(),
	}); err != nil {
		log.Error("w215 emit failed", "value", v, "outcome", OutcomeEmitFailed, "error", err)
		fr.Outcome = OutcomeEmitFailed
		fr.Error = err.Error()
		return fr
	}

	log.Debug("w215 value changed", "raw", raw, "value", v, "last_value", f.LastValue, "outcome", OutcomeEmitted)
	fr.Outcome = OutcomeEmitted
	return fr
}

// fetch issues the feature-specific read.
func fetch(ctx context.Context, s *hnap.Session, typ device.FeatureType) (string, error) {
	switch typ {
	case device.TypeBinary:
		return s.State(ctx)
	case device.TypePower:
		return s.Consumption(ctx)
	case device.TypeTemperature:
		return s.Temperature(ctx)
	case device.TypeEnergy:
		return s.TotalConsumption(ctx)
	default:
		return "", fmt.Errorf("unsupported feature type %q", typ)
	}
}

// argsLogger prepends fixed key/value pairs to every entry.
type argsLogger struct {
	Logger
	args []any
}

func withArgs(l Logger, args ...any) Logger {
	if a, ok := l.(argsLogger); ok {
		return argsLogger{Logger: a.Logger, args: slices.Concat(a.args, args)}
	}
	return argsLogger{Logger: l, args: args}
}

func (l argsLogger) Debug(msg string, args ...any) { l.Logger.Debug(msg, slices.Concat(l.args, args)...) }
func (l argsLogger) Info(msg string, args ...any)  { l.Logger.Info(msg, slices.Concat(l.args, args)...) }
func (l argsLogger) Warn(msg string, args ...any)  { l.Logger.Warn(msg, slices.Concat(l.args, args)...) }
func (l argsLogger) Error(msg string, args ...any) { l.Logger.Error(msg, slices.Concat(l.args, args)...) }
