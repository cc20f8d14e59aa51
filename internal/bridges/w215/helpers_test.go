package w215

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215/hnap"
	"github.com/nerrad567/gray-logic-w215/internal/bridges/w215/hnap/hnaptest"
	"github.com/nerrad567/gray-logic-w215/internal/device"
	"github.com/nerrad567/gray-logic-w215/internal/event"
)

const testPin = "123456"

// fakeRegistry is an in-memory device registry.
type fakeRegistry struct {
	mu      sync.Mutex
	devices map[string]*device.Device
}

func newFakeRegistry(devices ...*device.Device) *fakeRegistry {
	r := &fakeRegistry{devices: make(map[string]*device.Device)}
	for _, d := range devices {
		r.devices[d.ID] = d.DeepCopy()
	}
	return r
}

func (r *fakeRegistry) GetFeature(_ context.Context, deviceID string, category device.FeatureCategory, typ device.FeatureType) (*device.Feature, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	f, ok := d.Feature(category, typ)
	if !ok {
		return nil, device.ErrFeatureNotFound
	}
	return f, nil
}

func (r *fakeRegistry) GetParam(_ context.Context, deviceID, name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return "", device.ErrDeviceNotFound
	}
	v, ok := d.Param(name)
	if !ok {
		return "", device.ErrParamNotFound
	}
	return v, nil
}

func (r *fakeRegistry) GetDevice(_ context.Context, id string) (*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, device.ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

func (r *fakeRegistry) GetDevicesByProtocol(_ context.Context, protocol device.Protocol) ([]device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []device.Device
	for _, d := range r.devices {
		if d.Protocol == protocol {
			out = append(out, *d.DeepCopy())
		}
	}
	return out, nil
}

func (r *fakeRegistry) GetDeviceByExternalID(_ context.Context, externalID string) (*device.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		if d.ExternalID == externalID {
			return d.DeepCopy(), nil
		}
	}
	return nil, device.ErrDeviceNotFound
}

func (r *fakeRegistry) CreateDevice(_ context.Context, d *device.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == "" {
		d.ID = device.GenerateID()
	}
	if err := device.ValidateName(d.Name); err != nil {
		return err
	}
	r.devices[d.ID] = d.DeepCopy()
	return nil
}

func (r *fakeRegistry) SetParam(_ context.Context, deviceID, name, value string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[deviceID]
	if !ok {
		return device.ErrDeviceNotFound
	}
	for i := range d.Params {
		if d.Params[i].Name == name {
			d.Params[i].Value = value
			return nil
		}
	}
	d.Params = append(d.Params, device.Param{Name: name, Value: value})
	return nil
}

func (r *fakeRegistry) SetDeviceHealth(_ context.Context, id string, status device.HealthStatus, lastSeen time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return device.ErrDeviceNotFound
	}
	d.HealthStatus = status
	if !lastSeen.IsZero() {
		d.HealthLastSeen = &lastSeen
	}
	return nil
}

// commit stores value as the last value of the feature.
func (r *fakeRegistry) commit(featureExternalID string, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.devices {
		for i := range d.Features {
			if d.Features[i].ExternalID == featureExternalID {
				v := value
				d.Features[i].LastValue = &v
			}
		}
	}
}

func (r *fakeRegistry) health(id string) device.HealthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.devices[id].HealthStatus
}

// recordingSink records emitted changes and optionally commits them.
type recordingSink struct {
	mu      sync.Mutex
	changes []event.StateChange
	commit  *fakeRegistry
	emit    func(change event.StateChange) error
}

func (s *recordingSink) Emit(_ context.Context, kind event.Kind, change event.StateChange) error {
	if kind != event.KindNewState {
		panic("unexpected event kind " + string(kind))
	}
	if s.emit != nil {
		if err := s.emit(change); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.changes = append(s.changes, change)
	s.mu.Unlock()
	if s.commit != nil {
		s.commit.commit(change.FeatureExternalID, change.Value)
	}
	return nil
}

// values returns emitted values keyed by feature external ID.
func (s *recordingSink) values() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.changes))
	for _, c := range s.changes {
		out[c.FeatureExternalID] = c.Value
	}
	return out
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.changes)
}

// newTestPlug registers a plug pointing at the fake device, with the pin set.
func newTestPlug(plug *hnaptest.Device) *device.Device {
	d := NewPlug("plug-1", "Test plug", plug.Address())
	d.Params = []device.Param{{Name: device.ParamW215PinCode, Value: testPin}}
	d.HealthStatus = device.HealthStatusUnknown
	return d
}

// setLast sets the last value of a feature type.
func setLast(d *device.Device, typ device.FeatureType, v float64) {
	for i := range d.Features {
		if d.Features[i].Type == typ {
			d.Features[i].LastValue = &v
		}
	}
}

// dropFeature removes a feature type from d.
func dropFeature(d *device.Device, typ device.FeatureType) {
	kept := d.Features[:0]
	for _, f := range d.Features {
		if f.Type != typ {
			kept = append(kept, f)
		}
	}
	d.Features = kept
}

func featureID(d *device.Device, typ device.FeatureType) string {
	return FeatureExternalID(d.ExternalID, typ)
}

func newTestPoller(t *testing.T, resolver FeatureResolver, sink EventSink) *Poller {
	t.Helper()
	client := hnap.NewClient(hnap.Options{Timeout: 2 * time.Second, MaxFailures: 100})
	p := NewPoller(client, resolver, sink, PollerOptions{})
	require.NotNil(t, p)
	return p
}
