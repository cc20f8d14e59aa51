package device

import "time"

// Device is a registered plug. This matches the devices table in
// migrations/20260301_120000_w215_registry.up.sql.
type Device struct {
	// Identity
	ID   string `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`

	// ExternalID is the protocol address, e.g. "w215:192.168.1.20".
	ExternalID string   `json:"external_id"`
	Protocol   Protocol `json:"protocol"`

	Features []Feature `json:"features"`

	// Params hold protocol secrets and are never serialised.
	Params []Param `json:"-"`

	// Health monitoring
	HealthStatus   HealthStatus `json:"health_status"`
	HealthLastSeen *time.Time   `json:"health_last_seen,omitempty"`

	// Timestamps
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Feature is one reported channel of a device.
type Feature struct {
	ID         string          `json:"id"`
	DeviceID   string          `json:"device_id"`
	Name       string          `json:"name"`
	ExternalID string          `json:"external_id"`
	Category   FeatureCategory `json:"category"`
	Type       FeatureType     `json:"type"`

	// LastValue is the last accepted value; nil until the first report.
	// Binary features store 1 (on) or 0 (off).
	LastValue        *float64   `json:"last_value"`
	LastValueChanged *time.Time `json:"last_value_changed,omitempty"`
}

// Param is a named device parameter.
type Param struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ParamW215PinCode is the param holding the plug's numeric HNAP pin.
const ParamW215PinCode = "W215_PIN_CODE"

// Protocol identifies how the bridge talks to a device.
type Protocol string

// Protocol constants.
const (
	ProtocolW215 Protocol = "w215"
)

// AllProtocols returns all valid protocol values.
func AllProtocols() []Protocol {
	return []Protocol{ProtocolW215}
}

// FeatureCategory groups features by the kind of device they belong to.
type FeatureCategory string

// FeatureCategory constants.
const (
	CategorySwitch FeatureCategory = "switch"
)

// FeatureType is the channel a feature reports.
type FeatureType string

// FeatureType constants.
const (
	TypeBinary      FeatureType = "binary"
	TypePower       FeatureType = "power"
	TypeTemperature FeatureType = "temperature"
	TypeEnergy      FeatureType = "energy"
)

// AllFeatureTypes returns the switch feature types in polling order.
func AllFeatureTypes() []FeatureType {
	return []FeatureType{TypeBinary, TypePower, TypeTemperature, TypeEnergy}
}

// HealthStatus represents the device health state.
type HealthStatus string

// HealthStatus constants.
const (
	HealthStatusOnline  HealthStatus = "online"
	HealthStatusOffline HealthStatus = "offline"
	HealthStatusUnknown HealthStatus = "unknown"
)

// AllHealthStatuses returns all valid health status values.
func AllHealthStatuses() []HealthStatus {
	return []HealthStatus{HealthStatusOnline, HealthStatusOffline, HealthStatusUnknown}
}

// DeepCopy creates a complete independent copy of the Device.
// Feature value pointers are cloned so the copy never aliases the cache.
func (d *Device) DeepCopy() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.Features != nil {
		cpy.Features = make([]Feature, len(d.Features))
		for i := range d.Features {
			cpy.Features[i] = d.Features[i].clone()
		}
	}

	if d.Params != nil {
		cpy.Params = make([]Param, len(d.Params))
		copy(cpy.Params, d.Params)
	}

	return &cpy
}

func (f Feature) clone() Feature {
	if f.LastValue != nil {
		v := *f.LastValue
		f.LastValue = &v
	}
	return f
}

// Feature returns the feature of the given category and type.
func (d *Device) Feature(category FeatureCategory, typ FeatureType) (*Feature, bool) {
	for i := range d.Features {
		if d.Features[i].Category == category && d.Features[i].Type == typ {
			f := d.Features[i].clone()
			return &f, true
		}
	}
	return nil, false
}

// Param returns the value of the named param.
func (d *Device) Param(name string) (string, bool) {
	for _, p := range d.Params {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}
