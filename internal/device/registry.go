package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides device management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by every write that goes through the Registry.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Device // Cached devices by ID
	cacheMu sync.RWMutex       // Protects cache
	logger  Logger
}

// NewRegistry creates a new device registry.
// The repository is used for persistence; the registry adds caching.
//
// Parameters:
//   - repo: Persistence layer for devices
//
// Returns:
//   - *Registry: Registry with an empty cache; call RefreshCache before use
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Device),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all devices from the repository into the cache.
// This should be called on application startup.
//
// Parameters:
//   - ctx: Context for the repository query
//
// Returns:
//   - error: If listing devices from the repository fails
func (r *Registry) RefreshCache(ctx context.Context) error {
	devices, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Device, len(devices))
	for i := range devices {
		r.cache[devices[i].ID] = devices[i].DeepCopy()
	}

	r.logger.Info("device cache refreshed", "count", len(devices))
	return nil
}

// GetDevice retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
// The returned device is a deep copy; callers can safely modify it.
//
// Parameters:
//   - ctx: Context used when the device is not cached
//   - id: Device ID
//
// Returns:
//   - *Device: Copy of the device
//   - error: ErrDeviceNotFound, or a repository error
func (r *Registry) GetDevice(ctx context.Context, id string) (*Device, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a device written by another process)
	device, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = device.DeepCopy()
	r.cacheMu.Unlock()

	return device, nil
}

// GetDeviceByExternalID retrieves a device by its protocol address.
func (r *Registry) GetDeviceByExternalID(_ context.Context, externalID string) (*Device, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for _, d := range r.cache {
		if d.ExternalID == externalID {
			return d.DeepCopy(), nil
		}
	}
	return nil, ErrDeviceNotFound
}

// ListDevices retrieves all cached devices ordered by name.
// The returned devices are deep copies; callers can safely modify them.
func (r *Registry) ListDevices(_ context.Context) ([]Device, error) {
	return r.filter(func(*Device) bool { return true }), nil
}

// GetDevicesByProtocol retrieves all devices using a specific protocol.
func (r *Registry) GetDevicesByProtocol(_ context.Context, protocol Protocol) ([]Device, error) {
	return r.filter(func(d *Device) bool { return d.Protocol == protocol }), nil
}

func (r *Registry) filter(keep func(*Device) bool) []Device {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	devices := make([]Device, 0, len(r.cache))
	for _, d := range r.cache {
		if keep(d) {
			devices = append(devices, *d.DeepCopy())
		}
	}
	sort.Slice(devices, func(i, j int) bool {
		if devices[i].Name != devices[j].Name {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].ID < devices[j].ID
	})
	return devices
}

// CreateDevice validates and persists a new device.
//
// Missing IDs, the slug, timestamps and health status are filled in, and
// every feature is bound to the device. On success the device is cached.
//
// Parameters:
//   - ctx: Context for the repository write
//   - device: Device to create; modified in place with generated fields
//
// Returns:
//   - error: Validation error, ErrDeviceExists, or a repository error
func (r *Registry) CreateDevice(ctx context.Context, device *Device) error {
	if device.ID == "" {
		device.ID = GenerateID()
	}
	if device.Slug == "" {
		device.Slug = GenerateSlug(device.Name)
	}
	if device.HealthStatus == "" {
		device.HealthStatus = HealthStatusUnknown
	}
	now := time.Now().UTC()
	device.CreatedAt = now
	device.UpdatedAt = now

	for i := range device.Features {
		if device.Features[i].ID == "" {
			device.Features[i].ID = GenerateID()
		}
		device.Features[i].DeviceID = device.ID
	}

	if err := ValidateDevice(device); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, device); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[device.ID] = device.DeepCopy()
	r.cacheMu.Unlock()

	r.logger.Info("device created", "device_id", device.ID, "external_id", device.ExternalID)
	return nil
}

// DeleteDevice removes a device by ID.
func (r *Registry) DeleteDevice(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("device deleted", "device_id", id)
	return nil
}

// GetFeature returns the device's feature of the given category and type.
// Returns ErrFeatureNotFound if the device has no such feature.
//
// Parameters:
//   - ctx: Context for the device lookup
//   - deviceID: Owning device ID
//   - category: Feature category
//   - typ: Feature type
//
// Returns:
//   - *Feature: Copy of the feature, including its last value
//   - error: ErrDeviceNotFound or ErrFeatureNotFound
func (r *Registry) GetFeature(ctx context.Context, deviceID string, category FeatureCategory, typ FeatureType) (*Feature, error) {
	d, err := r.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	f, ok := d.Feature(category, typ)
	if !ok {
		return nil, ErrFeatureNotFound
	}
	return f, nil
}

// GetParam returns the value of the device's named param.
// Returns ErrParamNotFound if the device has no such param.
func (r *Registry) GetParam(ctx context.Context, deviceID, name string) (string, error) {
	d, err := r.GetDevice(ctx, deviceID)
	if err != nil {
		return "", err
	}
	v, ok := d.Param(name)
	if !ok {
		return "", ErrParamNotFound
	}
	return v, nil
}

// SetParam inserts or replaces a device param.
func (r *Registry) SetParam(ctx context.Context, deviceID, name, value string) error {
	if err := r.repo.SetParam(ctx, deviceID, name, value); err != nil {
		return err
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if d, ok := r.cache[deviceID]; ok {
		for i := range d.Params {
			if d.Params[i].Name == name {
				d.Params[i].Value = value
				return nil
			}
		}
		d.Params = append(d.Params, Param{Name: name, Value: value})
	}
	return nil
}

// ApplyFeatureValue records an accepted value as the feature's last value
// and returns the owning device ID.
//
// Parameters:
//   - ctx: Context for the repository write
//   - featureExternalID: Feature identity as emitted on the event bus
//   - value: Accepted normalized value
//   - changedAt: Time of the change
//
// Returns:
//   - string: ID of the device owning the feature
//   - error: ErrFeatureNotFound, or a repository error
func (r *Registry) ApplyFeatureValue(ctx context.Context, featureExternalID string, value float64, changedAt time.Time) (string, error) {
	deviceID, ok := r.deviceForFeature(featureExternalID)
	if !ok {
		return "", ErrFeatureNotFound
	}

	if err := r.repo.UpdateFeatureValue(ctx, featureExternalID, value, changedAt); err != nil {
		return "", err
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if d, ok := r.cache[deviceID]; ok {
		for i := range d.Features {
			if d.Features[i].ExternalID == featureExternalID {
				v := value
				t := changedAt.UTC()
				d.Features[i].LastValue = &v
				d.Features[i].LastValueChanged = &t
			}
		}
	}
	return deviceID, nil
}

func (r *Registry) deviceForFeature(featureExternalID string) (string, bool) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	for id, d := range r.cache {
		for i := range d.Features {
			if d.Features[i].ExternalID == featureExternalID {
				return id, true
			}
		}
	}
	return "", false
}

// SetDeviceHealth updates the health status and last seen timestamp.
// A zero lastSeen keeps the previous timestamp.
//
// Parameters:
//   - ctx: Context for the repository write
//   - id: Device ID
//   - status: New health status
//   - lastSeen: Time the device last answered, or zero
//
// Returns:
//   - error: ErrDeviceNotFound, or a repository error
func (r *Registry) SetDeviceHealth(ctx context.Context, id string, status HealthStatus, lastSeen time.Time) error {
	if err := r.repo.UpdateHealth(ctx, id, status, lastSeen); err != nil {
		return err
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if d, ok := r.cache[id]; ok {
		d.HealthStatus = status
		if !lastSeen.IsZero() {
			t := lastSeen.UTC()
			d.HealthLastSeen = &t
		}
	}
	return nil
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDevices   int
	TotalFeatures  int
	ByProtocol     map[Protocol]int
	ByHealthStatus map[HealthStatus]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDevices:   len(r.cache),
		ByProtocol:     make(map[Protocol]int),
		ByHealthStatus: make(map[HealthStatus]int),
	}

	for _, d := range r.cache {
		stats.TotalFeatures += len(d.Features)
		stats.ByProtocol[d.Protocol]++
		stats.ByHealthStatus[d.HealthStatus]++
	}

	return stats
}
