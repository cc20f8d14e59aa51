package w215

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-w215/internal/device"
	"github.com/nerrad567/gray-logic-w215/internal/infrastructure/config"
)

// SeedStore is the part of the device registry seeding needs.
type SeedStore interface {
	GetDeviceByExternalID(ctx context.Context, externalID string) (*device.Device, error)
	CreateDevice(ctx context.Context, d *device.Device) error
	SetParam(ctx context.Context, deviceID, name, value string) error
}

// NewPlug builds a plug device with its four switch features.
func NewPlug(id, name, address string) *device.Device {
	extID := DeviceExternalID(address)
	if name == "" {
		name = "DSP-W215 " + address
	}
	d := &device.Device{
		ID:         id,
		Name:       name,
		ExternalID: extID,
		Protocol:   device.ProtocolW215,
	}
	for _, typ := range device.AllFeatureTypes() {
		d.Features = append(d.Features, device.Feature{
			Name:       name + " " + string(typ),
			ExternalID: FeatureExternalID(extID, typ),
			Category:   device.CategorySwitch,
			Type:       typ,
		})
	}
	return d
}

// Seed creates the configured plugs that are not registered yet. For plugs
// that already exist only a configured pin is applied. It returns the number
// of plugs created.
func Seed(ctx context.Context, store SeedStore, plugs []config.W215DeviceConfig) (int, error) {
	created := 0
	for _, p := range plugs {
		extID := DeviceExternalID(p.Address)
		if _, err := ParseExternalID(extID); err != nil {
			return created, fmt.Errorf("seeding %s: %w", p.Address, err)
		}

		existing, err := store.GetDeviceByExternalID(ctx, extID)
		switch {
		case err == nil:
			if p.Pin != "" {
				if err := store.SetParam(ctx, existing.ID, device.ParamW215PinCode, p.Pin); err != nil {
					return created, fmt.Errorf("seeding pin of %s: %w", existing.ID, err)
				}
			}
			continue
		case !errors.Is(err, device.ErrDeviceNotFound):
			return created, fmt.Errorf("seeding %s: %w", p.Address, err)
		}

		d := NewPlug(p.ID, p.Name, p.Address)
		if p.Pin != "" {
			d.Params = []device.Param{{Name: device.ParamW215PinCode, Value: p.Pin}}
		}
		if err := store.CreateDevice(ctx, d); err != nil {
			return created, fmt.Errorf("seeding %s: %w", p.Address, err)
		}
		created++
	}
	return created, nil
}
