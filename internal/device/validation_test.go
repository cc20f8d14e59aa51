package device

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerateSlug(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"Kitchen Plug", "kitchen-plug"},
		{"  Desk -- Lamp  ", "desk-lamp"},
		{"w215:192.168.1.20", "w215-192-168-1-20"},
		{"Büro Steckdose", "bro-steckdose"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GenerateSlug(tt.name); got != tt.want {
				t.Errorf("GenerateSlug(%q) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestValidateDevice(t *testing.T) {
	valid := func() *Device {
		d := testPlug("Plug", "10.0.0.1")
		d.ID = "id"
		d.Slug = "plug"
		return d
	}

	tests := []struct {
		name    string
		mutate  func(d *Device)
		wantErr error
	}{
		{"valid", func(*Device) {}, nil},
		{"empty name", func(d *Device) { d.Name = " " }, ErrInvalidName},
		{"bad slug", func(d *Device) { d.Slug = "Not A Slug" }, ErrInvalidSlug},
		{"missing external id", func(d *Device) { d.ExternalID = "" }, ErrInvalidDevice},
		{"unknown protocol", func(d *Device) { d.Protocol = "knx" }, ErrInvalidProtocol},
		{"wrong category", func(d *Device) { d.Features[0].Category = "light" }, ErrInvalidFeature},
		{"duplicate type", func(d *Device) { d.Features[1].Type = TypeBinary }, ErrInvalidFeature},
		{"feature without external id", func(d *Device) { d.Features[2].ExternalID = "" }, ErrInvalidFeature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(d)
			err := ValidateDevice(d)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateDevice() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateDevice() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
