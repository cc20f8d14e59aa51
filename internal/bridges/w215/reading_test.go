package w215

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-w215/internal/device"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		typ  device.FeatureType
		raw  string
		want string
	}{
		{"binary true", device.TypeBinary, "true", "1"},
		{"binary false", device.TypeBinary, "false", "0"},
		{"binary anything else", device.TypeBinary, "on", "0"},
		{"power rounds up", device.TypePower, "42.6", "43"},
		{"power rounds down", device.TypePower, "41.8", "42"},
		{"power half away from zero", device.TypePower, "42.5", "43"},
		{"power integer", device.TypePower, "0", "0"},
		{"temperature truncates", device.TypeTemperature, "27.9", "27"},
		{"temperature negative truncates toward zero", device.TypeTemperature, "-3.7", "-3"},
		{"energy three decimals", device.TypeEnergy, "1.2345", "1.235"},
		{"energy short", device.TypeEnergy, "12.5", "12.5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.typ, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestNormalize_Rejects(t *testing.T) {
	for _, typ := range device.AllFeatureTypes() {
		for _, raw := range []string{SentinelUndefined, SentinelError} {
			t.Run(string(typ)+"/"+raw, func(t *testing.T) {
				_, err := Normalize(typ, raw)
				assert.ErrorIs(t, err, ErrInvalidReading)
			})
		}
	}

	for _, typ := range []device.FeatureType{device.TypePower, device.TypeTemperature, device.TypeEnergy} {
		for _, raw := range []string{"n/a", "NaN", "Inf", "-Inf", "0x1p3", "1e400", "-1e400", "1e400000000"} {
			t.Run(string(typ)+"/"+raw, func(t *testing.T) {
				_, err := Normalize(typ, raw)
				assert.ErrorIs(t, err, ErrInvalidReading)
			})
		}
	}
}

func TestNormalize_ExtremeButFinite(t *testing.T) {
	got, err := Normalize(device.TypePower, "1e300")
	require.NoError(t, err)
	assert.Equal(t, 1e300, got.InexactFloat64())

	for _, raw := range []string{"1e-300", "1e-400000000"} {
		got, err = Normalize(device.TypeEnergy, raw)
		require.NoError(t, err)
		assert.True(t, got.IsZero(), raw)
	}
}

func TestChanged_NonFiniteLastValue(t *testing.T) {
	v, err := Normalize(device.TypePower, "42")
	require.NoError(t, err)

	for _, last := range []float64{math.Inf(1), math.Inf(-1), math.NaN()} {
		assert.True(t, Changed(device.TypePower, v, &last), "last=%v", last)
	}
}

func TestChanged(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	tests := []struct {
		name string
		typ  device.FeatureType
		raw  string
		last *float64
		want bool
	}{
		{"never reported", device.TypePower, "10", nil, true},
		{"power 42.6 against 42", device.TypePower, "42.6", f(42), true},
		{"power 41.8 against 42", device.TypePower, "41.8", f(42), false},
		{"power against unrounded last", device.TypePower, "42.2", f(41.9), false},
		{"energy 1.2345 against 1.234", device.TypeEnergy, "1.2345", f(1.234), true},
		{"energy equal after rounding", device.TypeEnergy, "1.2344", f(1.234), false},
		{"temperature same degree", device.TypeTemperature, "27.9", f(27.1), false},
		{"temperature new degree", device.TypeTemperature, "28.0", f(27.9), true},
		{"binary on from off", device.TypeBinary, "true", f(0), true},
		{"binary off while off", device.TypeBinary, "false", f(0), false},
		{"binary on while on", device.TypeBinary, "true", f(1), false},
		{"binary off from on", device.TypeBinary, "false", f(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Normalize(tt.typ, tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, Changed(tt.typ, v, tt.last))
		})
	}
}
