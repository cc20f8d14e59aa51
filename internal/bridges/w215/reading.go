package w215

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/nerrad567/gray-logic-w215/internal/device"
)

// Sentinel readings the plug returns instead of a measurement.
const (
	SentinelUndefined = "undefined"
	SentinelError     = "ERROR"
)

var one = decimal.NewFromInt(1)

// Normalize validates a raw reading and returns it in the representation
// used for both comparison and emission.
//
// Sentinels are rejected before the binary mapping, so a transient error is
// never reported as OFF.
func Normalize(typ device.FeatureType, raw string) (decimal.Decimal, error) {
	if raw == SentinelUndefined || raw == SentinelError {
		return decimal.Decimal{}, fmt.Errorf("%w: sentinel %q", ErrInvalidReading, raw)
	}

	if typ == device.TypeBinary {
		if raw == "true" {
			return one, nil
		}
		return decimal.Zero, nil
	}

	if _, err := decimal.NewFromString(raw); err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s reading %q is not a number", ErrInvalidReading, typ, raw)
	}
	// Rounding rescales to the parsed exponent, so the magnitude is bounded
	// through float64 before any decimal arithmetic.
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || !finite(f) {
		return decimal.Decimal{}, fmt.Errorf("%w: %s reading %q is out of range", ErrInvalidReading, typ, raw)
	}
	return represent(typ, decimal.NewFromFloat(f)), nil
}

// Changed reports whether value differs from the stored last value once
// both share the same representation. A nil last value has never been
// reported, so any reading is a change; a non-finite last value cannot be
// compared and counts as a change too.
func Changed(typ device.FeatureType, value decimal.Decimal, last *float64) bool {
	if last == nil || !finite(*last) {
		return true
	}
	return !value.Equal(represent(typ, decimal.NewFromFloat(*last)))
}

func finite(f float64) bool {
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

// represent applies the per-type rounding.
func represent(typ device.FeatureType, d decimal.Decimal) decimal.Decimal {
	switch typ {
	case device.TypeBinary:
		if d.Equal(one) {
			return one
		}
		return decimal.Zero
	case device.TypePower:
		return d.Round(0)
	case device.TypeTemperature:
		return d.Truncate(0)
	case device.TypeEnergy:
		return d.Round(3)
	default:
		return d
	}
}
