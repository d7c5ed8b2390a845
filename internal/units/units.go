// Package units converts vehicle speeds for operator-facing output. All
// internal speeds are metres per second.
package units

import (
	"fmt"
	"slices"
	"strings"
)

const (
	MPS  = "mps"
	MPH  = "mph"
	KMPH = "kmph"
	KPH  = "kph"
)

// ValidUnits lists the accepted unit names.
var ValidUnits = []string{MPS, MPH, KMPH, KPH}

// IsValid reports whether unit is one of ValidUnits. Names are case
// sensitive.
func IsValid(unit string) bool {
	return slices.Contains(ValidUnits, unit)
}

// Parse validates unit, returning an error that lists the accepted names.
func Parse(unit string) (string, error) {
	if !IsValid(unit) {
		return "", fmt.Errorf("invalid speed unit %q (valid: %s)", unit, strings.Join(ValidUnits, ", "))
	}
	return unit, nil
}

// ConvertSpeed converts a speed in m/s to unit. Unknown units pass the
// value through unchanged.
func ConvertSpeed(speedMPS float64, unit string) float64 {
	switch unit {
	case MPH:
		return speedMPS * 2.2369362920544
	case KMPH, KPH:
		return speedMPS * 3.6
	default:
		return speedMPS
	}
}

// Label is the display suffix for unit.
func Label(unit string) string {
	switch unit {
	case MPH:
		return "mph"
	case KMPH, KPH:
		return "km/h"
	default:
		return "m/s"
	}
}

// Format renders a m/s speed in unit with one decimal place.
func Format(speedMPS float64, unit string) string {
	return fmt.Sprintf("%.1f %s", ConvertSpeed(speedMPS, unit), Label(unit))
}
