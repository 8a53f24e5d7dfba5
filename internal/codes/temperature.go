package codes

import (
	"fmt"
	"math"
	"strconv"
)

// Mode names used in thermostat table keys and pseudo-mode attributes.
const (
	ModeOff  = "off"
	ModeHeat = "heat"
	ModeCool = "cool"
	ModeAuto = "auto"
)

// TemperatureDefaults selects the fallback temperature when a table has no
// entry for the requested one.
type TemperatureDefaults struct {
	// HeatTemperature splits requests: at or above it the heat default is
	// used, below it the cool default.
	HeatTemperature float64
	DefaultHeat     float64
	DefaultCool     float64
}

// Fallback returns the default temperature for a request of temp.
func (d TemperatureDefaults) Fallback(temp float64) float64 {
	if temp >= d.HeatTemperature {
		return d.DefaultHeat
	}
	return d.DefaultCool
}

// TemperatureKey formats a temperature the way table keys spell it:
// 22 -> "22", 22.5 -> "22.5".
func TemperatureKey(temp float64) string {
	return strconv.FormatFloat(temp, 'f', -1, 64)
}

// TemperatureCode finds the thermostat entry for mode at temp.
//
// Lookup order is "<mode><temp>", then "temperature<temp>", then
// "temperature<fallback>". The returned temperature is the one the entry was
// found for, which differs from temp when the fallback was used.
func TemperatureCode(table *Entry, mode string, temp float64, d TemperatureDefaults) (*Entry, float64, error) {
	key := TemperatureKey(temp)

	if e := table.Get(mode + key); !e.IsEmpty() {
		return e, temp, nil
	}
	if e := table.Get("temperature" + key); !e.IsEmpty() {
		return e, temp, nil
	}

	fallback := d.Fallback(temp)
	if e := table.Get("temperature" + TemperatureKey(fallback)); !e.IsEmpty() {
		return e, fallback, nil
	}

	return nil, temp, fmt.Errorf("%w: provide %q or %q", ErrMissingCode,
		"temperature"+key, "temperature"+TemperatureKey(fallback))
}

// PseudoMode returns the validated pseudo-mode attribute of a temperature
// entry, or "" when it has none.
func PseudoMode(e *Entry) (string, error) {
	mode := e.Attr("pseudo-mode")
	switch mode {
	case "", ModeHeat, ModeCool, ModeAuto:
		return mode, nil
	default:
		return "", fmt.Errorf("%w: got %q", ErrInvalidPseudoMode, mode)
	}
}

// CToF converts Celsius to whole degrees Fahrenheit, rounding half up.
func CToF(c float64) float64 {
	return math.Trunc(math.Floor(c*9/5 + 32 + 0.5))
}

// FToC converts Fahrenheit to Celsius truncated toward zero to one decimal.
func FToC(f float64) float64 {
	c := (f - 32) * 5 / 9
	abs := math.Abs(c)
	whole := math.Trunc(abs)
	fraction := math.Trunc((abs-whole)*10) / 10
	if c < 0 {
		return -(whole + fraction)
	}
	return whole + fraction
}
