package appliance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Characteristic names exposed by accessories.
const (
	CharOn                      = "on"
	CharActive                  = "active"
	CharTargetState             = "targetState"
	CharCurrentState            = "currentState"
	CharTargetTemperature       = "targetTemperature"
	CharCurrentTemperature      = "currentTemperature"
	CharCurrentHumidity         = "currentHumidity"
	CharTargetHumidity          = "targetHumidity"
	CharCoolingThreshold        = "coolingThresholdTemperature"
	CharHeatingThreshold        = "heatingThresholdTemperature"
	CharHumidifierThreshold     = "humidifierThreshold"
	CharDehumidifierThreshold   = "dehumidifierThreshold"
	CharRotationSpeed           = "rotationSpeed"
	CharSwingMode               = "swingMode"
	CharRotationDirection       = "rotationDirection"
	CharLockPhysicalControls    = "lockPhysicalControls"
	CharTemperatureDisplayUnits = "temperatureDisplayUnits"
	CharBatteryLevel            = "batteryLevel"
)

// Rotation directions.
const (
	Clockwise        = 0
	CounterClockwise = 1
)

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case float64:
		return b != 0, nil
	case int:
		return b != 0, nil
	case json.Number:
		f, err := b.Float64()
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return f != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "on", "1", "yes":
			return true, nil
		case "false", "off", "0", "no":
			return false, nil
		}
	}
	return false, fmt.Errorf("%w: %v is not a boolean", ErrInvalidValue, v)
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, n)
		}
		return f, nil
	}
	return 0, fmt.Errorf("%w: %v is not a number", ErrInvalidValue, v)
}

func toInt(v any) (int, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return int(f + 0.5), nil
}

// enumValue accepts either the numeric value or one of names (index = value).
func enumValue(v any, names ...string) (int, error) {
	if s, ok := v.(string); ok {
		for i, name := range names {
			if strings.EqualFold(strings.TrimSpace(s), name) {
				return i, nil
			}
		}
	}
	n, err := toInt(v)
	if err != nil {
		return 0, err
	}
	if n < 0 || n >= len(names) {
		return 0, fmt.Errorf("%w: %d not in 0..%d", ErrInvalidValue, n, len(names)-1)
	}
	return n, nil
}

func secondsDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
