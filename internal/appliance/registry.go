package appliance

import (
	"fmt"
	"strings"
)

// New builds the accessory described by spec.
//
// Parameters:
//   - spec: One entry of the accessories file
//   - deps: Shared collaborators
//
// Returns:
//   - Accessory: The configured accessory, not yet started
//   - error: ErrUnknownType or ErrInvalidConfig
func New(spec Spec, deps Deps) (Accessory, error) {
	switch spec.Type {
	case TypeSwitch:
		var cfg SwitchConfig
		if err := spec.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewSwitch(cfg, deps)

	case TypeFan:
		var cfg FanConfig
		if err := spec.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewFan(cfg, deps)

	case TypeAirPurifier:
		var cfg AirPurifierConfig
		if err := spec.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewAirPurifier(cfg, deps)

	case TypeHumidifier:
		var cfg HumidifierConfig
		if err := spec.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewHumidifier(cfg, deps)

	case TypeAirConditioner:
		var cfg AirConConfig
		if err := spec.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewAirCon(cfg, deps)

	case TypeHeaterCooler:
		var cfg HeaterCoolerConfig
		if err := spec.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewHeaterCooler(cfg, deps)

	case TypeTemperatureSensor:
		var cfg TemperatureSensorConfig
		if err := spec.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewTemperatureSensor(cfg, deps)

	case TypeHumiditySensor:
		var cfg HumiditySensorConfig
		if err := spec.Decode(&cfg); err != nil {
			return nil, err
		}
		return NewHumiditySensor(cfg, deps)

	default:
		return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownType, spec.Type, strings.Join(Types(), ", "))
	}
}

// Types lists the supported accessory types.
func Types() []string {
	return []string{
		TypeSwitch,
		TypeFan,
		TypeAirPurifier,
		TypeHumidifier,
		TypeAirConditioner,
		TypeHeaterCooler,
		TypeTemperatureSensor,
		TypeHumiditySensor,
	}
}
