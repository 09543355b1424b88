package device

import (
	"fmt"

	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/ksx4506"
)

// PowerState returns the state change that switches a device of the given
// type on or off. current is the device's state, used where "on" is one bit
// of a wider field. Classes without an on/off notion return ErrUnsupported.
func PowerState(typ string, current DeviceState, on bool) (map[string]any, error) {
	switch typ {
	case ksx4506.ClassLight.String():
		return map[string]any{codec.PropLightOn: on}, nil
	case ksx4506.ClassGasValve.String():
		return map[string]any{codec.PropGasClosed: !on}, nil
	case ksx4506.ClassVentilation.String():
		return map[string]any{codec.PropVentPower: on}, nil
	case ksx4506.ClassThermostat.String():
		fn := toInt(current[codec.PropThermoFunctions])
		if on {
			fn |= codec.ThermoHeating
		} else {
			fn &^= codec.ThermoHeating
		}
		return map[string]any{codec.PropThermoFunctions: fn}, nil
	default:
		return nil, fmt.Errorf("%w: %s has no on/off control", ErrUnsupported, typ)
	}
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	default:
		return 0
	}
}
