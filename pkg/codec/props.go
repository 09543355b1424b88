package codec

import (
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

// Property names
const (
	PropVersion = "device.version"
	PropVendor  = "device.vendor"

	PropLightCount    = "light.count"
	PropLightDimMax   = "light.dim_max"
	PropLightOn       = "light.on"
	PropLightDimLevel = "light.dim_level"

	PropGasSupported = "gas.supported"
	PropGasClosed    = "gas.closed"
	PropGasOperating = "gas.operating"
	PropGasAlarm     = "gas.alarm"

	PropVentSupportedModes = "vent.supported_modes"
	PropVentMaxSpeed       = "vent.max_speed"
	PropVentPower          = "vent.power"
	PropVentMode           = "vent.mode"
	PropVentSpeed          = "vent.speed"

	PropThermoSupported  = "thermo.supported"
	PropThermoMinTemp    = "thermo.min_temp"
	PropThermoMaxTemp    = "thermo.max_temp"
	PropThermoResolution = "thermo.resolution"
	PropThermoFunctions  = "thermo.functions"
	PropThermoSetTemp    = "thermo.set_temp"
	PropThermoCurTemp    = "thermo.cur_temp"

	PropBatchSupported = "batch.supported"
	PropBatchState     = "batch.state"

	PropMeterKind    = "meter.kind"
	PropMeterAlarm   = "meter.alarm"
	PropMeterCurrent = "meter.current"
	PropMeterTotal   = "meter.total"
)

// Defaults returns the initial property set of a device class. The kinds
// fixed here are the kinds every later write must match.
func Defaults(class ksx4506.DeviceClass) []property.Value {
	common := []property.Value{property.Int(PropVersion, 0), property.Int(PropVendor, 0)}
	switch class {
	case ksx4506.ClassLight:
		return append(common,
			property.Int(PropLightCount, 1),
			property.Int(PropLightDimMax, 0),
			property.Bool(PropLightOn, false),
			property.Int(PropLightDimLevel, 0),
		)
	case ksx4506.ClassGasValve:
		return append(common,
			property.Int(PropGasSupported, GasClosed|GasOperating|GasAlarm),
			property.Bool(PropGasClosed, false),
			property.Bool(PropGasOperating, false),
			property.Bool(PropGasAlarm, false),
		)
	case ksx4506.ClassVentilation:
		return append(common,
			property.Int(PropVentSupportedModes, VentAuto),
			property.Int(PropVentMaxSpeed, 3),
			property.Bool(PropVentPower, false),
			property.Int(PropVentMode, VentAuto),
			property.Int(PropVentSpeed, 0),
		)
	case ksx4506.ClassThermostat:
		return append(common,
			property.Int(PropThermoSupported, ThermoHeating),
			property.Double(PropThermoMinTemp, 5),
			property.Double(PropThermoMaxTemp, 40),
			property.Double(PropThermoResolution, 1),
			property.Int(PropThermoFunctions, 0),
			property.Double(PropThermoSetTemp, 20),
			property.Double(PropThermoCurTemp, 20),
		)
	case ksx4506.ClassBatchSwitch:
		return append(common,
			property.Int(PropBatchSupported, 0),
			property.Int(PropBatchState, 0),
		)
	case ksx4506.ClassMeter:
		return append(common,
			property.Int(PropMeterKind, 0),
			property.Bool(PropMeterAlarm, false),
			property.Double(PropMeterCurrent, 0),
			property.Double(PropMeterTotal, 0),
		)
	default:
		return nil
	}
}

func getInt(r property.Reader, name string, def int) int {
	if r == nil {
		return def
	}
	if v, ok := r.Get(name); ok {
		return v.AsInt()
	}
	return def
}

func getBool(r property.Reader, name string) bool {
	if r == nil {
		return false
	}
	if v, ok := r.Get(name); ok {
		return v.AsBool()
	}
	return false
}

func getDouble(r property.Reader, name string, def float64) float64 {
	if r == nil {
		return def
	}
	if v, ok := r.Get(name); ok {
		return v.AsDouble()
	}
	return def
}
