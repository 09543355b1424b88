package device

import (
	"encoding/json"

	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

// settable lists the properties a control request can change, per class.
var settable = map[ksx4506.DeviceClass][]string{
	ksx4506.ClassLight:       {codec.PropLightOn, codec.PropLightDimLevel},
	ksx4506.ClassGasValve:    {codec.PropGasClosed, codec.PropGasAlarm},
	ksx4506.ClassVentilation: {codec.PropVentPower, codec.PropVentMode, codec.PropVentSpeed},
	ksx4506.ClassThermostat:  {codec.PropThermoFunctions, codec.PropThermoSetTemp},
	ksx4506.ClassBatchSwitch: {codec.PropBatchState},
}

// capabilities lists the properties learned from characteristic responses.
var capabilities = map[ksx4506.DeviceClass][]string{
	ksx4506.ClassLight:       {codec.PropLightCount, codec.PropLightDimMax},
	ksx4506.ClassGasValve:    {codec.PropGasSupported},
	ksx4506.ClassVentilation: {codec.PropVentSupportedModes, codec.PropVentMaxSpeed},
	ksx4506.ClassThermostat:  {codec.PropThermoSupported, codec.PropThermoMinTemp, codec.PropThermoMaxTemp, codec.PropThermoResolution},
	ksx4506.ClassBatchSwitch: {codec.PropBatchSupported},
	ksx4506.ClassMeter:       {codec.PropMeterKind},
}

// Settable reports whether name can be written on a device of class.
func Settable(class ksx4506.DeviceClass, name string) bool {
	for _, n := range settable[class] {
		if n == name {
			return true
		}
	}
	return false
}

// StateSchema returns the JSON Schema for the settable state of a device.
// Bounds come from the learned capabilities in state.
func StateSchema(class ksx4506.DeviceClass, state property.Reader) json.RawMessage {
	props := map[string]any{}
	intOf := func(name string, def int) int {
		if v, ok := state.Get(name); ok {
			return v.AsInt()
		}
		return def
	}
	numOf := func(name string, def float64) float64 {
		if v, ok := state.Get(name); ok {
			return v.AsDouble()
		}
		return def
	}

	switch class {
	case ksx4506.ClassLight:
		props[codec.PropLightOn] = map[string]any{"type": "boolean"}
		props[codec.PropLightDimLevel] = map[string]any{
			"type": "integer", "minimum": 0, "maximum": intOf(codec.PropLightDimMax, 0),
		}
	case ksx4506.ClassGasValve:
		props[codec.PropGasClosed] = map[string]any{"type": "boolean"}
		props[codec.PropGasAlarm] = map[string]any{"type": "boolean", "const": false}
	case ksx4506.ClassVentilation:
		modes := []int{}
		sup := intOf(codec.PropVentSupportedModes, codec.VentAuto)
		for bit := 0; bit < 8; bit++ {
			if sup&(1<<bit) != 0 {
				modes = append(modes, 1<<bit)
			}
		}
		props[codec.PropVentPower] = map[string]any{"type": "boolean"}
		props[codec.PropVentMode] = map[string]any{"type": "integer", "enum": modes}
		props[codec.PropVentSpeed] = map[string]any{
			"type": "integer", "minimum": 0, "maximum": intOf(codec.PropVentMaxSpeed, 3),
		}
	case ksx4506.ClassThermostat:
		props[codec.PropThermoFunctions] = map[string]any{
			"type": "integer", "minimum": 0, "maximum": 0xFF,
		}
		props[codec.PropThermoSetTemp] = map[string]any{
			"type":    "number",
			"minimum": numOf(codec.PropThermoMinTemp, 5),
			"maximum": numOf(codec.PropThermoMaxTemp, 40),
		}
	case ksx4506.ClassBatchSwitch:
		props[codec.PropBatchState] = map[string]any{
			"type": "integer", "minimum": 0, "maximum": 0xFF,
		}
	}

	doc := map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

// Exposes renders the learned capability properties of a device.
func Exposes(class ksx4506.DeviceClass, state property.Reader) json.RawMessage {
	out := map[string]any{}
	for _, name := range capabilities[class] {
		if v, ok := state.Get(name); ok {
			out[name] = v.Raw()
		}
	}
	b, err := json.Marshal(out)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}
