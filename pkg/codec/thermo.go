package codec

import (
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

// Thermostat function bits
const (
	ThermoHeating     = 0x01
	ThermoOuting      = 0x02
	ThermoReservation = 0x04
	ThermoHotWater    = 0x08
)

func thermoCodec() baseCodec {
	return baseCodec{
		parse: map[Step]ParseFunc{
			StepCharacteristicRsp: parseThermoCharacteristic,
			StepStatusRsp:         parseThermoStatus,
			StepControlRsp:        parseThermoStatus,
			StepControlReq:        parseThermoControlReq,
		},
		build: map[BuildStep]BuildFunc{
			BuildCharacteristic: buildThermoCharacteristic,
			BuildStatus:         buildThermoStatus,
			BuildControlReq:     buildThermoControlReq,
		},
	}
}

func parseThermoCharacteristic(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if res, ok := checkResponse(pkt, out, 5); !ok {
		return res
	}
	lo, hi := ksx4506.DecodeTemp(pkt.Data[2]), ksx4506.DecodeTemp(pkt.Data[3])
	if lo > hi {
		return ksx4506.ErrorMalformedPacket
	}
	resolution := 1.0
	if pkt.Data[4] != 0 {
		resolution = 0.5
	}
	out.Put(property.Int(PropThermoSupported, int(pkt.Data[1])))
	out.Put(property.Double(PropThermoMinTemp, lo))
	out.Put(property.Double(PropThermoMaxTemp, hi))
	out.Put(property.Double(PropThermoResolution, resolution))
	learnVariant(pkt, 5, out)
	return ksx4506.OKPeerDetected
}

func parseThermoStatus(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	res, ok := checkResponse(pkt, out, 4)
	if !ok {
		return res
	}
	if len(pkt.Data) != 4 {
		return ksx4506.ErrorMalformedPacket
	}
	out.Put(property.Int(PropThermoFunctions, int(pkt.Data[1])))
	out.Put(property.Double(PropThermoSetTemp, ksx4506.DecodeTemp(pkt.Data[2])))
	out.Put(property.Double(PropThermoCurTemp, ksx4506.DecodeTemp(pkt.Data[3])))
	return res
}

// requestedThermo validates functions and set temperature against the
// advertised capability and quantizes the temperature to the resolution.
func requestedThermo(s *Scope, functions int, temp float64) (int, float64, bool) {
	supported := getInt(s.State, PropThermoSupported, 0)
	lo := getDouble(s.State, PropThermoMinTemp, 0)
	hi := getDouble(s.State, PropThermoMaxTemp, 0)

	if functions&^supported != 0 {
		if !s.Options.LenientMasks {
			return 0, 0, false
		}
		functions &= supported
	}
	if temp < lo || temp > hi {
		if !s.Options.LenientMasks {
			return 0, 0, false
		}
		if temp < lo {
			temp = lo
		} else {
			temp = hi
		}
	}
	if getDouble(s.State, PropThermoResolution, 1) >= 1 {
		temp = ksx4506.RoundHalfUp(temp, 0)
	} else {
		temp = ksx4506.RoundHalfUp(temp*2, 0) / 2
	}
	return functions, temp, true
}

func parseThermoControlReq(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if len(pkt.Data) != 2 {
		return ksx4506.ErrorMalformedPacket
	}
	functions, temp, ok := requestedThermo(s, int(pkt.Data[0]), ksx4506.DecodeTemp(pkt.Data[1]))
	if !ok {
		return ksx4506.ErrorUnknown
	}
	out.Put(property.Int(PropThermoFunctions, functions))
	out.Put(property.Double(PropThermoSetTemp, temp))
	return ksx4506.OKStateUpdated
}

func buildThermoCharacteristic(s *Scope) ([]byte, ksx4506.ParseResult) {
	var half byte
	if getDouble(s.State, PropThermoResolution, 1) < 1 {
		half = 1
	}
	data := []byte{
		byte(getInt(s.State, PropThermoSupported, 0)),
		ksx4506.EncodeTemp(getDouble(s.State, PropThermoMinTemp, 0)),
		ksx4506.EncodeTemp(getDouble(s.State, PropThermoMaxTemp, 0)),
		half,
	}
	return append(data, variantBytes(s.Variant)...), ksx4506.OKNone
}

func buildThermoStatus(s *Scope) ([]byte, ksx4506.ParseResult) {
	return []byte{
		byte(getInt(s.State, PropThermoFunctions, 0)),
		ksx4506.EncodeTemp(getDouble(s.State, PropThermoSetTemp, 0)),
		ksx4506.EncodeTemp(getDouble(s.State, PropThermoCurTemp, 0)),
	}, ksx4506.OKNone
}

func buildThermoControlReq(s *Scope) ([]byte, ksx4506.ParseResult) {
	functions, temp, ok := requestedThermo(s, getInt(s.State, PropThermoFunctions, 0), getDouble(s.State, PropThermoSetTemp, 0))
	if !ok {
		return nil, ksx4506.ErrorUnknown
	}
	return []byte{byte(functions), ksx4506.EncodeTemp(temp)}, ksx4506.OKNone
}
