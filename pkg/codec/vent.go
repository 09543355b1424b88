package codec

import (
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

// Ventilation modes, as logical bits
const (
	VentAuto         = 0x01
	VentHeatExchange = 0x02
	VentBypass       = 0x04
	VentSleep        = 0x08
	VentPurify       = 0x10

	ventModeMask = VentAuto | VentHeatExchange | VentBypass | VentSleep | VentPurify
)

func ventCodec() baseCodec {
	return baseCodec{
		parse: map[Step]ParseFunc{
			StepCharacteristicRsp: parseVentCharacteristic,
			StepStatusRsp:         parseVentStatus,
			StepControlRsp:        parseVentStatus,
			StepControlReq:        parseVentControlReq,
		},
		build: map[BuildStep]BuildFunc{
			BuildCharacteristic: buildVentCharacteristic,
			BuildStatus:         buildVentStatus,
			BuildControlReq:     buildVentControlReq,
		},
	}
}

func parseVentCharacteristic(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if res, ok := checkResponse(pkt, out, 3); !ok {
		return res
	}
	out.Put(property.Int(PropVentSupportedModes, int(pkt.Data[1]&ventModeMask)))
	out.Put(property.Int(PropVentMaxSpeed, int(pkt.Data[2])))
	learnVariant(pkt, 3, out)
	return ksx4506.OKPeerDetected
}

func parseVentStatus(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	res, ok := checkResponse(pkt, out, 4)
	if !ok {
		return res
	}
	if len(pkt.Data) != 4 {
		return ksx4506.ErrorMalformedPacket
	}
	out.Put(property.Bool(PropVentPower, pkt.Data[1] != 0))
	out.Put(property.Int(PropVentMode, int(pkt.Data[2])))
	out.Put(property.Int(PropVentSpeed, int(pkt.Data[3])))
	return res
}

// requestedVent validates mode and speed against the advertised capability.
func requestedVent(s *Scope, mode, speed int) (int, int, bool) {
	supported := getInt(s.State, PropVentSupportedModes, 0)
	maxSpeed := getInt(s.State, PropVentMaxSpeed, 0)
	if mode&^supported != 0 || speed > maxSpeed || speed < 0 {
		if !s.Options.LenientMasks {
			return 0, 0, false
		}
		mode &= supported
		speed = clampInt(speed, 0, maxSpeed)
	}
	return mode, speed, true
}

func parseVentControlReq(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if len(pkt.Data) != 3 {
		return ksx4506.ErrorMalformedPacket
	}
	mode, speed, ok := requestedVent(s, int(pkt.Data[1]), int(pkt.Data[2]))
	if !ok {
		return ksx4506.ErrorUnknown
	}
	out.Put(property.Bool(PropVentPower, pkt.Data[0] != 0))
	out.Put(property.Int(PropVentMode, mode))
	out.Put(property.Int(PropVentSpeed, speed))
	return ksx4506.OKStateUpdated
}

func buildVentCharacteristic(s *Scope) ([]byte, ksx4506.ParseResult) {
	data := []byte{
		byte(getInt(s.State, PropVentSupportedModes, 0) & ventModeMask),
		byte(getInt(s.State, PropVentMaxSpeed, 0)),
	}
	return append(data, variantBytes(s.Variant)...), ksx4506.OKNone
}

func buildVentStatus(s *Scope) ([]byte, ksx4506.ParseResult) {
	var power byte
	if getBool(s.State, PropVentPower) {
		power = 1
	}
	return []byte{
		power,
		byte(getInt(s.State, PropVentMode, 0)),
		byte(getInt(s.State, PropVentSpeed, 0)),
	}, ksx4506.OKNone
}

func buildVentControlReq(s *Scope) ([]byte, ksx4506.ParseResult) {
	mode, speed, ok := requestedVent(s, getInt(s.State, PropVentMode, 0), getInt(s.State, PropVentSpeed, 0))
	if !ok {
		return nil, ksx4506.ErrorUnknown
	}
	var power byte
	if getBool(s.State, PropVentPower) {
		power = 1
	}
	return []byte{power, byte(mode), byte(speed)}, ksx4506.OKNone
}
