package codec

import (
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

const (
	lightOnBit    = 0x01
	lightDimShift = 4
	lightDimLimit = 0x0F

	// Index F addresses the whole group.
	maxGroupMembers = 14
)

func lightCodec() baseCodec {
	return baseCodec{
		parse: map[Step]ParseFunc{
			StepCharacteristicRsp: parseLightCharacteristic,
			StepStatusRsp:         parseLightStatus,
			StepControlRsp:        parseLightStatus,
			StepControlReq:        parseLightControlReq,
			StepGroupControlReq:   parseLightGroupControlReq,
		},
		build: map[BuildStep]BuildFunc{
			BuildCharacteristic: buildLightCharacteristic,
			BuildStatus:         buildLightStatus,
			BuildControlReq:     buildLightControlReq,
		},
	}
}

func decodeTone(out *Output, tone byte) {
	out.Put(property.Bool(PropLightOn, tone&lightOnBit != 0))
	out.Put(property.Int(PropLightDimLevel, int(tone>>lightDimShift)))
}

func encodeTone(on bool, dim int) byte {
	t := byte(dim&lightDimLimit) << lightDimShift
	if on {
		t |= lightOnBit
	}
	return t
}

func parseLightCharacteristic(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if res, ok := checkResponse(pkt, out, 3); !ok {
		return res
	}
	out.Put(property.Int(PropLightCount, int(pkt.Data[1])))
	out.Put(property.Int(PropLightDimMax, int(pkt.Data[2]&lightDimLimit)))
	learnVariant(pkt, 3, out)
	return ksx4506.OKPeerDetected
}

// parseLightStatus handles single status and control responses plus group
// status responses, which carry one tone per member starting at index 1.
func parseLightStatus(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	res, ok := checkResponse(pkt, out, 2)
	if !ok {
		return res
	}
	switch s.Address.Mode() {
	case ksx4506.ModeAll:
		return ksx4506.ErrorUnknown
	case ksx4506.ModeFullGroup:
		tones := pkt.Data[1:]
		if len(tones) > maxGroupMembers {
			return ksx4506.ErrorMalformedPacket
		}
		anyOn := false
		for i, t := range tones {
			decodeTone(out.Child(uint8(i+1)), t)
			anyOn = anyOn || t&lightOnBit != 0
		}
		out.Put(property.Int(PropLightCount, len(tones)))
		out.Put(property.Bool(PropLightOn, anyOn))
		return res
	default:
		if len(pkt.Data) != 2 {
			return ksx4506.ErrorMalformedPacket
		}
		decodeTone(out, pkt.Data[1])
		return res
	}
}

// requestedDim validates a requested dim level against the advertised
// maximum. ok is false when the request is declined.
func requestedDim(s *Scope, dim int) (int, bool) {
	dimMax := getInt(s.State, PropLightDimMax, 0)
	if dim < 0 {
		dim = 0
	}
	if dim <= dimMax {
		return dim, true
	}
	if s.Options.LenientMasks {
		return dimMax, true
	}
	return 0, false
}

func parseLightControlReq(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if len(pkt.Data) != 1 {
		return ksx4506.ErrorMalformedPacket
	}
	tone := pkt.Data[0]
	dim, ok := requestedDim(s, int(tone>>lightDimShift))
	if !ok {
		return ksx4506.ErrorUnknown
	}
	decodeTone(out, encodeTone(tone&lightOnBit != 0, dim))
	return ksx4506.OKStateUpdated
}

func parseLightGroupControlReq(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	res := parseLightControlReq(s, pkt, out)
	if res.Failed() || !s.Address.IsGroup() {
		return res
	}
	count := getInt(s.State, PropLightCount, 0)
	for i := 1; i <= count; i++ {
		c := out.Child(uint8(i))
		for _, v := range out.Values() {
			if v.Name() == PropLightOn || v.Name() == PropLightDimLevel {
				c.Put(v)
			}
		}
	}
	return res
}

func buildLightCharacteristic(s *Scope) ([]byte, ksx4506.ParseResult) {
	data := []byte{
		byte(getInt(s.State, PropLightCount, 1)),
		byte(getInt(s.State, PropLightDimMax, 0) & lightDimLimit),
	}
	return append(data, variantBytes(s.Variant)...), ksx4506.OKNone
}

func buildLightStatus(s *Scope) ([]byte, ksx4506.ParseResult) {
	if s.Address.Mode() != ksx4506.ModeFullGroup {
		return []byte{encodeTone(getBool(s.State, PropLightOn), getInt(s.State, PropLightDimLevel, 0))}, ksx4506.OKNone
	}
	count := getInt(s.State, PropLightCount, 0)
	data := make([]byte, 0, count)
	for i := 1; i <= count; i++ {
		var r property.Reader
		if s.Child != nil {
			if cr, ok := s.Child(uint8(i)); ok {
				r = cr
			}
		}
		data = append(data, encodeTone(getBool(r, PropLightOn), getInt(r, PropLightDimLevel, 0)))
	}
	return data, ksx4506.OKNone
}

func buildLightControlReq(s *Scope) ([]byte, ksx4506.ParseResult) {
	dim, ok := requestedDim(s, getInt(s.State, PropLightDimLevel, 0))
	if !ok {
		return nil, ksx4506.ErrorUnknown
	}
	return []byte{encodeTone(getBool(s.State, PropLightOn), dim)}, ksx4506.OKNone
}
