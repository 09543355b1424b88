package codec

import (
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

// Gas valve state bits
const (
	GasClosed    = 0x01
	GasOperating = 0x02
	GasAlarm     = 0x04
)

const (
	gasCmdOpen  = 0x00
	gasCmdClose = 0x01
)

func gasCodec() baseCodec {
	return baseCodec{
		parse: map[Step]ParseFunc{
			StepCharacteristicRsp: parseGasCharacteristic,
			StepStatusRsp:         parseGasStatus,
			StepControlRsp:        parseGasStatus,
			StepAlarmOffRsp:       parseGasStatus,
			StepControlReq:        parseGasControlReq,
			StepAlarmOffReq:       parseGasAlarmOffReq,
		},
		build: map[BuildStep]BuildFunc{
			BuildCharacteristic: buildGasCharacteristic,
			BuildStatus:         buildGasStatus,
			BuildControlReq:     buildGasControlReq,
		},
	}
}

func parseGasCharacteristic(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if res, ok := checkResponse(pkt, out, 2); !ok {
		return res
	}
	out.Put(property.Int(PropGasSupported, int(pkt.Data[1])))
	learnVariant(pkt, 2, out)
	return ksx4506.OKPeerDetected
}

func parseGasStatus(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	res, ok := checkResponse(pkt, out, 2)
	if !ok {
		return res
	}
	if len(pkt.Data) != 2 {
		return ksx4506.ErrorMalformedPacket
	}
	st := pkt.Data[1]
	out.Put(property.Bool(PropGasClosed, st&GasClosed != 0))
	out.Put(property.Bool(PropGasOperating, st&GasOperating != 0))
	out.Put(property.Bool(PropGasAlarm, st&GasAlarm != 0))
	return res
}

func parseGasControlReq(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if len(pkt.Data) != 1 {
		return ksx4506.ErrorMalformedPacket
	}
	switch pkt.Data[0] {
	case gasCmdClose:
		out.Put(property.Bool(PropGasClosed, true))
	case gasCmdOpen:
		if !s.Options.LenientMasks {
			return ksx4506.ErrorUnknown
		}
		out.Put(property.Bool(PropGasClosed, false))
	default:
		return ksx4506.ErrorMalformedPacket
	}
	out.Put(property.Bool(PropGasOperating, false))
	return ksx4506.OKStateUpdated
}

func parseGasAlarmOffReq(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if len(pkt.Data) != 0 {
		return ksx4506.ErrorMalformedPacket
	}
	out.Put(property.Bool(PropGasAlarm, false))
	return ksx4506.OKStateUpdated
}

func buildGasCharacteristic(s *Scope) ([]byte, ksx4506.ParseResult) {
	data := []byte{byte(getInt(s.State, PropGasSupported, GasClosed|GasOperating|GasAlarm))}
	return append(data, variantBytes(s.Variant)...), ksx4506.OKNone
}

func buildGasStatus(s *Scope) ([]byte, ksx4506.ParseResult) {
	var st byte
	if getBool(s.State, PropGasClosed) {
		st |= GasClosed
	}
	if getBool(s.State, PropGasOperating) {
		st |= GasOperating
	}
	if getBool(s.State, PropGasAlarm) {
		st |= GasAlarm
	}
	return []byte{st}, ksx4506.OKNone
}

// buildGasControlReq only closes the valve. Opening over the bus is not part
// of the standard command set and is declined unless masks are lenient.
func buildGasControlReq(s *Scope) ([]byte, ksx4506.ParseResult) {
	if getBool(s.State, PropGasClosed) {
		return []byte{gasCmdClose}, ksx4506.OKNone
	}
	if !s.Options.LenientMasks {
		return nil, ksx4506.ErrorUnknown
	}
	return []byte{gasCmdOpen}, ksx4506.OKNone
}
