package codec

import (
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

// Batch switch bits
const (
	BatchGasClose     = 0x01
	BatchElevatorCall = 0x02
	BatchAway         = 0x04
	BatchLightsOff    = 0x08
	BatchPowerCut     = 0x10
)

func batchCodec() baseCodec {
	return baseCodec{
		parse: map[Step]ParseFunc{
			StepCharacteristicRsp: parseBatchCharacteristic,
			StepStatusRsp:         parseBatchStatus,
			StepControlRsp:        parseBatchStatus,
			StepControlReq:        parseBatchControlReq,
		},
		build: map[BuildStep]BuildFunc{
			BuildCharacteristic: buildBatchCharacteristic,
			BuildStatus:         buildBatchStatus,
			BuildControlReq:     buildBatchControlReq,
		},
	}
}

func parseBatchCharacteristic(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if res, ok := checkResponse(pkt, out, 2); !ok {
		return res
	}
	out.Put(property.Int(PropBatchSupported, int(pkt.Data[1])))
	learnVariant(pkt, 2, out)
	return ksx4506.OKPeerDetected
}

func parseBatchStatus(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	res, ok := checkResponse(pkt, out, 2)
	if !ok {
		return res
	}
	if len(pkt.Data) != 2 {
		return ksx4506.ErrorMalformedPacket
	}
	out.Put(property.Int(PropBatchState, int(pkt.Data[1])))
	return res
}

func requestedBatch(s *Scope, state int) (int, bool) {
	supported := getInt(s.State, PropBatchSupported, 0)
	if state&^supported == 0 {
		return state, true
	}
	if !s.Options.LenientMasks {
		return 0, false
	}
	return state & supported, true
}

func parseBatchControlReq(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if len(pkt.Data) != 1 {
		return ksx4506.ErrorMalformedPacket
	}
	state, ok := requestedBatch(s, int(pkt.Data[0]))
	if !ok {
		return ksx4506.ErrorUnknown
	}
	out.Put(property.Int(PropBatchState, state))
	return ksx4506.OKStateUpdated
}

func buildBatchCharacteristic(s *Scope) ([]byte, ksx4506.ParseResult) {
	data := []byte{byte(getInt(s.State, PropBatchSupported, 0))}
	return append(data, variantBytes(s.Variant)...), ksx4506.OKNone
}

func buildBatchStatus(s *Scope) ([]byte, ksx4506.ParseResult) {
	return []byte{byte(getInt(s.State, PropBatchState, 0))}, ksx4506.OKNone
}

func buildBatchControlReq(s *Scope) ([]byte, ksx4506.ParseResult) {
	state, ok := requestedBatch(s, getInt(s.State, PropBatchState, 0))
	if !ok {
		return nil, ksx4506.ErrorUnknown
	}
	return []byte{byte(state)}, ksx4506.OKNone
}
