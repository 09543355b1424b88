package codec

import (
	"math"

	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

// Meter kinds, carried as the sub ID index and in the characteristic response
const (
	MeterWater       = 1
	MeterGas         = 2
	MeterElectricity = 3
	MeterHotWater    = 4
	MeterHeat        = 5
)

const (
	meterAlarmBit     = 0x01
	meterStatusLen    = 9
	meterCurrentBytes = 3
	meterTotalBytes   = 4
	meterTotalDigits  = 7
)

// meterScale is the fixed-point layout of one meter kind.
type meterScale struct {
	currentDiv float64
	currentDP  int
	totalDiv   float64
	totalDP    int
}

func scaleFor(kind int) meterScale {
	if kind == MeterElectricity {
		return meterScale{currentDiv: 1, currentDP: 0, totalDiv: 10, totalDP: 1}
	}
	return meterScale{currentDiv: 1000, currentDP: 3, totalDiv: 1000, totalDP: 3}
}

// ScaleCurrent converts a raw current reading of kind to its unit value.
func ScaleCurrent(kind int, raw uint64) float64 {
	sc := scaleFor(kind)
	return ksx4506.RoundHalfUp(float64(raw)/sc.currentDiv, sc.currentDP)
}

// ScaleTotal converts a raw total reading of kind to its unit value.
func ScaleTotal(kind int, raw uint64) float64 {
	sc := scaleFor(kind)
	return ksx4506.RoundHalfUp(float64(raw)/sc.totalDiv, sc.totalDP)
}

func unscale(v, div float64) uint64 {
	if v <= 0 {
		return 0
	}
	return uint64(math.Floor(v*div + 0.5))
}

func meterKind(s *Scope) int {
	if k := getInt(s.State, PropMeterKind, 0); k > 0 {
		return k
	}
	return int(s.Address.Index())
}

func meterCodec() baseCodec {
	return baseCodec{
		parse: map[Step]ParseFunc{
			StepCharacteristicRsp: parseMeterCharacteristic,
			StepStatusRsp:         parseMeterStatus,
		},
		build: map[BuildStep]BuildFunc{
			BuildCharacteristic: buildMeterCharacteristic,
			BuildStatus:         buildMeterStatus,
		},
	}
}

func parseMeterCharacteristic(_ *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	if res, ok := checkResponse(pkt, out, 2); !ok {
		return res
	}
	out.Put(property.Int(PropMeterKind, int(pkt.Data[1])))
	learnVariant(pkt, 2, out)
	return ksx4506.OKPeerDetected
}

func parseMeterStatus(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
	res, ok := checkResponse(pkt, out, meterStatusLen)
	if !ok {
		return res
	}
	if len(pkt.Data) != meterStatusLen {
		return ksx4506.ErrorMalformedPacket
	}
	cur, err := ksx4506.DecodeBCD(pkt.Data[2 : 2+meterCurrentBytes])
	if err != nil {
		return ksx4506.ErrorMalformedPacket
	}
	tot, err := ksx4506.DecodeBCDDigits(pkt.Data[5:5+meterTotalBytes], meterTotalDigits)
	if err != nil {
		return ksx4506.ErrorMalformedPacket
	}
	kind := meterKind(s)
	out.Put(property.Bool(PropMeterAlarm, pkt.Data[1]&meterAlarmBit != 0))
	out.Put(property.Double(PropMeterCurrent, ScaleCurrent(kind, cur)))
	out.Put(property.Double(PropMeterTotal, ScaleTotal(kind, tot)))
	return res
}

func buildMeterCharacteristic(s *Scope) ([]byte, ksx4506.ParseResult) {
	data := []byte{byte(meterKind(s))}
	return append(data, variantBytes(s.Variant)...), ksx4506.OKNone
}

func buildMeterStatus(s *Scope) ([]byte, ksx4506.ParseResult) {
	sc := scaleFor(meterKind(s))
	var st byte
	if getBool(s.State, PropMeterAlarm) {
		st |= meterAlarmBit
	}
	data := []byte{st}
	data = append(data, ksx4506.EncodeBCD(unscale(getDouble(s.State, PropMeterCurrent, 0), sc.currentDiv), meterCurrentBytes)...)
	tot := ksx4506.EncodeBCD(unscale(getDouble(s.State, PropMeterTotal, 0), sc.totalDiv), meterTotalBytes)
	tot[0] &= 0x0F
	return append(data, tot...), ksx4506.OKNone
}
