package ksx4506

import (
	"fmt"
	"math"
)

// DecodeBCD decodes packed BCD, high nibble first.
func DecodeBCD(b []byte) (uint64, error) {
	return DecodeBCDDigits(b, len(b)*2)
}

// DecodeBCDDigits decodes the last digits nibbles of b. Leading nibbles that
// fall outside the digit count are ignored, which is how reserved high
// nibbles are skipped.
func DecodeBCDDigits(b []byte, digits int) (uint64, error) {
	total := len(b) * 2
	if digits > total {
		digits = total
	}
	var v uint64
	for i := total - digits; i < total; i++ {
		c := b[i/2]
		var d byte
		if i%2 == 0 {
			d = c >> 4
		} else {
			d = c & 0x0F
		}
		if d > 9 {
			return 0, fmt.Errorf("%w: 0x%X at nibble %d", ErrInvalidBCD, d, i)
		}
		v = v*10 + uint64(d)
	}
	return v, nil
}

// EncodeBCD packs v into n bytes of BCD, high nibble first. Digits that do
// not fit are truncated from the top.
func EncodeBCD(v uint64, n int) []byte {
	out := make([]byte, n)
	for i := n*2 - 1; i >= 0; i-- {
		d := byte(v % 10)
		v /= 10
		if i%2 == 0 {
			out[i/2] |= d << 4
		} else {
			out[i/2] |= d
		}
	}
	return out
}

// RoundHalfUp rounds v to places fractional digits, halves away from zero.
func RoundHalfUp(v float64, places int) float64 {
	p := math.Pow10(places)
	if v < 0 {
		return -math.Floor(-v*p+0.5) / p
	}
	return math.Floor(v*p+0.5) / p
}

// Temperature bytes carry the integer part in bits 0-6 and +0.5 in bit 7.

// DecodeTemp decodes a temperature byte.
func DecodeTemp(b byte) float64 {
	t := float64(b & 0x7F)
	if b&0x80 != 0 {
		t += 0.5
	}
	return t
}

// EncodeTemp encodes t, rounding to the nearest half degree.
func EncodeTemp(t float64) byte {
	if t < 0 {
		t = 0
	}
	halves := int(math.Floor(t*2 + 0.5))
	if halves > 0x7F*2+1 {
		halves = 0x7F*2 + 1
	}
	b := byte(halves / 2)
	if halves%2 == 1 {
		b |= 0x80
	}
	return b
}
