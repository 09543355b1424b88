package ksx4506

import (
	"bytes"
	"fmt"
)

// Frame constants
const (
	Header        = 0xF7
	MaxDataLen    = 0xF0
	frameOverhead = 7 // header, device, sub, cmd, len, xor, add
)

// Packet is the logical content of one frame.
type Packet struct {
	Command Command
	Address Address
	Data    []byte
}

// NewPacket copies data into a new packet.
func NewPacket(addr Address, cmd Command, data ...byte) Packet {
	return Packet{Command: cmd, Address: addr, Data: append([]byte(nil), data...)}
}

// Equal compares command, address and payload.
func (p Packet) Equal(o Packet) bool {
	return p.Command == o.Command && p.Address == o.Address && bytes.Equal(p.Data, o.Data)
}

// ErrorCode returns the leading error byte of a response payload.
func (p Packet) ErrorCode() (byte, bool) {
	if !p.Command.IsResponse() || len(p.Data) == 0 {
		return 0, false
	}
	return p.Data[0], true
}

func (p Packet) String() string {
	return fmt.Sprintf("%s %s % X", p.Address, p.Command, p.Data)
}

// Encode serializes the packet as a complete frame with checksums.
func (p Packet) Encode() ([]byte, error) {
	if len(p.Data) > MaxDataLen {
		return nil, fmt.Errorf("%w: %d", ErrDataTooLong, len(p.Data))
	}
	frame := make([]byte, 0, frameOverhead+len(p.Data))
	frame = append(frame, Header, byte(p.Address.Class), p.Address.SubID, byte(p.Command), byte(len(p.Data)))
	frame = append(frame, p.Data...)
	x := xorSum(frame)
	frame = append(frame, x)
	frame = append(frame, addSum(frame))
	return frame, nil
}

// MustEncode is Encode for payloads known to fit.
func (p Packet) MustEncode() []byte {
	b, err := p.Encode()
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses exactly one complete frame.
func Decode(frame []byte) (Packet, error) {
	if len(frame) < frameOverhead {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frame))
	}
	if frame[0] != Header {
		return Packet{}, fmt.Errorf("%w: 0x%02X", ErrBadHeader, frame[0])
	}
	n := int(frame[4])
	if n > MaxDataLen || len(frame) != frameOverhead+n {
		return Packet{}, fmt.Errorf("%w: declared %d, frame %d", ErrBadLength, n, len(frame))
	}
	body := frame[:5+n]
	if x := xorSum(body); x != frame[5+n] {
		return Packet{}, fmt.Errorf("%w: xor 0x%02X != 0x%02X", ErrChecksum, frame[5+n], x)
	}
	if a := addSum(frame[:6+n]); a != frame[6+n] {
		return Packet{}, fmt.Errorf("%w: add 0x%02X != 0x%02X", ErrChecksum, frame[6+n], a)
	}
	return Packet{
		Command: Command(frame[3]),
		Address: Address{Class: DeviceClass(frame[1]), SubID: frame[2]},
		Data:    append([]byte(nil), frame[5:5+n]...),
	}, nil
}

func xorSum(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return x
}

func addSum(b []byte) byte {
	var s byte
	for _, c := range b {
		s += c
	}
	return s
}
