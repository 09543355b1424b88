package capture

import (
	"errors"
	"time"
)

var (
	// ErrBadHeader is returned when a file does not start with a capture header.
	ErrBadHeader = errors.New("capture: missing or invalid header")

	// ErrClosed is returned when writing to a closed recorder.
	ErrClosed = errors.New("capture: recorder closed")
)

// FormatV1 identifies the capture layout.
const FormatV1 = "wallpad-capture/1"

// Direction is the flow of a captured frame.
type Direction uint8

const (
	DirRX Direction = 0
	DirTX Direction = 1
)

func (d Direction) String() string {
	if d == DirTX {
		return "tx"
	}
	return "rx"
}

// Header is the first item of a capture file.
type Header struct {
	Format  string    `cbor:"0,keyasint"`
	Session string    `cbor:"1,keyasint"`
	Port    string    `cbor:"2,keyasint"`
	Started time.Time `cbor:"3,keyasint"`
}

// Record is one captured frame.
type Record struct {
	T     time.Time `cbor:"1,keyasint"`
	Dir   Direction `cbor:"2,keyasint"`
	Frame []byte    `cbor:"3,keyasint"`
}
