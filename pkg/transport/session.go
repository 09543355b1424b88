package transport

import (
	"errors"
	"io"
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrNotOpen        = errors.New("session not open")
	ErrAlreadyRunning = errors.New("stream already running")
	ErrNotRunning     = errors.New("stream not running")
)

// Session is a duplex byte channel to the bus: a serial port, a TCP serial
// gateway, or an in-memory pipe.
type Session interface {
	// Open acquires the underlying channel.
	Open() error

	// Close releases the channel and unblocks pending reads.
	Close() error

	// Reader returns the inbound byte stream. A read returning 0 bytes and
	// no error means the channel is idle.
	Reader() io.Reader

	// Writer returns the outbound byte stream.
	Writer() io.Writer

	// Name identifies the session in logs.
	Name() string
}
