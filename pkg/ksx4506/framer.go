package ksx4506

import (
	"bytes"

	"github.com/rs/zerolog/log"
)

// FrameParser reassembles frames from an arbitrarily chunked byte stream. It
// resynchronizes on the header byte after garbage or a bad checksum. Not safe
// for concurrent use; the RX goroutine owns it.
type FrameParser struct {
	buf     []byte
	dropped int
}

// NewFrameParser creates an empty parser.
func NewFrameParser() *FrameParser {
	return &FrameParser{buf: make([]byte, 0, frameOverhead+MaxDataLen)}
}

// Feed appends b and returns every complete, valid packet now available.
func (f *FrameParser) Feed(b []byte) []Packet {
	f.buf = append(f.buf, b...)
	var out []Packet

	for {
		start := bytes.IndexByte(f.buf, Header)
		if start < 0 {
			f.discard(len(f.buf))
			return out
		}
		if start > 0 {
			f.discard(start)
		}
		if len(f.buf) < 5 {
			return out
		}
		n := int(f.buf[4])
		if n > MaxDataLen {
			// Impossible length: this header byte was payload. Skip it.
			f.discard(1)
			continue
		}
		total := frameOverhead + n
		if len(f.buf) < total {
			return out
		}
		pkt, err := Decode(f.buf[:total])
		if err != nil {
			log.Debug().Err(err).Hex("frame", f.buf[:total]).Msg("Dropping invalid frame")
			f.discard(1)
			continue
		}
		out = append(out, pkt)
		f.buf = append(f.buf[:0], f.buf[total:]...)
	}
}

// Dropped returns the number of bytes discarded while resynchronizing.
func (f *FrameParser) Dropped() int { return f.dropped }

// Reset clears buffered bytes.
func (f *FrameParser) Reset() { f.buf = f.buf[:0] }

func (f *FrameParser) discard(n int) {
	f.dropped += n
	f.buf = append(f.buf[:0], f.buf[n:]...)
}
