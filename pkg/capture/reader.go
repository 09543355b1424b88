package capture

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/urmzd/wallpad/pkg/ksx4506"
)

// Reader iterates the records of a capture stream.
type Reader struct {
	c      io.Closer
	dec    *cbor.Decoder
	header Header
}

// NewReader reads the header from r.
func NewReader(r io.Reader) (*Reader, error) {
	dec := decMode.NewDecoder(r)
	var h Header
	if err := dec.Decode(&h); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBadHeader, err)
	}
	if h.Format != FormatV1 || h.Session == "" {
		return nil, ErrBadHeader
	}
	rd := &Reader{dec: dec, header: h}
	if c, ok := r.(io.Closer); ok {
		rd.c = c
	}
	return rd, nil
}

// Open opens a capture file.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

// Header returns the capture header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next record, or io.EOF at the end.
func (r *Reader) Next() (Record, error) {
	var rec Record
	if err := r.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return Record{}, io.EOF
		}
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// Packet decodes the frame of rec.
func (rec Record) Packet() (ksx4506.Packet, error) {
	return ksx4506.Decode(rec.Frame)
}

// ReadAll returns every remaining record.
func (r *Reader) ReadAll() ([]Record, error) {
	var out []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
}

// Close closes the underlying file, if any.
func (r *Reader) Close() error {
	if r.c == nil {
		return nil
	}
	return r.c.Close()
}
