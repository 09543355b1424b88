package capture

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/transport"
)

// Recorder writes complete frames seen on a session to a capture stream.
// Partial reads are reassembled per direction before recording.
type Recorder struct {
	mu      sync.Mutex
	w       io.WriteCloser
	enc     *cbor.Encoder
	header  Header
	rx, tx  *ksx4506.FrameParser
	frames  int
	closed  bool
	failure error
}

// NewRecorder writes a header for port to w and returns the recorder.
func NewRecorder(w io.WriteCloser, port string) (*Recorder, error) {
	r := &Recorder{
		w:   w,
		enc: encMode.NewEncoder(w),
		header: Header{
			Format:  FormatV1,
			Session: uuid.NewString(),
			Port:    port,
			Started: time.Now().UTC(),
		},
		rx: ksx4506.NewFrameParser(),
		tx: ksx4506.NewFrameParser(),
	}
	if err := r.enc.Encode(r.header); err != nil {
		return nil, fmt.Errorf("write capture header: %w", err)
	}
	return r, nil
}

// Create opens path for writing and starts a capture of port.
func Create(path, port string) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("create capture %s: %w", path, err)
	}
	r, err := NewRecorder(f, port)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	log.Info().Str("path", path).Str("session", r.header.Session).Msg("Capture started")
	return r, nil
}

// Header returns the header written for this capture.
func (r *Recorder) Header() Header { return r.header }

// Frames returns the number of frames recorded.
func (r *Recorder) Frames() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

// Tap is a transport.TapFunc feeding the recorder.
func (r *Recorder) Tap(tx bool, b []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	parser, dir := r.rx, DirRX
	if tx {
		parser, dir = r.tx, DirTX
	}
	for _, pkt := range parser.Feed(b) {
		frame, err := pkt.Encode()
		if err != nil {
			continue
		}
		r.writeLocked(Record{T: time.Now().UTC(), Dir: dir, Frame: frame})
	}
}

// Wrap returns session with its traffic recorded.
func (r *Recorder) Wrap(session transport.Session) transport.Session {
	return transport.NewTapSession(session, r.Tap)
}

// Write records one complete frame.
func (r *Recorder) Write(rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	r.writeLocked(rec)
	return r.failure
}

func (r *Recorder) writeLocked(rec Record) {
	if r.failure != nil {
		return
	}
	if err := r.enc.Encode(rec); err != nil {
		r.failure = err
		log.Error().Err(err).Msg("Capture write failed")
		return
	}
	r.frames++
}

// Close flushes and closes the underlying writer.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	log.Info().Str("session", r.header.Session).Int("frames", r.frames).Msg("Capture closed")
	return r.w.Close()
}
