package transport

import "io"

// TapFunc observes bytes crossing a session. tx is true for writes. b is
// only valid during the call.
type TapFunc func(tx bool, b []byte)

// TapSession mirrors the traffic of an inner session to a TapFunc.
type TapSession struct {
	Session
	tap TapFunc
}

// NewTapSession wraps inner.
func NewTapSession(inner Session, tap TapFunc) *TapSession {
	return &TapSession{Session: inner, tap: tap}
}

func (t *TapSession) Reader() io.Reader { return tapReader{t} }

func (t *TapSession) Writer() io.Writer { return tapWriter{t} }

type tapReader struct{ t *TapSession }

func (r tapReader) Read(buf []byte) (int, error) {
	n, err := r.t.Session.Reader().Read(buf)
	if n > 0 {
		r.t.tap(false, buf[:n])
	}
	return n, err
}

type tapWriter struct{ t *TapSession }

func (w tapWriter) Write(b []byte) (int, error) {
	n, err := w.t.Session.Writer().Write(b)
	if n > 0 {
		w.t.tap(true, b[:n])
	}
	return n, err
}
