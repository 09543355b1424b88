package transport

import (
	"io"
	"sync"
	"time"
)

// NullSession discards writes and never receives anything. Reads report an
// idle line until the session is closed.
type NullSession struct {
	mu     sync.Mutex
	closed bool
}

func NewNullSession() *NullSession { return &NullSession{} }

func (n *NullSession) Open() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrSessionClosed
	}
	return nil
}

func (n *NullSession) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = true
	return nil
}

func (n *NullSession) Reader() io.Reader { return nullIO{n} }

func (n *NullSession) Writer() io.Writer { return nullIO{n} }

func (n *NullSession) Name() string { return "null" }

func (n *NullSession) isClosed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.closed
}

type nullIO struct{ n *NullSession }

func (z nullIO) Read([]byte) (int, error) {
	if z.n.isClosed() {
		return 0, io.EOF
	}
	time.Sleep(time.Millisecond)
	return 0, nil
}

func (z nullIO) Write(b []byte) (int, error) {
	if z.n.isClosed() {
		return 0, ErrSessionClosed
	}
	return len(b), nil
}
