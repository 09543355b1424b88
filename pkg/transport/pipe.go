package transport

import (
	"io"
	"sync"
)

// PipeSession is an in-memory Session. A loopback session reads back what it
// writes; a pair connects two sessions back to back.
type PipeSession struct {
	name string
	r    *io.PipeReader
	w    *io.PipeWriter

	mu     sync.Mutex
	opened bool
	closed bool
}

// NewLoopbackSession returns a session whose writes come back as reads.
func NewLoopbackSession() *PipeSession {
	r, w := io.Pipe()
	return &PipeSession{name: "loopback", r: r, w: w}
}

// NewPipePair returns two sessions wired to each other, like a master and a
// slave sharing one bus segment.
func NewPipePair() (*PipeSession, *PipeSession) {
	abR, abW := io.Pipe()
	baR, baW := io.Pipe()
	a := &PipeSession{name: "pipe-a", r: baR, w: abW}
	b := &PipeSession{name: "pipe-b", r: abR, w: baW}
	return a, b
}

// Open marks the session open. A closed pipe cannot be reopened.
func (p *PipeSession) Open() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrSessionClosed
	}
	p.opened = true
	return nil
}

// Close closes both directions. The peer reads EOF.
func (p *PipeSession) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	_ = p.w.Close()
	return p.r.Close()
}

func (p *PipeSession) Reader() io.Reader { return p.r }

func (p *PipeSession) Writer() io.Writer { return p.w }

func (p *PipeSession) Name() string { return p.name }
