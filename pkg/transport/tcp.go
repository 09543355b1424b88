package transport

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// TCPSession is a Session to an RS485-to-Ethernet gateway.
type TCPSession struct {
	addr        string
	dialTimeout time.Duration
	idle        time.Duration

	mu   sync.Mutex
	conn net.Conn
}

// NewTCPSession creates an unopened session to addr ("host:port").
func NewTCPSession(addr string, dialTimeout time.Duration) *TCPSession {
	return &TCPSession{addr: addr, dialTimeout: dialTimeout, idle: 50 * time.Millisecond}
}

// Open dials the gateway.
func (s *TCPSession) Open() error {
	conn, err := net.DialTimeout("tcp", s.addr, s.dialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.addr, err)
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	log.Info().Str("addr", s.addr).Msg("Gateway connected")
	return nil
}

// Close closes the connection.
func (s *TCPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func (s *TCPSession) Reader() io.Reader { return tcpIO{s} }

func (s *TCPSession) Writer() io.Writer { return tcpIO{s} }

func (s *TCPSession) Name() string { return "tcp://" + s.addr }

func (s *TCPSession) current() (net.Conn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil, ErrNotOpen
	}
	return s.conn, nil
}

type tcpIO struct{ s *TCPSession }

// Read waits at most the idle interval and reports a quiet line as a
// zero-length read.
func (t tcpIO) Read(buf []byte) (int, error) {
	conn, err := t.s.current()
	if err != nil {
		return 0, err
	}
	if err := conn.SetReadDeadline(time.Now().Add(t.s.idle)); err != nil {
		return 0, err
	}
	n, err := conn.Read(buf)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return n, nil
	}
	return n, err
}

func (t tcpIO) Write(data []byte) (int, error) {
	conn, err := t.s.current()
	if err != nil {
		return 0, err
	}
	return conn.Write(data)
}
