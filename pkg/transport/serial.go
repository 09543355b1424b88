package transport

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.bug.st/serial"
)

// SerialConfig describes an RS232/RS485 port. The bus runs at 9600 8N1.
type SerialConfig struct {
	Port        string
	BaudRate    int
	DataBits    int
	Parity      string
	StopBits    int
	ReadTimeout time.Duration
}

// DefaultSerialConfig returns the standard bus settings for port.
func DefaultSerialConfig(port string) SerialConfig {
	return SerialConfig{
		Port:        port,
		BaudRate:    9600,
		DataBits:    8,
		Parity:      "none",
		StopBits:    1,
		ReadTimeout: 50 * time.Millisecond,
	}
}

func (c SerialConfig) mode() (*serial.Mode, error) {
	m := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		StopBits: serial.OneStopBit,
	}
	switch strings.ToLower(c.Parity) {
	case "", "none", "n":
		m.Parity = serial.NoParity
	case "even", "e":
		m.Parity = serial.EvenParity
	case "odd", "o":
		m.Parity = serial.OddParity
	default:
		return nil, fmt.Errorf("unknown parity %q", c.Parity)
	}
	if c.StopBits == 2 {
		m.StopBits = serial.TwoStopBits
	}
	return m, nil
}

// SerialSession is a Session over a local serial port.
type SerialSession struct {
	cfg SerialConfig

	mu   sync.Mutex
	port serial.Port
}

// NewSerialSession creates an unopened serial session.
func NewSerialSession(cfg SerialConfig) *SerialSession {
	return &SerialSession{cfg: cfg}
}

// Open opens the port with the configured line settings.
func (s *SerialSession) Open() error {
	mode, err := s.cfg.mode()
	if err != nil {
		return err
	}
	port, err := serial.Open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", s.cfg.Port, err)
	}
	// A read timeout turns a quiet bus into zero-length reads instead of a
	// read that blocks until Close.
	if s.cfg.ReadTimeout > 0 {
		if err := port.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
			_ = port.Close()
			return fmt.Errorf("set read timeout: %w", err)
		}
	}

	s.mu.Lock()
	s.port = port
	s.mu.Unlock()

	log.Info().Str("port", s.cfg.Port).Int("baud", s.cfg.BaudRate).Msg("Serial port opened")
	return nil
}

// Close closes the port.
func (s *SerialSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *SerialSession) Reader() io.Reader { return serialIO{s} }

func (s *SerialSession) Writer() io.Writer { return serialIO{s} }

func (s *SerialSession) Name() string { return s.cfg.Port }

func (s *SerialSession) current() (serial.Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil, ErrNotOpen
	}
	return s.port, nil
}

type serialIO struct{ s *SerialSession }

func (p serialIO) Read(buf []byte) (int, error) {
	port, err := p.s.current()
	if err != nil {
		return 0, err
	}
	return port.Read(buf)
}

func (p serialIO) Write(data []byte) (int, error) {
	port, err := p.s.current()
	if err != nil {
		return 0, err
	}
	return port.Write(data)
}

// ListPorts returns the serial ports present on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
