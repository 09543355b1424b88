package transport

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/scheduler"
)

// Client receives bus traffic from a StreamProcessor.
type Client interface {
	// OnReceive is called on the RX goroutine for every non-empty read, in
	// arrival order. b is only valid during the call. Implementations must
	// not call StopStream from here.
	OnReceive(b []byte)

	// OnTransportError is called once when the stream fails. The stream has
	// already stopped.
	OnTransportError(err error)
}

// Config tunes a StreamProcessor.
type Config struct {
	ReadBufferSize int
	WriteChunkSize int
	IdleSleep      time.Duration
	// QuietSchedules suppresses per-frame TX logging of scheduled packets.
	QuietSchedules bool
}

// DefaultConfig returns the processor defaults.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize: 256,
		WriteChunkSize: 64,
		IdleSleep:      10 * time.Millisecond,
		QuietSchedules: true,
	}
}

type txItem struct {
	frame []byte
	quiet bool
}

// stream is the state bound to one session's lifetime.
type stream struct {
	session Session
	channel *scheduler.TimedChannel
	sched   *scheduler.Scheduler
	parser  *ksx4506.FrameParser

	stopping  atomic.Bool
	stopOnce  sync.Once
	faultOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	qmu   sync.Mutex
	cond  *sync.Cond
	queue []txItem
}

// StreamProcessor owns one RX and one TX goroutine per session and fans
// received bytes out to clients. Outbound packets are written strictly in
// submission order.
type StreamProcessor struct {
	cfg Config

	mu     sync.Mutex
	active *stream

	cmu     sync.RWMutex
	clients []Client
}

// NewStreamProcessor creates an idle processor.
func NewStreamProcessor(cfg Config) *StreamProcessor {
	def := DefaultConfig()
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = def.ReadBufferSize
	}
	if cfg.WriteChunkSize <= 0 {
		cfg.WriteChunkSize = def.WriteChunkSize
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = def.IdleSleep
	}
	return &StreamProcessor{cfg: cfg}
}

// StartStream opens session and starts the RX and TX goroutines.
func (p *StreamProcessor) StartStream(session Session) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active != nil {
		return ErrAlreadyRunning
	}
	if err := session.Open(); err != nil {
		return fmt.Errorf("open %s: %w", session.Name(), err)
	}

	s := &stream{
		session: session,
		parser:  ksx4506.NewFrameParser(),
		done:    make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.qmu)
	s.channel = scheduler.NewTimedChannel(func(pkt ksx4506.Packet) error {
		return p.enqueue(s, pkt, p.cfg.QuietSchedules)
	})
	s.sched = scheduler.New(s.channel)
	s.channel.SetListener(s.sched)

	s.wg.Add(2)
	go p.rxLoop(s)
	go p.txLoop(s)
	p.active = s

	log.Info().Str("session", session.Name()).Msg("Stream started")
	return nil
}

// StopStream stops the goroutines, drops every schedule and closes the
// session. Stopping a stopped processor is a no-op.
func (p *StreamProcessor) StopStream() {
	p.mu.Lock()
	s := p.active
	p.mu.Unlock()
	if s == nil {
		return
	}
	p.shutdown(s)
}

// shutdown tears s down once; concurrent callers wait for the first.
func (p *StreamProcessor) shutdown(s *stream) {
	s.stopOnce.Do(func() {
		s.channel.Close()
		s.stopping.Store(true)
		s.qmu.Lock()
		s.queue = nil
		s.cond.Broadcast()
		s.qmu.Unlock()

		if err := s.session.Close(); err != nil {
			log.Warn().Err(err).Str("session", s.session.Name()).Msg("Session close failed")
		}
		s.wg.Wait()

		p.mu.Lock()
		if p.active == s {
			p.active = nil
		}
		p.mu.Unlock()
		close(s.done)
		log.Info().Str("session", s.session.Name()).Msg("Stream stopped")
	})
	<-s.done
}

// fault stops s from one of its own goroutines and reports err once.
func (p *StreamProcessor) fault(s *stream, err error) {
	if s.stopping.Load() {
		return
	}
	s.faultOnce.Do(func() {
		log.Error().Err(err).Str("session", s.session.Name()).Msg("Transport fault")
		go func() {
			p.shutdown(s)
			for _, c := range p.snapshotClients() {
				c.OnTransportError(err)
			}
		}()
	})
}

// IsRunning reports whether a stream is active.
func (p *StreamProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active != nil
}

func (p *StreamProcessor) current() (*stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil, ErrNotRunning
	}
	return p.active, nil
}

// SendPacket queues pkt for transmission and logs it.
func (p *StreamProcessor) SendPacket(pkt ksx4506.Packet) error {
	return p.send(pkt, false)
}

// SendPacketQuiet queues pkt without per-frame logging.
func (p *StreamProcessor) SendPacketQuiet(pkt ksx4506.Packet) error {
	return p.send(pkt, true)
}

func (p *StreamProcessor) send(pkt ksx4506.Packet, quiet bool) error {
	s, err := p.current()
	if err != nil {
		return err
	}
	return p.enqueue(s, pkt, quiet)
}

// SendRaw queues pre-encoded bytes.
func (p *StreamProcessor) SendRaw(b []byte) error {
	s, err := p.current()
	if err != nil {
		return err
	}
	return p.push(s, txItem{frame: append([]byte(nil), b...)})
}

func (p *StreamProcessor) enqueue(s *stream, pkt ksx4506.Packet, quiet bool) error {
	frame, err := pkt.Encode()
	if err != nil {
		return err
	}
	return p.push(s, txItem{frame: frame, quiet: quiet})
}

func (p *StreamProcessor) push(s *stream, item txItem) error {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	if s.stopping.Load() {
		return fmt.Errorf("%w: %w", ErrNotRunning, scheduler.ErrClosed)
	}
	s.queue = append(s.queue, item)
	s.cond.Signal()
	return nil
}

// SchedulePacket hands sc to the session's scheduler.
func (p *StreamProcessor) SchedulePacket(sc *scheduler.Schedule) (scheduler.ID, error) {
	s, err := p.current()
	if err != nil {
		return 0, err
	}
	return s.sched.Schedule(sc)
}

// RemoveSchedule cancels sc without callbacks.
func (p *StreamProcessor) RemoveSchedule(sc *scheduler.Schedule) bool {
	s, err := p.current()
	if err != nil {
		return false
	}
	return s.sched.Remove(sc)
}

// ClearSchedules cancels every schedule.
func (p *StreamProcessor) ClearSchedules() {
	if s, err := p.current(); err == nil {
		s.sched.ClearAll()
	}
}

// AddClient registers c. Adding the same client twice is a no-op.
func (p *StreamProcessor) AddClient(c Client) {
	p.cmu.Lock()
	defer p.cmu.Unlock()
	for _, have := range p.clients {
		if have == c {
			return
		}
	}
	p.clients = append(append([]Client(nil), p.clients...), c)
}

// RemoveClient unregisters c.
func (p *StreamProcessor) RemoveClient(c Client) {
	p.cmu.Lock()
	defer p.cmu.Unlock()
	out := make([]Client, 0, len(p.clients))
	for _, have := range p.clients {
		if have != c {
			out = append(out, have)
		}
	}
	p.clients = out
}

func (p *StreamProcessor) snapshotClients() []Client {
	p.cmu.RLock()
	defer p.cmu.RUnlock()
	return p.clients
}

func (p *StreamProcessor) rxLoop(s *stream) {
	defer s.wg.Done()
	r := s.session.Reader()
	buf := make([]byte, p.cfg.ReadBufferSize)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := buf[:n]
			for _, pkt := range s.parser.Feed(data) {
				s.channel.Observe(pkt)
			}
			for _, c := range p.snapshotClients() {
				c.OnReceive(data)
			}
		}
		if err != nil {
			if !s.stopping.Load() {
				p.fault(s, fmt.Errorf("read %s: %w", s.session.Name(), err))
			}
			return
		}
		if s.stopping.Load() {
			return
		}
		if n == 0 {
			time.Sleep(p.cfg.IdleSleep)
		}
	}
}

func (p *StreamProcessor) txLoop(s *stream) {
	defer s.wg.Done()
	w := s.session.Writer()

	for {
		s.qmu.Lock()
		for len(s.queue) == 0 && !s.stopping.Load() {
			s.cond.Wait()
		}
		if s.stopping.Load() {
			s.queue = nil
			s.qmu.Unlock()
			return
		}
		item := s.queue[0]
		s.queue = s.queue[1:]
		s.qmu.Unlock()

		if !item.quiet {
			log.Debug().Hex("frame", item.frame).Str("session", s.session.Name()).Msg("TX")
		}
		for off := 0; off < len(item.frame); off += p.cfg.WriteChunkSize {
			end := off + p.cfg.WriteChunkSize
			if end > len(item.frame) {
				end = len(item.frame)
			}
			if _, err := w.Write(item.frame[off:end]); err != nil {
				if !s.stopping.Load() {
					p.fault(s, fmt.Errorf("write %s: %w", s.session.Name(), err))
				}
				return
			}
		}
	}
}
