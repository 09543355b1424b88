package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/ksx4506"
)

var (
	ErrClosed     = errors.New("scheduler channel closed")
	ErrNoSchedule = errors.New("schedule is not registered")
)

// ID identifies a repeat job of a Channel. Several schedules may share one.
type ID uint64

// Schedule is a frame to be repeated until acknowledged, exhausted, or
// removed. The scheduler owns it from Schedule until it exits or is removed.
type Schedule struct {
	Packet         ksx4506.Packet
	RepeatCount    int
	RepeatInterval time.Duration

	// AllowSameRx keeps repeating even when the peer answers identically.
	AllowSameRx bool

	// OnExit fires once when the job finishes on its own.
	OnExit func(s *Schedule)
	// OnError fires for every channel error reported for the job.
	OnError func(s *Schedule, err error)
}

// Transmissions returns how many times the packet is sent.
func (s *Schedule) Transmissions() int {
	if s.RepeatCount < 1 {
		return 1
	}
	return s.RepeatCount
}

// Channel runs repeat jobs. Identical active jobs share an id.
type Channel interface {
	Schedule(pkt ksx4506.Packet, repeatCount int, interval time.Duration, allowSameRx bool) (ID, error)
	Remove(id ID)
	RemoveAll()
}

// Listener receives job events from a Channel.
type Listener interface {
	OnScheduleExit(id ID)
	OnErrorOccurred(id ID, err error, closed bool)
	OnPortClosed()
}

// Scheduler maps channel ids to the set of schedules they serve. One lock
// covers the map so channel callbacks cannot race an application Remove.
type Scheduler struct {
	ch Channel

	mu   sync.Mutex
	sets map[ID][]*Schedule
	ids  map[*Schedule]ID
}

// New creates a scheduler on ch. The caller wires the scheduler as ch's
// listener.
func New(ch Channel) *Scheduler {
	return &Scheduler{
		ch:   ch,
		sets: make(map[ID][]*Schedule),
		ids:  make(map[*Schedule]ID),
	}
}

// Schedule registers s and returns the channel id serving it.
func (s *Scheduler) Schedule(sc *Schedule) (ID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.ids[sc]; ok {
		return id, nil
	}
	id, err := s.ch.Schedule(sc.Packet, sc.RepeatCount, sc.RepeatInterval, sc.AllowSameRx)
	if err != nil {
		return 0, fmt.Errorf("schedule %s: %w", sc.Packet, err)
	}
	s.sets[id] = append(s.sets[id], sc)
	s.ids[sc] = id

	log.Debug().
		Uint64("id", uint64(id)).
		Str("packet", sc.Packet.String()).
		Int("repeat", sc.RepeatCount).
		Int("members", len(s.sets[id])).
		Msg("Packet scheduled")
	return id, nil
}

// Remove unregisters sc without firing callbacks. Removing the last member
// of a set cancels the channel job.
func (s *Scheduler) Remove(sc *Schedule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.ids[sc]
	if !ok {
		return false
	}
	delete(s.ids, sc)
	set := s.sets[id]
	for i, m := range set {
		if m == sc {
			set = append(set[:i], set[i+1:]...)
			break
		}
	}
	if len(set) == 0 {
		delete(s.sets, id)
		s.ch.Remove(id)
	} else {
		s.sets[id] = set
	}
	return true
}

// ClearAll drops every schedule and cancels every channel job.
func (s *Scheduler) ClearAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets = make(map[ID][]*Schedule)
	s.ids = make(map[*Schedule]ID)
	s.ch.RemoveAll()
}

// Len returns the number of registered schedules.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}

// Contains reports whether sc is registered.
func (s *Scheduler) Contains(sc *Schedule) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[sc]
	return ok
}

// take removes and returns the set for id.
func (s *Scheduler) take(id ID) []*Schedule {
	set := s.sets[id]
	delete(s.sets, id)
	for _, sc := range set {
		delete(s.ids, sc)
	}
	return set
}

// OnScheduleExit fires every member's exit callback once and drops the set.
func (s *Scheduler) OnScheduleExit(id ID) {
	s.mu.Lock()
	set := s.take(id)
	s.mu.Unlock()

	for _, sc := range set {
		if sc.OnExit != nil {
			sc.OnExit(sc)
		}
	}
}

// OnErrorOccurred fires every member's error callback. The set survives
// unless the channel reports it closed.
func (s *Scheduler) OnErrorOccurred(id ID, err error, closed bool) {
	s.mu.Lock()
	var set []*Schedule
	if closed {
		set = s.take(id)
	} else {
		set = append(set, s.sets[id]...)
	}
	s.mu.Unlock()

	for _, sc := range set {
		if sc.OnError != nil {
			sc.OnError(sc, err)
		}
	}
}

// OnPortClosed drops every schedule without callbacks.
func (s *Scheduler) OnPortClosed() {
	s.mu.Lock()
	n := len(s.ids)
	s.sets = make(map[ID][]*Schedule)
	s.ids = make(map[*Schedule]ID)
	s.mu.Unlock()

	if n > 0 {
		log.Warn().Int("dropped", n).Msg("Port closed, dropping schedules")
	}
}
