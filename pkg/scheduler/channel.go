package scheduler

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/ksx4506"
)

// SendFunc queues one packet for transmission.
type SendFunc func(pkt ksx4506.Packet) error

type jobKey struct {
	frame       string
	count       int
	interval    time.Duration
	allowSameRx bool
}

type job struct {
	id       ID
	key      jobKey
	pkt      ksx4506.Packet
	total    int
	interval time.Duration
	allowRx  bool

	cancel chan struct{}
	early  chan struct{}
	once   sync.Once
	stop   sync.Once

	mu     sync.Mutex
	lastRx []byte
}

func (j *job) finishEarly() { j.once.Do(func() { close(j.early) }) }

func (j *job) abort() { j.stop.Do(func() { close(j.cancel) }) }

func (j *job) done() bool {
	select {
	case <-j.early:
		return true
	default:
		return false
	}
}

// TimedChannel is the repeat engine under a Scheduler. Each job runs on its
// own goroutine and hands packets to send, which is normally the transport
// TX queue.
type TimedChannel struct {
	send SendFunc

	mu       sync.Mutex
	listener Listener
	next     ID
	jobs     map[ID]*job
	byKey    map[jobKey]*job
	closed   bool
	wg       sync.WaitGroup
}

// NewTimedChannel creates a channel that transmits through send.
func NewTimedChannel(send SendFunc) *TimedChannel {
	return &TimedChannel{
		send:  send,
		jobs:  make(map[ID]*job),
		byKey: make(map[jobKey]*job),
	}
}

// SetListener sets the receiver of job events.
func (c *TimedChannel) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

func (c *TimedChannel) getListener() Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

// Schedule starts a repeat job or returns the id of an identical active one.
func (c *TimedChannel) Schedule(pkt ksx4506.Packet, repeatCount int, interval time.Duration, allowSameRx bool) (ID, error) {
	frame, err := pkt.Encode()
	if err != nil {
		return 0, err
	}
	key := jobKey{frame: string(frame), count: repeatCount, interval: interval, allowSameRx: allowSameRx}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	if j, ok := c.byKey[key]; ok {
		return j.id, nil
	}

	total := repeatCount
	if total < 1 {
		total = 1
	}
	c.next++
	j := &job{
		id:       c.next,
		key:      key,
		pkt:      pkt,
		total:    total,
		interval: interval,
		allowRx:  allowSameRx,
		cancel:   make(chan struct{}),
		early:    make(chan struct{}),
	}
	c.jobs[j.id] = j
	c.byKey[key] = j
	c.wg.Add(1)
	go c.run(j)
	return j.id, nil
}

// Remove cancels a job without reporting its exit. It never blocks on the job.
func (c *TimedChannel) Remove(id ID) {
	c.mu.Lock()
	j, ok := c.jobs[id]
	if ok {
		c.forget(j)
	}
	c.mu.Unlock()
	if ok {
		j.abort()
	}
}

// RemoveAll cancels every job.
func (c *TimedChannel) RemoveAll() {
	c.mu.Lock()
	jobs := make([]*job, 0, len(c.jobs))
	for _, j := range c.jobs {
		jobs = append(jobs, j)
		c.forget(j)
	}
	c.mu.Unlock()
	for _, j := range jobs {
		j.abort()
	}
}

// Active returns the number of running jobs.
func (c *TimedChannel) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// Close cancels every job, waits for them, and reports the port closed.
func (c *TimedChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.RemoveAll()
	c.wg.Wait()
	if l := c.getListener(); l != nil {
		l.OnPortClosed()
	}
}

// Observe feeds a received packet to the jobs. A response to a job's request
// that repeats the previous response byte for byte ends that job early
// unless it allows same responses.
func (c *TimedChannel) Observe(pkt ksx4506.Packet) {
	if !pkt.Command.IsResponse() {
		return
	}
	c.mu.Lock()
	var matched []*job
	for _, j := range c.jobs {
		if j.allowRx || j.pkt.Address != pkt.Address {
			continue
		}
		if rsp, ok := j.pkt.Command.Response(); ok && rsp == pkt.Command {
			matched = append(matched, j)
		}
	}
	c.mu.Unlock()

	for _, j := range matched {
		j.mu.Lock()
		same := j.lastRx != nil && string(j.lastRx) == string(pkt.Data)
		j.lastRx = append(j.lastRx[:0:0], pkt.Data...)
		j.mu.Unlock()
		if same {
			j.finishEarly()
		}
	}
}

// forget removes j from the lookup maps. c.mu must be held.
func (c *TimedChannel) forget(j *job) {
	if c.jobs[j.id] == j {
		delete(c.jobs, j.id)
	}
	if c.byKey[j.key] == j {
		delete(c.byKey, j.key)
	}
}

func (c *TimedChannel) run(j *job) {
	defer c.wg.Done()

	for i := 0; i < j.total; i++ {
		if err := c.send(j.pkt); err != nil {
			closed := errors.Is(err, ErrClosed)
			if closed {
				c.mu.Lock()
				c.forget(j)
				c.mu.Unlock()
			}
			log.Warn().Err(err).Uint64("id", uint64(j.id)).Msg("Scheduled send failed")
			if l := c.getListener(); l != nil {
				l.OnErrorOccurred(j.id, fmt.Errorf("send %s: %w", j.pkt, err), closed)
			}
			if closed {
				return
			}
		}
		if !c.wait(j) {
			return
		}
		if j.done() {
			break
		}
	}

	c.mu.Lock()
	_, active := c.jobs[j.id]
	c.forget(j)
	c.mu.Unlock()

	select {
	case <-j.cancel:
		return
	default:
	}
	if !active {
		return
	}
	if l := c.getListener(); l != nil {
		l.OnScheduleExit(j.id)
	}
}

// wait sleeps one repeat interval. It returns false when the job was
// cancelled.
func (c *TimedChannel) wait(j *job) bool {
	timer := time.NewTimer(j.interval)
	defer timer.Stop()
	select {
	case <-j.cancel:
		return false
	case <-j.early:
		return true
	case <-timer.C:
		return true
	}
}
