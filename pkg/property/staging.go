package property

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// StagingStore overlays pending writes on a base store. Reads prefer the
// staged value; Commit moves the staged batch into the base atomically and
// ClearStaged drops it. It models "requested but not yet confirmed" state.
//
// The declared kind of a property is fixed for the lifetime of the store:
// a write whose kind differs from the current value's kind is rejected.
type StagingStore struct {
	base Store

	commitMu sync.Mutex

	mu         sync.RWMutex
	staging    map[string]Value
	version    uint64
	allowSame  bool
	committing bool

	obs     observers
	baseSub Subscription
}

// NewStagingStore wraps base. Staging stores default to allow-same mode so a
// repeated request for the current value is still staged; pass
// WithAllowSame(false) to turn it off.
func NewStagingStore(base Store, opts ...Option) *StagingStore {
	o := storeOptions{allowSame: true}
	for _, opt := range opts {
		opt(&o)
	}
	s := &StagingStore{
		base:      base,
		staging:   make(map[string]Value),
		allowSame: o.allowSame,
	}
	s.baseSub = base.Subscribe(s.onBaseChanged)
	return s
}

// Base returns the confirmed store.
func (s *StagingStore) Base() Store { return s.base }

// Close detaches the store from its base.
func (s *StagingStore) Close() {
	s.base.Unsubscribe(s.baseSub)
}

func (s *StagingStore) onBaseChanged() {
	s.mu.Lock()
	s.version++
	quiet := s.committing
	s.mu.Unlock()
	if !quiet {
		s.obs.notify()
	}
}

func (s *StagingStore) Get(name string) (Value, bool) {
	s.mu.RLock()
	v, ok := s.staging[name]
	s.mu.RUnlock()
	if ok {
		return v, true
	}
	return s.base.Get(name)
}

func (s *StagingStore) All() []Value {
	merged := make(map[string]Value)
	for _, v := range s.base.All() {
		merged[v.name] = v
	}
	s.mu.RLock()
	for name, v := range s.staging {
		merged[name] = v
	}
	s.mu.RUnlock()
	return sortedValues(merged)
}

func (s *StagingStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

func (s *StagingStore) Put(v Value) bool {
	return s.PutAll(v) > 0
}

func (s *StagingStore) PutAll(vs ...Value) int {
	changed := 0
	s.mu.Lock()
	for _, v := range vs {
		if !v.IsValid() {
			continue
		}
		cur, ok := s.staging[v.name]
		if !ok {
			cur, ok = s.base.Get(v.name)
		}
		if ok && cur.kind != v.kind {
			log.Warn().
				Str("property", v.name).
				Str("have", cur.kind.String()).
				Str("got", v.kind.String()).
				Msg("Rejected staged write with mismatched kind")
			continue
		}
		if ok && cur.Equal(v) && !s.allowSame {
			continue
		}
		s.staging[v.name] = v
		changed++
	}
	if changed > 0 {
		s.version++
	}
	s.mu.Unlock()

	if changed > 0 {
		s.obs.notify()
	}
	return changed
}

// IsStaging reports whether name has a pending write.
func (s *StagingStore) IsStaging(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.staging[name]
	return ok
}

// HasStaged reports whether any write is pending.
func (s *StagingStore) HasStaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.staging) > 0
}

// Staged returns the pending writes ordered by name.
func (s *StagingStore) Staged() []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.staging)
}

// Commit applies every staged write to the base store and clears staging.
// Staged values stay visible until the base holds them, so readers never
// see a committed write fall back to the old value. A value staged again
// during the commit stays staged. Observers are notified once. It returns
// the number of base values that changed.
func (s *StagingStore) Commit() int {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	batch := sortedValues(s.staging)
	s.committing = len(batch) > 0
	s.mu.Unlock()
	if len(batch) == 0 {
		return 0
	}

	n := s.base.PutAll(batch...)

	s.mu.Lock()
	for _, v := range batch {
		if cur, ok := s.staging[v.name]; ok && cur.Equal(v) {
			delete(s.staging, v.name)
		}
	}
	s.committing = false
	s.version++
	s.mu.Unlock()

	s.obs.notify()
	return n
}

// ClearStaged discards every pending write.
func (s *StagingStore) ClearStaged() {
	s.mu.Lock()
	had := len(s.staging) > 0
	s.staging = make(map[string]Value)
	if had {
		s.version++
	}
	s.mu.Unlock()

	if had {
		s.obs.notify()
	}
}

func (s *StagingStore) Subscribe(fn func()) Subscription { return s.obs.add(fn) }

func (s *StagingStore) Unsubscribe(sub Subscription) { s.obs.remove(sub) }
