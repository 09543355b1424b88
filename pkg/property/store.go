package property

import (
	"sort"
	"sync"
)

// Reader is the read half of a property store.
type Reader interface {
	// Get returns the value stored under name.
	Get(name string) (Value, bool)

	// All returns a snapshot of every value ordered by name.
	All() []Value

	// Version increases on every accepted write.
	Version() uint64
}

// Store is a versioned, observable collection of property values.
type Store interface {
	Reader

	// Put stores v and reports whether the store changed.
	Put(v Value) bool

	// PutAll stores a batch with a single change notification and returns
	// the number of values that changed.
	PutAll(vs ...Value) int

	// Subscribe registers fn to be called after the store changes. The
	// callback receives no payload; subscribers re-read what they need.
	// Callers own the returned handle and must Unsubscribe when done.
	Subscribe(fn func()) Subscription

	// Unsubscribe removes a subscription. Unknown handles are ignored.
	Unsubscribe(sub Subscription)
}

// Subscription identifies a registered change callback.
type Subscription uint64

// observers is a subscription list guarded by its own lock, separate from
// the entry map lock of the owning store.
type observers struct {
	mu   sync.Mutex
	next Subscription
	fns  map[Subscription]func()
}

func (o *observers) add(fn func()) Subscription {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.fns == nil {
		o.fns = make(map[Subscription]func())
	}
	o.next++
	o.fns[o.next] = fn
	return o.next
}

func (o *observers) remove(sub Subscription) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.fns, sub)
}

func (o *observers) len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.fns)
}

// notify calls every callback outside the lock in subscription order.
func (o *observers) notify() {
	o.mu.Lock()
	subs := make([]Subscription, 0, len(o.fns))
	for s := range o.fns {
		subs = append(subs, s)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i] < subs[j] })
	fns := make([]func(), 0, len(subs))
	for _, s := range subs {
		fns = append(fns, o.fns[s])
	}
	o.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Option configures a store.
type Option func(*storeOptions)

type storeOptions struct {
	allowSame bool
}

// WithAllowSame makes value-identical writes count as changes: they bump the
// version and notify observers.
func WithAllowSame(allow bool) Option {
	return func(o *storeOptions) { o.allowSame = allow }
}

// BasicStore is the plain in-memory Store.
type BasicStore struct {
	mu        sync.RWMutex
	entries   map[string]Value
	version   uint64
	allowSame bool

	obs observers
}

// NewBasicStore creates an empty store.
func NewBasicStore(opts ...Option) *BasicStore {
	var o storeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return &BasicStore{
		entries:   make(map[string]Value),
		allowSame: o.allowSame,
	}
}

// NewBasicStoreFrom creates a store pre-populated with vs without notifying anyone.
func NewBasicStoreFrom(vs ...Value) *BasicStore {
	s := NewBasicStore()
	for _, v := range vs {
		if v.IsValid() {
			s.entries[v.name] = v
		}
	}
	return s
}

func (s *BasicStore) Get(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[name]
	return v, ok
}

func (s *BasicStore) All() []Value {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedValues(s.entries)
}

func (s *BasicStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Len returns the number of stored values.
func (s *BasicStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *BasicStore) Put(v Value) bool {
	return s.PutAll(v) > 0
}

func (s *BasicStore) PutAll(vs ...Value) int {
	s.mu.Lock()
	changed := 0
	for _, v := range vs {
		if !v.IsValid() {
			continue
		}
		if cur, ok := s.entries[v.name]; ok && cur.Equal(v) && !s.allowSame {
			continue
		}
		s.entries[v.name] = v
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

// Remove deletes a value and reports whether it existed.
func (s *BasicStore) Remove(name string) bool {
	s.mu.Lock()
	_, ok := s.entries[name]
	if ok {
		delete(s.entries, name)
		s.version++
	}
	s.mu.Unlock()

	if ok {
		s.obs.notify()
	}
	return ok
}

func (s *BasicStore) Subscribe(fn func()) Subscription { return s.obs.add(fn) }

func (s *BasicStore) Unsubscribe(sub Subscription) { s.obs.remove(sub) }

func sortedValues(m map[string]Value) []Value {
	out := make([]Value, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// Map renders a reader as name -> raw value, the form used by JSON surfaces.
func Map(r Reader) map[string]any {
	all := r.All()
	out := make(map[string]any, len(all))
	for _, v := range all {
		out[v.Name()] = v.Raw()
	}
	return out
}
