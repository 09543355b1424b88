package property

// ReadOnlyStore exposes a reader through the Store interface and silently
// rejects every write. Holders of a ReadOnlyStore cannot mutate the state
// behind it.
type ReadOnlyStore struct {
	r   Reader
	src Store
}

// ReadOnly returns a live read-only view of s. Subscriptions are forwarded to s.
func ReadOnly(s Store) *ReadOnlyStore {
	return &ReadOnlyStore{r: s, src: s}
}

// Snapshot returns a frozen read-only copy of r.
func Snapshot(r Reader) *ReadOnlyStore {
	frozen := NewBasicStoreFrom(r.All()...)
	frozen.version = r.Version()
	return &ReadOnlyStore{r: frozen}
}

func (s *ReadOnlyStore) Get(name string) (Value, bool) { return s.r.Get(name) }

func (s *ReadOnlyStore) All() []Value { return s.r.All() }

func (s *ReadOnlyStore) Version() uint64 { return s.r.Version() }

// Put always returns false.
func (s *ReadOnlyStore) Put(Value) bool { return false }

// PutAll always returns 0.
func (s *ReadOnlyStore) PutAll(...Value) int { return 0 }

// Subscribe forwards to the live store; snapshots never change and return 0.
func (s *ReadOnlyStore) Subscribe(fn func()) Subscription {
	if s.src == nil {
		return 0
	}
	return s.src.Subscribe(fn)
}

func (s *ReadOnlyStore) Unsubscribe(sub Subscription) {
	if s.src != nil {
		s.src.Unsubscribe(sub)
	}
}
