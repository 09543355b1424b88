package property

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueConversion(t *testing.T) {
	tests := []struct {
		name string
		in   Value
		kind Kind
		want any
	}{
		{"string to int", String("p", "12"), KindInt, 12},
		{"int to string", Int("p", 7), KindString, "7"},
		{"int to bool", Int("p", 1), KindBool, true},
		{"string to bool", String("p", "off"), KindBool, false},
		{"double to int whole", Double("p", 3), KindInt, 3},
		{"double to int lossy", Double("p", 3.5), KindInt, 0},
		{"long to double", Long("p", 42), KindDouble, float64(42)},
		{"bool to int fails to zero", Bool("p", true), KindInt, 0},
		{"float to double", Float("p", 0.5), KindDouble, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Convert(tt.kind)
			assert.Equal(t, tt.kind, got.Kind())
			assert.Equal(t, tt.want, got.Raw())
			assert.Equal(t, "p", got.Name())
		})
	}
}

func TestNewParsesThroughString(t *testing.T) {
	v, err := New("light.on", KindBool, 1)
	require.NoError(t, err)
	assert.True(t, v.AsBool())

	v, err = New("thermo.set_temp", KindDouble, float32(22.5))
	require.NoError(t, err)
	assert.Equal(t, 22.5, v.AsDouble())

	_, err = New("light.dim_level", KindInt, "bright")
	assert.ErrorIs(t, err, ErrConversion)

	_, err = New("x", KindInvalid, 1)
	assert.ErrorIs(t, err, ErrInvalidKind)
}

func TestValueEqualityIgnoresExtra(t *testing.T) {
	a := Int("n", 5).WithExtra([]byte{1, 2})
	b := Int("n", 5)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(Int("n", 6)))
	assert.False(t, a.Equal(Int("m", 5)))
	assert.False(t, a.Equal(Long("n", 5)))
	assert.Equal(t, []byte{1, 2}, a.Extra())
}

func TestBasicStoreIdenticalWritesAreNoOps(t *testing.T) {
	s := NewBasicStore()
	calls := 0
	s.Subscribe(func() { calls++ })

	require.True(t, s.Put(Int("a", 1)))
	version := s.Version()
	require.Equal(t, 1, calls)

	for i := 0; i < 5; i++ {
		assert.False(t, s.Put(Int("a", 1)))
		assert.Equal(t, 0, s.PutAll(Int("a", 1)))
	}
	assert.Equal(t, version, s.Version())
	assert.Equal(t, 1, calls)

	assert.True(t, s.Put(Int("a", 2)))
	assert.Greater(t, s.Version(), version)
	assert.Equal(t, 2, calls)
}

func TestBasicStoreAllowSame(t *testing.T) {
	s := NewBasicStore(WithAllowSame(true))
	calls := 0
	s.Subscribe(func() { calls++ })

	s.Put(Bool("on", true))
	v := s.Version()
	assert.True(t, s.Put(Bool("on", true)))
	assert.Greater(t, s.Version(), v)
	assert.Equal(t, 2, calls)
}

func TestBasicStorePutAllNotifiesOnce(t *testing.T) {
	s := NewBasicStore()
	calls := 0
	s.Subscribe(func() { calls++ })

	n := s.PutAll(Int("a", 1), Int("b", 2), Int("c", 3))
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), s.Version())

	all := s.All()
	require.Len(t, all, 3)
	assert.Equal(t, "a", all[0].Name())
	assert.Equal(t, "c", all[2].Name())
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	s := NewBasicStore()
	calls := 0
	sub := s.Subscribe(func() { calls++ })
	s.Put(Int("a", 1))
	s.Unsubscribe(sub)
	s.Unsubscribe(sub)
	s.Put(Int("a", 2))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, s.obs.len())
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	base := NewBasicStoreFrom(Int("a", 1))
	ro := ReadOnly(base)
	assert.False(t, ro.Put(Int("a", 9)))
	assert.Equal(t, 0, ro.PutAll(Int("b", 9)))

	v, ok := ro.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v.AsInt())

	snap := Snapshot(base)
	base.Put(Int("a", 2))
	v, _ = snap.Get("a")
	assert.Equal(t, 1, v.AsInt())
	v, _ = ro.Get("a")
	assert.Equal(t, 2, v.AsInt())
	assert.Equal(t, Subscription(0), snap.Subscribe(func() {}))
}

func TestStagingReadsPreferStaged(t *testing.T) {
	base := NewBasicStoreFrom(Bool("on", false), Int("level", 3))
	s := NewStagingStore(base)
	defer s.Close()

	require.True(t, s.Put(Bool("on", true)))
	v, _ := s.Get("on")
	assert.True(t, v.AsBool())
	v, _ = base.Get("on")
	assert.False(t, v.AsBool())
	assert.True(t, s.IsStaging("on"))
	assert.False(t, s.IsStaging("level"))
}

func TestStagingCommitEqualsDirectApply(t *testing.T) {
	writes := []Value{Bool("on", true), Int("level", 7), String("mode", "auto")}

	direct := NewBasicStoreFrom(Bool("on", false), Int("level", 3))
	direct.PutAll(writes...)

	base := NewBasicStoreFrom(Bool("on", false), Int("level", 3))
	s := NewStagingStore(base)
	defer s.Close()
	s.PutAll(writes...)
	s.Commit()

	assert.Equal(t, direct.All(), s.All())
	assert.Equal(t, direct.All(), base.All())
	assert.False(t, s.HasStaged())
}

func TestStagingClearEqualsNeverStaged(t *testing.T) {
	base := NewBasicStoreFrom(Bool("on", false), Int("level", 3))
	before := base.All()

	s := NewStagingStore(base)
	defer s.Close()
	s.PutAll(Bool("on", true), Int("level", 9), Int("extra", 1))
	s.ClearStaged()

	assert.Equal(t, before, s.All())
	assert.Equal(t, before, base.All())
	assert.Empty(t, s.Staged())
}

func TestStagingRejectsKindMismatch(t *testing.T) {
	base := NewBasicStoreFrom(Int("level", 3))
	s := NewStagingStore(base)
	defer s.Close()

	assert.False(t, s.Put(String("level", "high")))
	assert.False(t, s.Put(Double("level", 4)))
	assert.False(t, s.IsStaging("level"))

	require.True(t, s.Put(Int("level", 4)))
	assert.False(t, s.Put(Bool("level", true)))
	v, _ := s.Get("level")
	assert.Equal(t, 4, v.AsInt())
}

func TestStagingAllowSameByDefault(t *testing.T) {
	base := NewBasicStoreFrom(Bool("on", true))
	s := NewStagingStore(base)
	defer s.Close()
	assert.True(t, s.Put(Bool("on", true)))
	assert.True(t, s.IsStaging("on"))

	strict := NewStagingStore(base, WithAllowSame(false))
	defer strict.Close()
	assert.False(t, strict.Put(Bool("on", true)))
}

func TestStagingForwardsBaseChanges(t *testing.T) {
	base := NewBasicStore()
	s := NewStagingStore(base)
	calls := 0
	s.Subscribe(func() { calls++ })

	v := s.Version()
	base.Put(Int("a", 1))
	assert.Equal(t, 1, calls)
	assert.Greater(t, s.Version(), v)

	s.Put(Int("a", 2))
	s.Commit()
	assert.Equal(t, 3, calls)

	s.Close()
	base.Put(Int("a", 5))
	assert.Equal(t, 3, calls)
}

// slowStore holds every batch written to it for a moment before applying it.
type slowStore struct {
	*BasicStore
	entered chan struct{}
	delay   time.Duration
}

func (s *slowStore) PutAll(vs ...Value) int {
	close(s.entered)
	time.Sleep(s.delay)
	return s.BasicStore.PutAll(vs...)
}

func TestStagingCommitNeverExposesOldValue(t *testing.T) {
	base := &slowStore{
		BasicStore: NewBasicStoreFrom(Int("x", 1)),
		entered:    make(chan struct{}),
		delay:      20 * time.Millisecond,
	}
	s := NewStagingStore(base)
	defer s.Close()
	require.True(t, s.Put(Int("x", 2)))

	done := make(chan int)
	go func() { done <- s.Commit() }()

	<-base.entered
	v, ok := s.Get("x")
	require.True(t, ok)
	assert.Equal(t, 2, v.AsInt())
	assert.True(t, s.IsStaging("x"))
	for _, v := range s.All() {
		assert.Equal(t, 2, v.AsInt())
	}

	assert.Equal(t, 1, <-done)
	v, _ = s.Get("x")
	assert.Equal(t, 2, v.AsInt())
	assert.False(t, s.HasStaged())
}

func TestStagingCommitKeepsNewerStagedValue(t *testing.T) {
	base := &slowStore{
		BasicStore: NewBasicStoreFrom(Int("x", 1)),
		entered:    make(chan struct{}),
		delay:      20 * time.Millisecond,
	}
	s := NewStagingStore(base)
	defer s.Close()
	s.Put(Int("x", 2))

	done := make(chan int)
	go func() { done <- s.Commit() }()
	<-base.entered
	require.True(t, s.Put(Int("x", 3)))
	<-done

	assert.True(t, s.IsStaging("x"))
	v, _ := s.Get("x")
	assert.Equal(t, 3, v.AsInt())
	b, _ := base.Get("x")
	assert.Equal(t, 2, b.AsInt())
}
