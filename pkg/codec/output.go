package codec

import (
	"sort"

	"github.com/urmzd/wallpad/pkg/property"
)

// Output collects the property writes a codec step proposes. Nothing reaches
// a store until the caller applies it, so a failed step leaves state alone.
type Output struct {
	values   map[string]property.Value
	children map[uint8]*Output

	// Variant is set by a characteristic response that carried variant bytes.
	Variant *ProtocolVariant

	// ErrorCode is the non-zero error byte of a response, if any.
	ErrorCode byte
}

// NewOutput returns an empty output.
func NewOutput() *Output {
	return &Output{values: make(map[string]property.Value)}
}

// Put proposes v, replacing any earlier proposal with the same name.
func (o *Output) Put(v property.Value) {
	o.values[v.Name()] = v
}

// Get returns a proposed value.
func (o *Output) Get(name string) (property.Value, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Values returns the proposals ordered by name.
func (o *Output) Values() []property.Value {
	out := make([]property.Value, 0, len(o.values))
	for _, v := range o.values {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Child returns the output for the group member at index, creating it.
func (o *Output) Child(index uint8) *Output {
	if o.children == nil {
		o.children = make(map[uint8]*Output)
	}
	c, ok := o.children[index]
	if !ok {
		c = NewOutput()
		o.children[index] = c
	}
	return c
}

// ChildIndexes returns the member indexes that received proposals.
func (o *Output) ChildIndexes() []uint8 {
	out := make([]uint8, 0, len(o.children))
	for i := range o.children {
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}

// Empty reports whether nothing was proposed.
func (o *Output) Empty() bool {
	return len(o.values) == 0 && len(o.children) == 0 && o.Variant == nil
}

// Reset discards every proposal.
func (o *Output) Reset() {
	o.values = make(map[string]property.Value)
	o.children = nil
	o.Variant = nil
	o.ErrorCode = 0
}

// Apply writes the proposals to s and to the member stores resolved by
// child. A nil resolver or a nil store skips that member. It returns the
// number of values that changed.
func (o *Output) Apply(s property.Store, child func(index uint8) property.Store) int {
	n := 0
	if s != nil && len(o.values) > 0 {
		n += s.PutAll(o.Values()...)
	}
	if child == nil {
		return n
	}
	for _, i := range o.ChildIndexes() {
		if cs := child(i); cs != nil {
			n += o.children[i].Apply(cs, nil)
		}
	}
	return n
}
