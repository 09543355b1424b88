// Package schema checks control payloads against the per-device state
// schemas generated from learned capabilities.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// maxCached bounds the compiled-schema cache. Schemas change whenever a
// device learns new capabilities, so old documents are dropped wholesale.
const maxCached = 128

// ValidationError lists the payload fields that failed a state schema.
type ValidationError struct {
	// Fields are JSON pointers into the payload, sorted. "/" is the payload
	// itself, e.g. for an unknown property.
	Fields []string
	err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid state (%s): %v", strings.Join(e.Fields, ", "), e.err)
}

func (e *ValidationError) Unwrap() error { return e.err }

// Validator validates state payloads. Compiled schemas are cached by their
// document bytes.
type Validator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

// NewValidator creates a new Validator with an empty cache.
func NewValidator() *Validator {
	return &Validator{
		cache: make(map[string]*jsonschema.Schema),
	}
}

// Validate checks payload against schemaDoc. An empty document accepts
// anything. Failures are returned as *ValidationError.
func (v *Validator) Validate(schemaDoc json.RawMessage, payload map[string]any) error {
	if len(schemaDoc) == 0 || string(schemaDoc) == "{}" || string(schemaDoc) == "null" {
		return nil
	}

	compiled, err := v.compile(schemaDoc)
	if err != nil {
		return fmt.Errorf("failed to compile schema: %w", err)
	}

	if err := compiled.Validate(payload); err != nil {
		var ve *jsonschema.ValidationError
		if !errors.As(err, &ve) {
			return err
		}
		return &ValidationError{Fields: failedFields(ve), err: err}
	}
	return nil
}

// failedFields collects the instance locations of the leaf causes.
func failedFields(ve *jsonschema.ValidationError) []string {
	seen := map[string]bool{}
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			seen["/"+strings.Join(e.InstanceLocation, "/")] = true
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Cached returns how many compiled schemas are held.
func (v *Validator) Cached() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.cache)
}

func (v *Validator) compile(schemaDoc json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaDoc)

	v.mu.RLock()
	s, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return s, nil
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(key))
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema: %w", err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("state.json", doc); err != nil {
		return nil, fmt.Errorf("failed to add resource: %w", err)
	}
	compiled, err := c.Compile("state.json")
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.cache) >= maxCached {
		clear(v.cache)
	}
	v.cache[key] = compiled
	return compiled, nil
}
