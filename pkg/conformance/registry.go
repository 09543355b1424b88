// Package conformance runs named behaviour checks against bus devices.
package conformance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/ksx4506"
)

// ErrSkipped is returned by a check that does not apply to a device.
var ErrSkipped = errors.New("check skipped")

// ErrDuplicateCheck is returned when a class already has a check by that name.
var ErrDuplicateCheck = errors.New("duplicate check")

// CheckFunc exercises one behaviour of d.
type CheckFunc func(ctx context.Context, d device.HomeDevice) error

// Check is a named CheckFunc.
type Check struct {
	Name string
	Run  CheckFunc
}

// Status is the outcome of one check.
type Status int

const (
	StatusPassed Status = iota
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result is the outcome of one check on one device.
type Result struct {
	Device   string        `json:"device"`
	Check    string        `json:"check"`
	Status   Status        `json:"status"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// Registry maps device classes to ordered checks.
type Registry struct {
	mu     sync.RWMutex
	checks map[ksx4506.DeviceClass][]Check
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{checks: make(map[ksx4506.DeviceClass][]Check)}
}

// Register appends checks for class, keeping insertion order. A name
// already registered for class rejects the whole batch.
func (r *Registry) Register(class ksx4506.DeviceClass, checks ...Check) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool, len(r.checks[class])+len(checks))
	for _, have := range r.checks[class] {
		seen[have.Name] = true
	}
	for _, c := range checks {
		if seen[c.Name] {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateCheck, class, c.Name)
		}
		seen[c.Name] = true
	}
	r.checks[class] = append(r.checks[class], checks...)
	return nil
}

// MustRegister is Register for built-in tables; a duplicate name panics.
func (r *Registry) MustRegister(class ksx4506.DeviceClass, checks ...Check) {
	if err := r.Register(class, checks...); err != nil {
		panic(err)
	}
}

// Checks returns the checks registered for class.
func (r *Registry) Checks(class ksx4506.DeviceClass) []Check {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Check(nil), r.checks[class]...)
}

// Run executes every check for d in order. A cancelled context stops the run
// early; the remaining checks are not reported.
func (r *Registry) Run(ctx context.Context, d device.HomeDevice) []Result {
	var out []Result
	for _, c := range r.Checks(d.Address().Class) {
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		err := c.Run(ctx, d)
		res := Result{Device: d.Address().String(), Check: c.Name, Err: err, Duration: time.Since(start)}
		switch {
		case err == nil:
			res.Status = StatusPassed
		case errors.Is(err, ErrSkipped):
			res.Status = StatusSkipped
		default:
			res.Status = StatusFailed
		}
		log.Debug().
			Str("device", res.Device).
			Str("check", res.Check).
			Str("status", res.Status.String()).
			Err(err).
			Msg("Conformance check finished")
		out = append(out, res)
	}
	return out
}

// RunAll runs the checks of every device in order.
func (r *Registry) RunAll(ctx context.Context, devs []device.HomeDevice) []Result {
	var out []Result
	for _, d := range devs {
		out = append(out, r.Run(ctx, d)...)
	}
	return out
}

// Summary counts results by status.
func Summary(results []Result) (passed, failed, skipped int) {
	for _, r := range results {
		switch r.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return passed, failed, skipped
}
