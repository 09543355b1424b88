package device

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
	"github.com/urmzd/wallpad/pkg/scheduler"
)

// Callback receives device notifications. Callbacks run on the goroutine
// that caused the change (usually the bus RX goroutine) and must not block.
type Callback interface {
	OnPropertyChanged(d HomeDevice)
	OnErrorOccurred(d HomeDevice, err error)
}

// CallbackFuncs adapts plain functions to Callback. Nil fields are skipped.
type CallbackFuncs struct {
	Changed func(d HomeDevice)
	Error   func(d HomeDevice, err error)
}

func (f CallbackFuncs) OnPropertyChanged(d HomeDevice) {
	if f.Changed != nil {
		f.Changed(d)
	}
}

func (f CallbackFuncs) OnErrorOccurred(d HomeDevice, err error) {
	if f.Error != nil {
		f.Error(d, err)
	}
}

// CallbackID identifies a registered callback.
type CallbackID uint64

// HomeDevice is the application view of one bus unit.
type HomeDevice interface {
	Address() ksx4506.Address
	Name() string

	// Property reads the requested view: a pending write if one is staged,
	// the confirmed value otherwise.
	Property(name string) (property.Value, bool)
	Properties() property.Reader
	Confirmed() property.Reader

	// SetProperty requests a single change. On a master the request is sent
	// to the device and confirmed asynchronously; on a slave it applies
	// immediately.
	SetProperty(name string, kind property.Kind, value any) error
	SetProperties(vs ...property.Value) error
	Refresh() error

	AddCallback(cb Callback) CallbackID
	RemoveCallback(id CallbackID)

	IsOn() bool
	IsConnected() bool
	// LastSeen is the time of the last accepted response, zero if none.
	LastSeen() time.Time
	Variant() codec.ProtocolVariant
}

type busDevice struct {
	net  *Network
	addr ksx4506.Address
	ctx  *codec.Context

	base    *property.BasicStore
	staging *property.StagingStore
	sub     property.Subscription

	mu        sync.Mutex
	name      string
	pending   *scheduler.Schedule
	lastSeen  time.Time
	missed    int
	connected bool
	lost      bool

	cbmu      sync.RWMutex
	nextCB    CallbackID
	callbacks map[CallbackID]Callback
}

func newBusDevice(n *Network, addr ksx4506.Address, name string) (*busDevice, error) {
	ctx, err := codec.NewContext(addr, n.cfg.Codec, n.vendors)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = fmt.Sprintf("%s_%02x", addr.Class, addr.SubID)
	}
	base := property.NewBasicStoreFrom(codec.Defaults(addr.Class)...)
	d := &busDevice{
		net:       n,
		addr:      addr,
		ctx:       ctx,
		base:      base,
		staging:   property.NewStagingStore(base),
		name:      name,
		callbacks: make(map[CallbackID]Callback),
	}
	d.sub = d.staging.Subscribe(d.notifyChanged)
	return d, nil
}

func (d *busDevice) close() {
	d.staging.Unsubscribe(d.sub)
	d.staging.Close()
}

func (d *busDevice) Address() ksx4506.Address { return d.addr }

func (d *busDevice) Name() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.name
}

func (d *busDevice) setName(name string) {
	d.mu.Lock()
	d.name = name
	d.mu.Unlock()
}

func (d *busDevice) Property(name string) (property.Value, bool) { return d.staging.Get(name) }

func (d *busDevice) Properties() property.Reader { return property.ReadOnly(d.staging) }

func (d *busDevice) Confirmed() property.Reader { return property.ReadOnly(d.base) }

func (d *busDevice) SetProperty(name string, kind property.Kind, value any) error {
	v, err := property.New(name, kind, value)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return d.SetProperties(v)
}

func (d *busDevice) SetProperties(vs ...property.Value) error {
	return d.net.request(d, vs)
}

func (d *busDevice) Refresh() error {
	return d.net.poll(d)
}

func (d *busDevice) AddCallback(cb Callback) CallbackID {
	d.cbmu.Lock()
	defer d.cbmu.Unlock()
	d.nextCB++
	d.callbacks[d.nextCB] = cb
	return d.nextCB
}

func (d *busDevice) RemoveCallback(id CallbackID) {
	d.cbmu.Lock()
	defer d.cbmu.Unlock()
	delete(d.callbacks, id)
}

func (d *busDevice) snapshotCallbacks() []Callback {
	d.cbmu.RLock()
	defer d.cbmu.RUnlock()
	out := make([]Callback, 0, len(d.callbacks))
	for _, cb := range d.callbacks {
		out = append(out, cb)
	}
	return out
}

func (d *busDevice) notifyChanged() {
	for _, cb := range d.snapshotCallbacks() {
		cb.OnPropertyChanged(d)
	}
}

func (d *busDevice) notifyError(err error) {
	for _, cb := range d.snapshotCallbacks() {
		cb.OnErrorOccurred(d, err)
	}
}

// IsOn reports the class's notion of "active".
func (d *busDevice) IsOn() bool {
	get := func(name string) property.Value {
		v, _ := d.staging.Get(name)
		return v
	}
	switch d.addr.Class {
	case ksx4506.ClassLight:
		return get(codec.PropLightOn).AsBool()
	case ksx4506.ClassGasValve:
		return !get(codec.PropGasClosed).AsBool()
	case ksx4506.ClassVentilation:
		return get(codec.PropVentPower).AsBool()
	case ksx4506.ClassThermostat:
		return get(codec.PropThermoFunctions).AsInt()&codec.ThermoHeating != 0
	case ksx4506.ClassBatchSwitch:
		return get(codec.PropBatchState).AsInt() != 0
	default:
		return false
	}
}

func (d *busDevice) IsConnected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

func (d *busDevice) LastSeen() time.Time {
	t, _ := d.seen()
	return t
}

func (d *busDevice) Variant() codec.ProtocolVariant { return d.ctx.Variant() }

func (d *busDevice) seen() (time.Time, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSeen, !d.lastSeen.IsZero()
}

// markSeen records a response and reports whether the device came back
// after being lost.
func (d *busDevice) markSeen() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastSeen = time.Now()
	d.missed = 0
	d.connected = true
	recovered := d.lost
	d.lost = false
	return recovered
}

// markPolled counts an outstanding poll and reports whether the device has
// just crossed the missed-poll limit.
func (d *busDevice) markPolled(limit int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.missed++
	if limit > 0 && d.missed > limit && d.connected {
		d.connected = false
		d.lost = true
		return true
	}
	return false
}

func (d *busDevice) disconnect() {
	d.mu.Lock()
	d.connected = false
	d.mu.Unlock()
}

// setPending installs sc as the in-flight control request and returns the
// one it replaces.
func (d *busDevice) setPending(sc *scheduler.Schedule) *scheduler.Schedule {
	d.mu.Lock()
	defer d.mu.Unlock()
	old := d.pending
	d.pending = sc
	return old
}

// takePending clears the in-flight request if it is sc, or any request when
// sc is nil.
func (d *busDevice) takePending(sc *scheduler.Schedule) *scheduler.Schedule {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending == nil || (sc != nil && d.pending != sc) {
		return nil
	}
	p := d.pending
	d.pending = nil
	return p
}

func (d *busDevice) hasPending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

// onControlExit runs when a control request used up its repeats. Group
// requests have no response, so the staged values are committed; a single
// request that was never confirmed is rolled back.
func (d *busDevice) onControlExit(sc *scheduler.Schedule) {
	if d.takePending(sc) == nil {
		return
	}
	if d.addr.IsGroup() {
		staged := d.staging.Staged()
		d.staging.Commit()
		d.net.propagate(d, staged)
		return
	}
	d.staging.ClearStaged()
	d.notifyError(fmt.Errorf("%w: %s", ErrNoResponse, d.addr))
}

func (d *busDevice) onControlError(sc *scheduler.Schedule, err error) {
	if errors.Is(err, scheduler.ErrClosed) && d.takePending(sc) != nil {
		d.staging.ClearStaged()
	}
	d.notifyError(fmt.Errorf("control request %s: %w", d.addr, err))
}
