package conformance

import (
	"context"
	"fmt"
	"time"

	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

// DefaultTimeout bounds a check when ctx has no deadline.
const DefaultTimeout = 3 * time.Second

// Check names
const (
	CheckCharacteristic = "characteristic_learned"
	CheckStatus         = "status_readable"
	CheckControl        = "control_round_trip"
)

// DefaultRegistry returns a registry with the built-in checks of every
// supported class.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	base := []Check{
		{Name: CheckCharacteristic, Run: characteristicLearned},
		{Name: CheckStatus, Run: statusReadable},
	}
	targets := map[ksx4506.DeviceClass]func(device.HomeDevice) ([]property.Value, error){
		ksx4506.ClassLight:       lightTarget,
		ksx4506.ClassGasValve:    gasTarget,
		ksx4506.ClassVentilation: ventTarget,
		ksx4506.ClassThermostat:  thermoTarget,
		ksx4506.ClassBatchSwitch: batchTarget,
	}
	for class, target := range targets {
		checks := append(append([]Check(nil), base...), Check{Name: CheckControl, Run: controlRoundTrip(target)})
		r.MustRegister(class, checks...)
	}
	r.MustRegister(ksx4506.ClassMeter, base...)
	return r
}

// waitUntil polls cond until it holds, an error arrives on errs, or ctx
// expires.
func waitUntil(ctx context.Context, errs <-chan error, cond func() bool) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if cond() {
			return nil
		}
		select {
		case err := <-errs:
			return err
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", device.ErrTimeout, ctx.Err())
		case <-tick.C:
		}
	}
}

func characteristicLearned(ctx context.Context, d device.HomeDevice) error {
	if d.Variant().Learned() {
		return nil
	}
	if err := d.Refresh(); err != nil {
		return err
	}
	return waitUntil(ctx, nil, func() bool { return d.Variant().Learned() })
}

func statusReadable(ctx context.Context, d device.HomeDevice) error {
	before := d.LastSeen()
	if err := d.Refresh(); err != nil {
		return err
	}
	return waitUntil(ctx, nil, func() bool { return d.LastSeen().After(before) })
}

// controlRoundTrip requests the values chosen by target, waits until the
// device confirms them, then restores the previous values.
func controlRoundTrip(target func(device.HomeDevice) ([]property.Value, error)) CheckFunc {
	return func(ctx context.Context, d device.HomeDevice) error {
		want, err := target(d)
		if err != nil {
			return err
		}
		prev := make([]property.Value, 0, len(want))
		for _, v := range want {
			if cur, ok := d.Confirmed().Get(v.Name()); ok {
				prev = append(prev, cur)
			}
		}

		if err := roundTrip(ctx, d, want); err != nil {
			return err
		}
		if d.Address().Class == ksx4506.ClassGasValve {
			return nil
		}
		if err := roundTrip(ctx, d, prev); err != nil {
			return fmt.Errorf("restore: %w", err)
		}
		return nil
	}
}

func roundTrip(ctx context.Context, d device.HomeDevice, vs []property.Value) error {
	errs := make(chan error, 1)
	id := d.AddCallback(device.CallbackFuncs{Error: func(_ device.HomeDevice, err error) {
		select {
		case errs <- err:
		default:
		}
	}})
	defer d.RemoveCallback(id)

	if err := d.SetProperties(vs...); err != nil {
		return fmt.Errorf("request: %w", err)
	}
	return waitUntil(ctx, errs, func() bool { return confirmed(d, vs) })
}

// confirmed reports whether every value is confirmed and nothing for it is
// still staged.
func confirmed(d device.HomeDevice, vs []property.Value) bool {
	for _, v := range vs {
		got, ok := d.Confirmed().Get(v.Name())
		if !ok || !got.Equal(v) {
			return false
		}
		view, _ := d.Property(v.Name())
		if !view.Equal(got) {
			return false
		}
	}
	return true
}

func current(d device.HomeDevice, name string) property.Value {
	v, _ := d.Confirmed().Get(name)
	return v
}

func lightTarget(d device.HomeDevice) ([]property.Value, error) {
	return []property.Value{property.Bool(codec.PropLightOn, !current(d, codec.PropLightOn).AsBool())}, nil
}

// gasTarget always closes; opening is not a remote operation.
func gasTarget(device.HomeDevice) ([]property.Value, error) {
	return []property.Value{property.Bool(codec.PropGasClosed, true)}, nil
}

func ventTarget(d device.HomeDevice) ([]property.Value, error) {
	return []property.Value{property.Bool(codec.PropVentPower, !current(d, codec.PropVentPower).AsBool())}, nil
}

func thermoTarget(d device.HomeDevice) ([]property.Value, error) {
	sup := current(d, codec.PropThermoSupported).AsInt()
	if sup&codec.ThermoHeating == 0 {
		return nil, fmt.Errorf("%w: heating not supported", ErrSkipped)
	}
	fn := current(d, codec.PropThermoFunctions).AsInt() ^ codec.ThermoHeating
	return []property.Value{property.Int(codec.PropThermoFunctions, fn)}, nil
}

func batchTarget(d device.HomeDevice) ([]property.Value, error) {
	sup := current(d, codec.PropBatchSupported).AsInt()
	if sup == 0 {
		return nil, fmt.Errorf("%w: no batch functions advertised", ErrSkipped)
	}
	bit := sup & -sup
	return []property.Value{property.Int(codec.PropBatchState, current(d, codec.PropBatchState).AsInt()^bit)}, nil
}
