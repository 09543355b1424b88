package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/db"
	"github.com/urmzd/wallpad/pkg/device"
)

const persistTimeout = 5 * time.Second

// Source is the network side of a Persister.
type Source interface {
	device.EventSubscriber
	HomeDevice(id string) (device.HomeDevice, bool)
}

// Persister writes device registrations, renames and removals to the
// device store as the network reports them.
type Persister struct {
	store     db.DeviceStore
	src       Source
	profileID int64

	events chan device.DiscoveryEvent
	wg     sync.WaitGroup
}

// NewPersister creates a persister for profileID.
func NewPersister(store db.DeviceStore, src Source, profileID int64) *Persister {
	return &Persister{store: store, src: src, profileID: profileID}
}

// Start subscribes to the network.
func (p *Persister) Start() {
	p.events = p.src.Subscribe()
	p.wg.Add(1)
	go p.loop(p.events)
}

// Stop unsubscribes and waits for pending writes.
func (p *Persister) Stop() {
	if p.events == nil {
		return
	}
	p.src.Unsubscribe(p.events)
	p.wg.Wait()
	p.events = nil
}

func (p *Persister) loop(events <-chan device.DiscoveryEvent) {
	defer p.wg.Done()
	for ev := range events {
		if ev.Device == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := p.apply(ctx, ev); err != nil {
			log.Error().Err(err).Str("event", ev.Type).Str("address", ev.Device.ID).Msg("Failed to persist device")
		}
		cancel()
	}
}

func (p *Persister) apply(ctx context.Context, ev device.DiscoveryEvent) error {
	switch ev.Type {
	case device.EventDeviceDetected, device.EventDeviceRecovered, device.EventDeviceLost:
		return p.store.Upsert(ctx, p.record(ev.Device))
	case device.EventDeviceRenamed:
		err := p.store.Rename(ctx, p.profileID, ev.Device.ID, ev.Device.Name)
		if errors.Is(err, db.ErrDeviceNotFound) {
			return p.store.Upsert(ctx, p.record(ev.Device))
		}
		return err
	case device.EventDeviceRemoved:
		err := p.store.Delete(ctx, p.profileID, ev.Device.ID)
		if errors.Is(err, db.ErrDeviceNotFound) {
			return nil
		}
		return err
	}
	return nil
}

func (p *Persister) record(dev *device.Device) *db.DeviceRecord {
	rec := &db.DeviceRecord{
		ID:           dev.ID,
		ProfileID:    p.profileID,
		Name:         dev.Name,
		Type:         dev.Type,
		Protocol:     dev.Protocol,
		Manufacturer: dev.Manufacturer,
		Model:        dev.Model,
		LastSeen:     dev.LastSeen,
	}
	if hd, ok := p.src.HomeDevice(dev.ID); ok {
		if v := hd.Variant(); v.Learned() {
			rec.Version = int(v.Version)
			rec.Vendor = int(v.Vendor)
		}
	}
	return rec
}
