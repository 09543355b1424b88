package device

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
	"github.com/urmzd/wallpad/pkg/scheduler"
	"github.com/urmzd/wallpad/pkg/transport"
)

// ErrorCodeDeclined is the error code a slave answers with when it declines
// a request.
const ErrorCodeDeclined = 0x01

// NetworkConfig configures a Network.
type NetworkConfig struct {
	Mode Mode

	// PollInterval is the status poll period of a master. Zero disables
	// polling.
	PollInterval time.Duration
	// PollSpacing separates consecutive requests of one poll round.
	PollSpacing time.Duration
	// MissedPolls is how many unanswered polls mark a device lost.
	MissedPolls int

	RepeatCount    int
	RepeatInterval time.Duration

	Codec codec.Options

	// DiscoveryAddresses are probed with characteristic requests when
	// discovery starts. Empty means DefaultDiscoverySweep.
	DiscoveryAddresses []ksx4506.Address
}

// DefaultNetworkConfig returns master defaults.
func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		Mode:           ModeMaster,
		PollInterval:   5 * time.Second,
		PollSpacing:    50 * time.Millisecond,
		MissedPolls:    3,
		RepeatCount:    3,
		RepeatInterval: 200 * time.Millisecond,
	}
}

// DefaultDiscoverySweep returns the addresses probed by default: the first
// four singles, the first four members of group 1 and group 1 itself, for
// every supported class.
func DefaultDiscoverySweep() []ksx4506.Address {
	classes := []ksx4506.DeviceClass{
		ksx4506.ClassLight, ksx4506.ClassGasValve, ksx4506.ClassVentilation,
		ksx4506.ClassThermostat, ksx4506.ClassBatchSwitch, ksx4506.ClassMeter,
	}
	var out []ksx4506.Address
	for _, c := range classes {
		for i := uint8(1); i <= 4; i++ {
			out = append(out, ksx4506.NewAddress(c, 0, i))
		}
		for i := uint8(1); i <= 4; i++ {
			out = append(out, ksx4506.NewAddress(c, 1, i))
		}
		out = append(out, ksx4506.NewAddress(c, 1, 0x0F))
	}
	return out
}

// Network drives one bus segment. As master it polls registered devices and
// issues control requests; as slave it answers requests for the devices it
// simulates. It implements Controller and EventSubscriber.
type Network struct {
	cfg     NetworkConfig
	proc    *transport.StreamProcessor
	vendors *codec.Registry
	parser  *ksx4506.FrameParser

	mu      sync.RWMutex
	devices map[ksx4506.Address]*busDevice

	subMu       sync.RWMutex
	subscribers []chan DiscoveryEvent

	discovering atomic.Bool
	discMu      sync.Mutex
	discTimer   *time.Timer

	runMu   sync.Mutex
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// NewNetwork creates a network on top of proc. A nil vendors registry means
// codec.DefaultRegistry.
func NewNetwork(cfg NetworkConfig, proc *transport.StreamProcessor, vendors *codec.Registry) *Network {
	def := DefaultNetworkConfig()
	if cfg.Mode == "" {
		cfg.Mode = def.Mode
	}
	if cfg.PollSpacing <= 0 {
		cfg.PollSpacing = def.PollSpacing
	}
	if cfg.RepeatInterval <= 0 {
		cfg.RepeatInterval = def.RepeatInterval
	}
	if vendors == nil {
		vendors = codec.DefaultRegistry()
	}
	return &Network{
		cfg:     cfg,
		proc:    proc,
		vendors: vendors,
		parser:  ksx4506.NewFrameParser(),
		devices: make(map[ksx4506.Address]*busDevice),
	}
}

// Mode returns the configured side of the bus.
func (n *Network) Mode() Mode { return n.cfg.Mode }

// Start attaches to proc and starts the stream on session.
func (n *Network) Start(session transport.Session) error {
	n.runMu.Lock()
	defer n.runMu.Unlock()
	if n.running {
		return transport.ErrAlreadyRunning
	}

	n.parser.Reset()
	n.proc.AddClient(n)
	if err := n.proc.StartStream(session); err != nil {
		n.proc.RemoveClient(n)
		return err
	}

	n.stop = make(chan struct{})
	n.running = true
	if n.cfg.Mode == ModeMaster && n.cfg.PollInterval > 0 {
		n.wg.Add(1)
		go n.pollLoop(n.stop)
	}

	log.Info().
		Str("mode", string(n.cfg.Mode)).
		Str("session", session.Name()).
		Int("devices", len(n.snapshot())).
		Msg("Network started")
	return nil
}

// Stop stops polling and the stream. Registered devices are kept.
func (n *Network) Stop() {
	n.stopLoops()
	n.proc.StopStream()
	n.proc.RemoveClient(n)
}

func (n *Network) stopLoops() {
	n.runMu.Lock()
	if !n.running {
		n.runMu.Unlock()
		return
	}
	n.running = false
	close(n.stop)
	n.runMu.Unlock()
	n.wg.Wait()
}

// AddDevice registers a device at addr.
func (n *Network) AddDevice(addr ksx4506.Address, name string) (HomeDevice, error) {
	d, err := n.register(addr, name)
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (n *Network) register(addr ksx4506.Address, name string) (*busDevice, error) {
	if addr.Mode() == ksx4506.ModeAll {
		return nil, fmt.Errorf("%w: %s addresses every unit", ErrUnsupported, addr)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.devices[addr]; ok {
		return nil, fmt.Errorf("%w: %s", ErrExists, addr)
	}
	d, err := newBusDevice(n, addr, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnsupported, addr, err)
	}
	n.devices[addr] = d
	return d, nil
}

// Preset fixes the protocol variant a simulated device advertises in its
// characteristic responses. It fails once the variant is learned.
func (n *Network) Preset(id string, version, vendor uint8) error {
	d, ok := n.find(id)
	if !ok {
		return ErrNotFound
	}
	if !d.ctx.Preset(version, vendor) {
		return fmt.Errorf("%w: %s variant already learned", ErrUnsupported, d.addr)
	}
	return nil
}

// HomeDevice looks a device up by address or name.
func (n *Network) HomeDevice(id string) (HomeDevice, bool) {
	d, ok := n.find(id)
	if !ok {
		return nil, false
	}
	return d, true
}

// HomeDevices returns every registered device ordered by address.
func (n *Network) HomeDevices() []HomeDevice {
	devs := n.snapshot()
	out := make([]HomeDevice, len(devs))
	for i, d := range devs {
		out[i] = d
	}
	return out
}

func (n *Network) find(id string) (*busDevice, bool) {
	if addr, err := ksx4506.ParseAddress(id); err == nil {
		if d := n.lookup(addr); d != nil {
			return d, true
		}
	}
	for _, d := range n.snapshot() {
		if d.Name() == id {
			return d, true
		}
	}
	return nil, false
}

func (n *Network) lookup(addr ksx4506.Address) *busDevice {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.devices[addr]
}

func (n *Network) snapshot() []*busDevice {
	n.mu.RLock()
	out := make([]*busDevice, 0, len(n.devices))
	for _, d := range n.devices {
		out = append(out, d)
	}
	n.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].addr, out[j].addr
		if a.Class != b.Class {
			return a.Class < b.Class
		}
		return a.SubID < b.SubID
	})
	return out
}

func (n *Network) childReader(d *busDevice) func(uint8) (property.Reader, bool) {
	if !d.addr.IsGroup() {
		return nil
	}
	return func(i uint8) (property.Reader, bool) {
		c := n.lookup(d.addr.Child(i))
		if c == nil {
			return nil, false
		}
		return c.staging, true
	}
}

// OnReceive implements transport.Client.
func (n *Network) OnReceive(b []byte) {
	for _, pkt := range n.parser.Feed(b) {
		if pkt.Command.IsResponse() {
			if n.cfg.Mode == ModeMaster {
				n.handleResponse(pkt)
			}
			continue
		}
		if n.cfg.Mode == ModeSlave {
			n.handleRequest(pkt)
		}
	}
}

// OnTransportError implements transport.Client.
func (n *Network) OnTransportError(err error) {
	log.Error().Err(err).Msg("Bus connection lost")
	n.stopLoops()
	for _, d := range n.snapshot() {
		d.disconnect()
		if p := d.takePending(nil); p != nil {
			d.staging.ClearStaged()
		}
		d.notifyError(fmt.Errorf("%w: %w", ErrNotConnected, err))
	}
}

func (n *Network) handleResponse(pkt ksx4506.Packet) {
	d := n.lookup(pkt.Address)
	if d == nil {
		d = n.detect(pkt)
		if d == nil {
			log.Debug().Str("address", pkt.Address.String()).Str("command", pkt.Command.String()).Msg("Response from unregistered address")
			return
		}
	}

	out := codec.NewOutput()
	res := d.ctx.Parse(pkt, d.base, n.childReader(d), out)
	if res.Failed() {
		return
	}
	if d.markSeen() {
		n.publishEvent(EventDeviceRecovered, d)
	}

	control := pkt.Command == ksx4506.CmdSingleControlRsp || pkt.Command == ksx4506.CmdAlarmOffRsp
	if res == ksx4506.OKErrorReceived {
		if control {
			n.resolve(d)
		}
		d.notifyError(fmt.Errorf("%w: %s code 0x%02X", ErrDeviceError, d.addr, out.ErrorCode))
		return
	}

	out.Apply(d.base, func(i uint8) property.Store {
		c := n.lookup(d.addr.Child(i))
		if c == nil {
			return nil
		}
		c.markSeen()
		return c.base
	})
	if control {
		n.resolve(d)
	}
}

// resolve ends the in-flight control request of d and drops its staging.
func (n *Network) resolve(d *busDevice) {
	if p := d.takePending(nil); p != nil {
		n.proc.RemoveSchedule(p)
	}
	d.staging.ClearStaged()
}

// detect registers the sender of a characteristic response while discovery
// is on.
func (n *Network) detect(pkt ksx4506.Packet) *busDevice {
	if !n.discovering.Load() || pkt.Command != ksx4506.CmdCharacteristicRsp || !codec.Supported(pkt.Address.Class) {
		return nil
	}
	d, err := n.register(pkt.Address, "")
	if err != nil {
		return n.lookup(pkt.Address)
	}
	log.Info().Str("address", d.addr.String()).Str("type", d.addr.Class.String()).Msg("Device detected")
	n.publishEvent(EventDeviceDetected, d)
	return d
}

// propagate copies committed group values to the registered members.
func (n *Network) propagate(group *busDevice, vs []property.Value) {
	for _, d := range n.snapshot() {
		if d != group && group.addr.Contains(d.addr) {
			d.base.PutAll(vs...)
		}
	}
}

func (n *Network) handleRequest(pkt ksx4506.Packet) {
	d := n.lookup(pkt.Address)
	if d == nil {
		if pkt.Address.Mode() == ksx4506.ModeFullGroup {
			n.answerMembers(pkt)
		}
		return
	}

	switch pkt.Command {
	case ksx4506.CmdStatusReq, ksx4506.CmdCharacteristicReq:
		if res := d.ctx.Parse(pkt, d.staging, nil, codec.NewOutput()); res.Failed() {
			return
		}
		n.reply(d, pkt)

	case ksx4506.CmdSingleControlReq, ksx4506.CmdAlarmOffReq, ksx4506.CmdGroupControlReq:
		out := codec.NewOutput()
		res := d.ctx.Parse(pkt, d.staging, n.childReader(d), out)
		if res == ksx4506.ErrorMalformedPacket {
			return
		}
		if res.Failed() {
			log.Debug().Str("address", d.addr.String()).Hex("data", pkt.Data).Msg("Declined control request")
			if rsp, ok := codec.ErrorResponse(pkt, ErrorCodeDeclined); ok {
				n.sendQuiet(rsp)
			}
			return
		}
		n.commit(d, out)
		if pkt.Command != ksx4506.CmdGroupControlReq {
			n.reply(d, pkt)
		}
	}
}

// answerMembers handles a status or characteristic request to a group
// that is not registered as a whole: each registered member answers for
// itself, in sub ID order.
func (n *Network) answerMembers(pkt ksx4506.Packet) {
	if pkt.Command != ksx4506.CmdStatusReq && pkt.Command != ksx4506.CmdCharacteristicReq {
		return
	}
	for _, d := range n.snapshot() {
		if d.addr.IsGroup() || !pkt.Address.Contains(d.addr) {
			continue
		}
		member := pkt
		member.Address = d.addr
		n.handleRequest(member)
	}
}

// commit stages the proposals of a request on d and its members and
// commits them.
func (n *Network) commit(d *busDevice, out *codec.Output) {
	var touched []*busDevice
	out.Apply(d.staging, func(i uint8) property.Store {
		c := n.lookup(d.addr.Child(i))
		if c == nil {
			return nil
		}
		touched = append(touched, c)
		return c.staging
	})
	d.staging.Commit()
	for _, c := range touched {
		c.staging.Commit()
	}
}

func (n *Network) reply(d *busDevice, req ksx4506.Packet) {
	rsp, ok := d.ctx.MakeResponse(req, d.staging, n.childReader(d))
	if !ok {
		return
	}
	n.sendQuiet(rsp)
}

func (n *Network) sendQuiet(pkt ksx4506.Packet) {
	if err := n.proc.SendPacketQuiet(pkt); err != nil {
		log.Warn().Err(err).Str("address", pkt.Address.String()).Msg("Failed to queue response")
	}
}

// request applies a state change from the application.
func (n *Network) request(d *busDevice, vs []property.Value) error {
	if len(vs) == 0 {
		return nil
	}
	for _, v := range vs {
		cur, ok := d.staging.Get(v.Name())
		if !ok {
			return fmt.Errorf("%w: %s has no property %s", ErrValidation, d.addr, v.Name())
		}
		if cur.Kind() != v.Kind() {
			return fmt.Errorf("%w: %s is %s, got %s", ErrValidation, v.Name(), cur.Kind(), v.Kind())
		}
	}

	if n.cfg.Mode == ModeSlave {
		d.staging.PutAll(vs...)
		d.staging.Commit()
		return nil
	}

	for _, v := range vs {
		if !Settable(d.addr.Class, v.Name()) {
			return fmt.Errorf("%w: %s is read-only", ErrUnsupported, v.Name())
		}
	}
	return n.control(d, vs)
}

// control stages vs, builds the control request from the staged view and
// schedules it.
func (n *Network) control(d *busDevice, vs []property.Value) error {
	d.staging.PutAll(vs...)
	pkt, err := n.controlPacket(d, vs)
	if err != nil {
		d.staging.ClearStaged()
		return err
	}

	sc := &scheduler.Schedule{
		Packet:         pkt,
		RepeatCount:    n.cfg.RepeatCount,
		RepeatInterval: n.cfg.RepeatInterval,
		OnExit:         d.onControlExit,
		OnError:        d.onControlError,
	}
	if old := d.setPending(sc); old != nil {
		n.proc.RemoveSchedule(old)
	}
	if _, err := n.proc.SchedulePacket(sc); err != nil {
		d.takePending(sc)
		d.staging.ClearStaged()
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}

	log.Debug().Str("address", d.addr.String()).Str("packet", pkt.String()).Msg("Control request scheduled")
	return nil
}

func (n *Network) controlPacket(d *busDevice, vs []property.Value) (ksx4506.Packet, error) {
	if d.addr.Class == ksx4506.ClassGasValve && alarmOnly(vs) {
		if vs[0].AsBool() {
			return ksx4506.Packet{}, fmt.Errorf("%w: the gas alarm can only be cleared", ErrDeclined)
		}
		return ksx4506.NewPacket(d.addr, ksx4506.CmdAlarmOffReq), nil
	}

	data, res := d.ctx.MakeControlReq(d.staging)
	if res.Failed() {
		return ksx4506.Packet{}, fmt.Errorf("%w: %s (%s)", ErrDeclined, d.addr, res)
	}
	cmd := ksx4506.CmdSingleControlReq
	if d.addr.IsGroup() {
		cmd = ksx4506.CmdGroupControlReq
	}
	return ksx4506.NewPacket(d.addr, cmd, data...), nil
}

func alarmOnly(vs []property.Value) bool {
	for _, v := range vs {
		if v.Name() != codec.PropGasAlarm {
			return false
		}
	}
	return true
}

// poll sends one status request, or a characteristic request while the
// device's variant is still unknown.
func (n *Network) poll(d *busDevice) error {
	if n.cfg.Mode != ModeMaster {
		return fmt.Errorf("%w: slaves do not poll", ErrUnsupported)
	}
	cmd := ksx4506.CmdStatusReq
	if !d.ctx.Variant().Learned() {
		cmd = ksx4506.CmdCharacteristicReq
	}
	if d.markPolled(n.cfg.MissedPolls) {
		log.Warn().Str("address", d.addr.String()).Msg("Device stopped responding")
		n.publishEvent(EventDeviceLost, d)
	}
	if err := n.proc.SendPacketQuiet(ksx4506.NewPacket(d.addr, cmd)); err != nil {
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	}
	return nil
}

// pollTargets skips members whose group is registered; the group poll
// covers them.
func (n *Network) pollTargets() []*busDevice {
	devs := n.snapshot()
	out := devs[:0:0]
	for _, d := range devs {
		if !d.addr.IsGroup() && d.addr.Group() != 0 && n.lookup(d.addr.GroupAddress()) != nil {
			continue
		}
		out = append(out, d)
	}
	return out
}

func (n *Network) pollLoop(stop <-chan struct{}) {
	defer n.wg.Done()
	ticker := time.NewTicker(n.cfg.PollInterval)
	defer ticker.Stop()

	for {
		for _, d := range n.pollTargets() {
			if err := n.poll(d); err != nil {
				log.Debug().Err(err).Str("address", d.addr.String()).Msg("Poll failed")
			}
			if !sleep(stop, n.cfg.PollSpacing) {
				return
			}
		}
		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// sleep waits d or until stop closes; it reports false on stop.
func sleep(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

// probe sends characteristic requests to every discovery address that is
// not registered yet.
func (n *Network) probe(stop <-chan struct{}) {
	defer n.wg.Done()
	addrs := n.cfg.DiscoveryAddresses
	if len(addrs) == 0 {
		addrs = DefaultDiscoverySweep()
	}
	for _, a := range addrs {
		if !n.discovering.Load() {
			return
		}
		if n.lookup(a) != nil {
			continue
		}
		if err := n.proc.SendPacketQuiet(ksx4506.NewPacket(a, ksx4506.CmdCharacteristicReq)); err != nil {
			log.Debug().Err(err).Msg("Discovery probe failed")
			return
		}
		if !sleep(stop, n.cfg.PollSpacing) {
			return
		}
	}
}
