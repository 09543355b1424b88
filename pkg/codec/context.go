package codec

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

// Options tunes codec behavior.
type Options struct {
	// LenientMasks intersects or clamps out-of-range requests instead of
	// declining them.
	LenientMasks bool
}

// Step names one parse step of the grammar.
type Step int

const (
	StepCharacteristicRsp Step = iota
	StepStatusRsp
	StepControlRsp
	StepControlReq
	StepGroupControlReq
	StepAlarmOffReq
	StepAlarmOffRsp
)

// BuildStep names one build step of the grammar.
type BuildStep int

const (
	// BuildCharacteristic produces the characteristic response payload
	// without the error byte.
	BuildCharacteristic BuildStep = iota
	// BuildStatus produces the status payload without the error byte. It is
	// also the control and alarm-off response payload.
	BuildStatus
	// BuildControlReq produces the control request payload.
	BuildControlReq
)

// Scope is the read-only input of one codec step.
type Scope struct {
	Address ksx4506.Address
	State   property.Reader
	Variant ProtocolVariant
	Options Options

	// Child resolves the state of a group member; may be nil.
	Child func(index uint8) (property.Reader, bool)
}

// ParseFunc decodes pkt into proposals on out.
type ParseFunc func(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult

// BuildFunc encodes a payload from s.State. A failed result declines.
type BuildFunc func(s *Scope) ([]byte, ksx4506.ParseResult)

// ParseInterceptor wraps a parse step. Implementations call next first and
// return early when its result failed.
type ParseInterceptor func(next ParseFunc) ParseFunc

// BuildInterceptor wraps a build step with the same contract.
type BuildInterceptor func(next BuildFunc) BuildFunc

type baseCodec struct {
	parse map[Step]ParseFunc
	build map[BuildStep]BuildFunc
}

var baseCodecs = map[ksx4506.DeviceClass]func() baseCodec{
	ksx4506.ClassLight:       lightCodec,
	ksx4506.ClassGasValve:    gasCodec,
	ksx4506.ClassVentilation: ventCodec,
	ksx4506.ClassThermostat:  thermoCodec,
	ksx4506.ClassBatchSwitch: batchCodec,
	ksx4506.ClassMeter:       meterCodec,
}

// Supported reports whether a codec exists for class.
func Supported(class ksx4506.DeviceClass) bool {
	_, ok := baseCodecs[class]
	return ok
}

// StepFor maps a received command to its parse step.
func StepFor(cmd ksx4506.Command) (Step, bool) {
	switch cmd {
	case ksx4506.CmdCharacteristicRsp:
		return StepCharacteristicRsp, true
	case ksx4506.CmdStatusRsp:
		return StepStatusRsp, true
	case ksx4506.CmdSingleControlRsp:
		return StepControlRsp, true
	case ksx4506.CmdSingleControlReq:
		return StepControlReq, true
	case ksx4506.CmdGroupControlReq:
		return StepGroupControlReq, true
	case ksx4506.CmdAlarmOffReq:
		return StepAlarmOffReq, true
	case ksx4506.CmdAlarmOffRsp:
		return StepAlarmOffRsp, true
	default:
		return 0, false
	}
}

// Context is the protocol state machine of one device address. The grammar
// itself is stateless; the only state carried across frames is the learned
// protocol variant.
type Context struct {
	addr    ksx4506.Address
	opts    Options
	base    baseCodec
	vendors *Registry

	mu      sync.RWMutex
	parseIC map[Step][]ParseInterceptor
	buildIC map[BuildStep][]BuildInterceptor
	variant ProtocolVariant
}

// NewContext creates the context for addr. vendors may be nil.
func NewContext(addr ksx4506.Address, opts Options, vendors *Registry) (*Context, error) {
	mk, ok := baseCodecs[addr.Class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedClass, addr.Class)
	}
	return &Context{
		addr:    addr,
		opts:    opts,
		base:    mk(),
		vendors: vendors,
		parseIC: make(map[Step][]ParseInterceptor),
		buildIC: make(map[BuildStep][]BuildInterceptor),
	}, nil
}

// Address returns the device address.
func (c *Context) Address() ksx4506.Address { return c.addr }

// Options returns the codec options.
func (c *Context) Options() Options { return c.opts }

// Variant returns the current protocol variant.
func (c *Context) Variant() ProtocolVariant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.variant
}

// Preset fixes the variant of a locally simulated device. It only succeeds
// while the variant is still unknown.
func (c *Context) Preset(version, vendor uint8) bool {
	return c.adopt(ProtocolVariant{Version: version, Vendor: vendor})
}

// UseParse appends interceptors to a parse step. Later interceptors wrap
// earlier ones.
func (c *Context) UseParse(step Step, ics ...ParseInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.parseIC[step] = append(c.parseIC[step], ics...)
}

// UseBuild appends interceptors to a build step.
func (c *Context) UseBuild(step BuildStep, ics ...BuildInterceptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buildIC[step] = append(c.buildIC[step], ics...)
}

func (c *Context) scope(state property.Reader, child func(uint8) (property.Reader, bool)) *Scope {
	return &Scope{
		Address: c.addr,
		State:   state,
		Variant: c.Variant(),
		Options: c.opts,
		Child:   child,
	}
}

func (c *Context) parseChain(step Step, v ProtocolVariant) ParseFunc {
	fn, ok := c.base.parse[step]
	if !ok {
		return nil
	}
	c.mu.RLock()
	for _, ic := range c.parseIC[step] {
		fn = ic(fn)
	}
	c.mu.RUnlock()
	if vendor := c.learnedVendor(v); vendor != nil {
		for _, ic := range vendor.parseInterceptors(c.addr.Class, step) {
			fn = ic(fn)
		}
	}
	return fn
}

func (c *Context) buildChain(step BuildStep, v ProtocolVariant) BuildFunc {
	fn, ok := c.base.build[step]
	if !ok {
		return nil
	}
	c.mu.RLock()
	for _, ic := range c.buildIC[step] {
		fn = ic(fn)
	}
	c.mu.RUnlock()
	if vendor := c.learnedVendor(v); vendor != nil {
		for _, ic := range vendor.buildInterceptors(c.addr.Class, step) {
			fn = ic(fn)
		}
	}
	return fn
}

func (c *Context) learnedVendor(v ProtocolVariant) *Vendor {
	if !v.Learned() || c.vendors == nil {
		return nil
	}
	vendor, ok := c.vendors.Lookup(v.Vendor)
	if !ok {
		return nil
	}
	return vendor
}

// Parse runs the parse chain for pkt. state is the current device state and
// child resolves group members; both may be nil. On failure out is reset so
// callers can apply it unconditionally.
func (c *Context) Parse(pkt ksx4506.Packet, state property.Reader, child func(uint8) (property.Reader, bool), out *Output) ksx4506.ParseResult {
	switch pkt.Command {
	case ksx4506.CmdStatusReq, ksx4506.CmdCharacteristicReq:
		if len(pkt.Data) != 0 {
			return ksx4506.ErrorMalformedPacket
		}
		return ksx4506.OKPeerDetected
	}

	step, ok := StepFor(pkt.Command)
	if !ok {
		return ksx4506.ErrorUnknown
	}
	s := c.scope(state, child)
	fn := c.parseChain(step, s.Variant)
	if fn == nil {
		return ksx4506.ErrorUnknown
	}

	res := fn(s, pkt, out)
	if res.Failed() {
		log.Debug().
			Str("address", c.addr.String()).
			Str("command", pkt.Command.String()).
			Hex("data", pkt.Data).
			Str("result", res.String()).
			Msg("Frame rejected by codec")
		out.Reset()
		return res
	}
	if res == ksx4506.OKErrorReceived {
		code := out.ErrorCode
		out.Reset()
		out.ErrorCode = code
		return res
	}

	if step == StepCharacteristicRsp && out.Variant != nil && c.adopt(*out.Variant) {
		log.Info().
			Str("address", c.addr.String()).
			Str("variant", c.Variant().String()).
			Msg("Learned protocol variant")
	}
	return res
}

// adopt moves the variant machine to learned. It is a no-op once learned.
func (c *Context) adopt(v ProtocolVariant) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.variant.Learned() {
		return false
	}
	v.State = VariantLearned
	if c.vendors != nil {
		if vendor, ok := c.vendors.Lookup(v.Vendor); ok && vendor.Learn != nil {
			vendor.Learn(&v)
		}
	}
	c.variant = v
	return true
}

// MakeControlReq builds the control request payload for the requested state.
// A failed result means the request was declined.
func (c *Context) MakeControlReq(state property.Reader) ([]byte, ksx4506.ParseResult) {
	return c.build(BuildControlReq, state, nil)
}

func (c *Context) build(step BuildStep, state property.Reader, child func(uint8) (property.Reader, bool)) ([]byte, ksx4506.ParseResult) {
	s := c.scope(state, child)
	fn := c.buildChain(step, s.Variant)
	if fn == nil {
		return nil, ksx4506.ErrorUnknown
	}
	return fn(s)
}

// MakeResponse builds the response a slave sends for req from its state,
// after any proposals of the request have been applied. It returns false
// when req has no response.
func (c *Context) MakeResponse(req ksx4506.Packet, state property.Reader, child func(uint8) (property.Reader, bool)) (ksx4506.Packet, bool) {
	rsp, ok := req.Command.Response()
	if !ok {
		return ksx4506.Packet{}, false
	}
	step := BuildStatus
	if req.Command == ksx4506.CmdCharacteristicReq {
		step = BuildCharacteristic
	}
	data, res := c.build(step, state, child)
	if res.Failed() {
		return ksx4506.Packet{}, false
	}
	payload := make([]byte, 0, len(data)+1)
	payload = append(payload, 0x00)
	payload = append(payload, data...)
	return ksx4506.Packet{Command: rsp, Address: req.Address, Data: payload}, true
}

// ErrorResponse builds a response carrying a non-zero error code.
func ErrorResponse(req ksx4506.Packet, code byte) (ksx4506.Packet, bool) {
	rsp, ok := req.Command.Response()
	if !ok {
		return ksx4506.Packet{}, false
	}
	return ksx4506.NewPacket(req.Address, rsp, code), true
}

// checkResponse handles the leading error byte of every response. ok is
// false when the caller should return res immediately.
func checkResponse(pkt ksx4506.Packet, out *Output, minLen int) (res ksx4506.ParseResult, ok bool) {
	if len(pkt.Data) == 0 {
		return ksx4506.ErrorMalformedPacket, false
	}
	if pkt.Data[0] != 0 {
		out.ErrorCode = pkt.Data[0]
		return ksx4506.OKErrorReceived, false
	}
	if len(pkt.Data) < minLen {
		return ksx4506.ErrorMalformedPacket, false
	}
	return ksx4506.OKStateUpdated, true
}

// learnVariant proposes the variant from the optional version and vendor
// bytes appended after a standard characteristic payload of n bytes.
func learnVariant(pkt ksx4506.Packet, n int, out *Output) {
	v := ProtocolVariant{}
	if len(pkt.Data) > n {
		v.Version = pkt.Data[n]
	}
	if len(pkt.Data) > n+1 {
		v.Vendor = pkt.Data[n+1]
	}
	out.Variant = &v
	out.Put(property.Int(PropVersion, int(v.Version)))
	out.Put(property.Int(PropVendor, int(v.Vendor)))
}

// variantBytes returns the trailing characteristic bytes a simulated device
// advertises.
func variantBytes(v ProtocolVariant) []byte {
	if v.Version == 0 && v.Vendor == 0 {
		return nil
	}
	return []byte{v.Version, v.Vendor}
}

// clampInt bounds v to [lo, hi].
func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
