package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/property"
)

func newStore(class ksx4506.DeviceClass, vs ...property.Value) *property.BasicStore {
	s := property.NewBasicStoreFrom(Defaults(class)...)
	s.PutAll(vs...)
	return s
}

func mustContext(t *testing.T, addr ksx4506.Address, opts Options) *Context {
	t.Helper()
	c, err := NewContext(addr, opts, DefaultRegistry())
	require.NoError(t, err)
	return c
}

func parse(t *testing.T, c *Context, pkt ksx4506.Packet, state property.Reader) (*Output, ksx4506.ParseResult) {
	t.Helper()
	out := NewOutput()
	return out, c.Parse(pkt, state, nil, out)
}

// respond builds the slave response to cmd and parses it on a fresh master.
func respond(t *testing.T, addr ksx4506.Address, slaveState property.Reader, cmd ksx4506.Command, master *Context) (*Output, ksx4506.ParseResult) {
	t.Helper()
	slave := mustContext(t, addr, Options{})
	rsp, ok := slave.MakeResponse(ksx4506.NewPacket(addr, cmd), slaveState, nil)
	require.True(t, ok)
	return parse(t, master, rsp, newStore(addr.Class))
}

func assertProposed(t *testing.T, out *Output, want ...property.Value) {
	t.Helper()
	for _, w := range want {
		got, ok := out.Get(w.Name())
		if assert.True(t, ok, w.Name()) {
			assert.True(t, w.Equal(got), "%s: got %v want %v", w.Name(), got.Raw(), w.Raw())
		}
	}
}

func TestStatusRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		addr  ksx4506.Address
		props []property.Value
	}{
		{
			name:  "light",
			addr:  ksx4506.Address{Class: ksx4506.ClassLight, SubID: 0x11},
			props: []property.Value{property.Bool(PropLightOn, true), property.Int(PropLightDimLevel, 5)},
		},
		{
			name: "gas valve",
			addr: ksx4506.Address{Class: ksx4506.ClassGasValve, SubID: 0x01},
			props: []property.Value{
				property.Bool(PropGasClosed, true),
				property.Bool(PropGasOperating, false),
				property.Bool(PropGasAlarm, true),
			},
		},
		{
			name: "ventilation",
			addr: ksx4506.Address{Class: ksx4506.ClassVentilation, SubID: 0x01},
			props: []property.Value{
				property.Bool(PropVentPower, true),
				property.Int(PropVentMode, VentHeatExchange),
				property.Int(PropVentSpeed, 2),
			},
		},
		{
			name: "thermostat",
			addr: ksx4506.Address{Class: ksx4506.ClassThermostat, SubID: 0x11},
			props: []property.Value{
				property.Int(PropThermoFunctions, ThermoHeating|ThermoReservation),
				property.Double(PropThermoSetTemp, 22.5),
				property.Double(PropThermoCurTemp, 21),
			},
		},
		{
			name:  "batch switch",
			addr:  ksx4506.Address{Class: ksx4506.ClassBatchSwitch, SubID: 0x01},
			props: []property.Value{property.Int(PropBatchState, BatchAway|BatchLightsOff)},
		},
		{
			name: "water meter",
			addr: ksx4506.Address{Class: ksx4506.ClassMeter, SubID: MeterWater},
			props: []property.Value{
				property.Bool(PropMeterAlarm, true),
				property.Double(PropMeterCurrent, 1.234),
				property.Double(PropMeterTotal, 1234.567),
			},
		},
		{
			name: "electricity meter",
			addr: ksx4506.Address{Class: ksx4506.ClassMeter, SubID: MeterElectricity},
			props: []property.Value{
				property.Bool(PropMeterAlarm, false),
				property.Double(PropMeterCurrent, 4321),
				property.Double(PropMeterTotal, 98765.4),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			master := mustContext(t, tt.addr, Options{})
			out, res := respond(t, tt.addr, newStore(tt.addr.Class, tt.props...), ksx4506.CmdStatusReq, master)
			require.Equal(t, ksx4506.OKStateUpdated, res)
			assertProposed(t, out, tt.props...)
		})
	}
}

func TestCharacteristicRoundTrip(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassThermostat, SubID: 0x11}
	props := []property.Value{
		property.Int(PropThermoSupported, ThermoHeating|ThermoOuting),
		property.Double(PropThermoMinTemp, 5),
		property.Double(PropThermoMaxTemp, 35.5),
		property.Double(PropThermoResolution, 0.5),
	}
	master := mustContext(t, addr, Options{})
	out, res := respond(t, addr, newStore(addr.Class, props...), ksx4506.CmdCharacteristicReq, master)
	require.Equal(t, ksx4506.OKPeerDetected, res)
	assertProposed(t, out, props...)
	assert.True(t, master.Variant().Learned())
	assert.Equal(t, uint8(0), master.Variant().Vendor)
}

func TestControlRequestRoundTrip(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassVentilation, SubID: 0x01}
	caps := []property.Value{
		property.Int(PropVentSupportedModes, VentAuto|VentBypass),
		property.Int(PropVentMaxSpeed, 3),
	}
	requested := []property.Value{
		property.Bool(PropVentPower, true),
		property.Int(PropVentMode, VentBypass),
		property.Int(PropVentSpeed, 3),
	}

	master := mustContext(t, addr, Options{})
	data, res := master.MakeControlReq(newStore(addr.Class, append(caps, requested...)...))
	require.False(t, res.Failed())

	slave := mustContext(t, addr, Options{})
	out, res := parse(t, slave, ksx4506.NewPacket(addr, ksx4506.CmdSingleControlReq, data...), newStore(addr.Class, caps...))
	require.Equal(t, ksx4506.OKStateUpdated, res)
	assertProposed(t, out, requested...)
}

func TestMeterBCDScaling(t *testing.T) {
	status := []byte{0x00, 0x00, 0x12, 0x34, 0x56, 0x00, 0x00, 0x00, 0x00}

	elec := ksx4506.Address{Class: ksx4506.ClassMeter, SubID: MeterElectricity}
	out, res := parse(t, mustContext(t, elec, Options{}), ksx4506.NewPacket(elec, ksx4506.CmdStatusRsp, status...), nil)
	require.Equal(t, ksx4506.OKStateUpdated, res)
	v, _ := out.Get(PropMeterCurrent)
	assert.Equal(t, 123456.0, v.AsDouble())

	gas := ksx4506.Address{Class: ksx4506.ClassMeter, SubID: MeterGas}
	out, res = parse(t, mustContext(t, gas, Options{}), ksx4506.NewPacket(gas, ksx4506.CmdStatusRsp, status...), nil)
	require.Equal(t, ksx4506.OKStateUpdated, res)
	v, _ = out.Get(PropMeterCurrent)
	assert.Equal(t, 123.456, v.AsDouble())
}

func TestMeterTotalIgnoresReservedNibble(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassMeter, SubID: MeterElectricity}
	status := []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x91, 0x23, 0x45, 0x67}
	out, res := parse(t, mustContext(t, addr, Options{}), ksx4506.NewPacket(addr, ksx4506.CmdStatusRsp, status...), nil)
	require.Equal(t, ksx4506.OKStateUpdated, res)
	v, _ := out.Get(PropMeterTotal)
	assert.Equal(t, 123456.7, v.AsDouble())
}

func TestMalformedFramesProposeNothing(t *testing.T) {
	tests := []struct {
		name string
		addr ksx4506.Address
		cmd  ksx4506.Command
		data []byte
	}{
		{"empty response", ksx4506.Address{Class: ksx4506.ClassLight, SubID: 0x11}, ksx4506.CmdStatusRsp, nil},
		{"short light status", ksx4506.Address{Class: ksx4506.ClassLight, SubID: 0x11}, ksx4506.CmdStatusRsp, []byte{0x00}},
		{"long gas status", ksx4506.Address{Class: ksx4506.ClassGasValve, SubID: 0x01}, ksx4506.CmdStatusRsp, []byte{0x00, 0x01, 0x02}},
		{"bad meter digit", ksx4506.Address{Class: ksx4506.ClassMeter, SubID: MeterWater}, ksx4506.CmdStatusRsp, []byte{0x00, 0x00, 0x1A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}},
		{"bad meter total digit", ksx4506.Address{Class: ksx4506.ClassMeter, SubID: MeterWater}, ksx4506.CmdStatusRsp, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0C}},
		{"short thermostat", ksx4506.Address{Class: ksx4506.ClassThermostat, SubID: 0x11}, ksx4506.CmdStatusRsp, []byte{0x00, 0x01, 0x16}},
		{"status request with data", ksx4506.Address{Class: ksx4506.ClassLight, SubID: 0x11}, ksx4506.CmdStatusReq, []byte{0x01}},
		{"gas control garbage", ksx4506.Address{Class: ksx4506.ClassGasValve, SubID: 0x01}, ksx4506.CmdSingleControlReq, []byte{0x07}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newStore(tt.addr.Class)
			before := store.All()
			version := store.Version()

			out, res := parse(t, mustContext(t, tt.addr, Options{}), ksx4506.NewPacket(tt.addr, tt.cmd, tt.data...), store)
			assert.Equal(t, ksx4506.ErrorMalformedPacket, res)
			assert.True(t, out.Empty())
			assert.Equal(t, 0, out.Apply(store, nil))
			assert.Equal(t, before, store.All())
			assert.Equal(t, version, store.Version())
		})
	}
}

func TestErrorByteIsReported(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassThermostat, SubID: 0x11}
	out, res := parse(t, mustContext(t, addr, Options{}), ksx4506.NewPacket(addr, ksx4506.CmdStatusRsp, 0x05), nil)
	assert.Equal(t, ksx4506.OKErrorReceived, res)
	assert.Equal(t, byte(0x05), out.ErrorCode)
	assert.Empty(t, out.Values())

	rsp, ok := ErrorResponse(ksx4506.NewPacket(addr, ksx4506.CmdSingleControlReq, 0x01, 0x16), 0x02)
	require.True(t, ok)
	assert.Equal(t, ksx4506.CmdSingleControlRsp, rsp.Command)
	assert.Equal(t, []byte{0x02}, rsp.Data)
}

func TestGroupLightStatusDispatch(t *testing.T) {
	group := ksx4506.Address{Class: ksx4506.ClassLight, SubID: 0x1F}
	pkt := ksx4506.NewPacket(group, ksx4506.CmdStatusRsp, 0x00, 0x01, 0x00, 0x31)

	out, res := parse(t, mustContext(t, group, Options{}), pkt, nil)
	require.Equal(t, ksx4506.OKStateUpdated, res)
	assert.Equal(t, []uint8{1, 2, 3}, out.ChildIndexes())
	assertProposed(t, out, property.Int(PropLightCount, 3), property.Bool(PropLightOn, true))
	assertProposed(t, out.Child(2), property.Bool(PropLightOn, false))
	assertProposed(t, out.Child(3), property.Bool(PropLightOn, true), property.Int(PropLightDimLevel, 3))

	children := map[uint8]*property.BasicStore{}
	n := out.Apply(nil, func(i uint8) property.Store {
		s := newStore(ksx4506.ClassLight)
		children[i] = s
		return s
	})
	assert.Greater(t, n, 0)
	v, _ := children[1].Get(PropLightOn)
	assert.True(t, v.AsBool())
}

func TestGroupLightStatusBuild(t *testing.T) {
	group := ksx4506.Address{Class: ksx4506.ClassLight, SubID: 0x1F}
	members := map[uint8]property.Reader{
		1: newStore(ksx4506.ClassLight, property.Bool(PropLightOn, true)),
		2: newStore(ksx4506.ClassLight, property.Int(PropLightDimLevel, 2)),
	}
	child := func(i uint8) (property.Reader, bool) {
		r, ok := members[i]
		return r, ok
	}
	c := mustContext(t, group, Options{})
	rsp, ok := c.MakeResponse(ksx4506.NewPacket(group, ksx4506.CmdStatusReq), newStore(ksx4506.ClassLight, property.Int(PropLightCount, 3)), child)
	require.True(t, ok)
	assert.Equal(t, []byte{0x00, 0x01, 0x20, 0x00}, rsp.Data)
}

func TestPreconditionsDeclineOrClamp(t *testing.T) {
	light := ksx4506.Address{Class: ksx4506.ClassLight, SubID: 0x11}
	state := newStore(ksx4506.ClassLight,
		property.Int(PropLightDimMax, 4),
		property.Bool(PropLightOn, true),
		property.Int(PropLightDimLevel, 9),
	)

	_, res := mustContext(t, light, Options{}).MakeControlReq(state)
	assert.True(t, res.Failed())

	data, res := mustContext(t, light, Options{LenientMasks: true}).MakeControlReq(state)
	require.False(t, res.Failed())
	assert.Equal(t, []byte{0x41}, data)

	batch := ksx4506.Address{Class: ksx4506.ClassBatchSwitch, SubID: 0x01}
	bstate := newStore(ksx4506.ClassBatchSwitch,
		property.Int(PropBatchSupported, BatchGasClose|BatchAway),
		property.Int(PropBatchState, BatchAway|BatchPowerCut),
	)
	_, res = mustContext(t, batch, Options{}).MakeControlReq(bstate)
	assert.True(t, res.Failed())
	data, res = mustContext(t, batch, Options{LenientMasks: true}).MakeControlReq(bstate)
	require.False(t, res.Failed())
	assert.Equal(t, []byte{BatchAway}, data)

	thermo := ksx4506.Address{Class: ksx4506.ClassThermostat, SubID: 0x11}
	tstate := newStore(ksx4506.ClassThermostat,
		property.Int(PropThermoSupported, ThermoHeating),
		property.Int(PropThermoFunctions, ThermoHeating),
		property.Double(PropThermoSetTemp, 45),
	)
	_, res = mustContext(t, thermo, Options{}).MakeControlReq(tstate)
	assert.True(t, res.Failed())
	data, res = mustContext(t, thermo, Options{LenientMasks: true}).MakeControlReq(tstate)
	require.False(t, res.Failed())
	assert.Equal(t, []byte{ThermoHeating, 40}, data)

	gas := ksx4506.Address{Class: ksx4506.ClassGasValve, SubID: 0x01}
	_, res = mustContext(t, gas, Options{}).MakeControlReq(newStore(ksx4506.ClassGasValve))
	assert.True(t, res.Failed())
	data, res = mustContext(t, gas, Options{}).MakeControlReq(newStore(ksx4506.ClassGasValve, property.Bool(PropGasClosed, true)))
	require.False(t, res.Failed())
	assert.Equal(t, []byte{0x01}, data)
}

func TestSlaveDeclinesOutOfMaskRequest(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassVentilation, SubID: 0x01}
	state := newStore(addr.Class, property.Int(PropVentSupportedModes, VentAuto), property.Int(PropVentMaxSpeed, 2))
	pkt := ksx4506.NewPacket(addr, ksx4506.CmdSingleControlReq, 0x01, VentSleep, 0x01)

	out, res := parse(t, mustContext(t, addr, Options{}), pkt, state)
	assert.Equal(t, ksx4506.ErrorUnknown, res)
	assert.True(t, out.Empty())
}

func TestVariantLearningIsTerminal(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassMeter, SubID: MeterWater}
	c := mustContext(t, addr, Options{})
	assert.False(t, c.Variant().Learned())

	_, res := parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdCharacteristicRsp, 0x00, MeterWater, 0x02, VendorExtendedMeter), nil)
	require.Equal(t, ksx4506.OKPeerDetected, res)
	v := c.Variant()
	assert.True(t, v.Learned())
	assert.Equal(t, uint8(2), v.Version)
	assert.Equal(t, uint8(VendorExtendedMeter), v.Vendor)
	assert.True(t, v.ExtendedMeterDigits)

	_, res = parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdCharacteristicRsp, 0x00, MeterWater, 0x01, 0x00), nil)
	require.Equal(t, ksx4506.OKPeerDetected, res)
	assert.Equal(t, v, c.Variant())
	assert.False(t, c.Preset(9, 9))
}

func TestFailedCharacteristicDoesNotLearn(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassLight, SubID: 0x11}
	c := mustContext(t, addr, Options{})
	_, res := parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdCharacteristicRsp, 0x01), nil)
	assert.Equal(t, ksx4506.OKErrorReceived, res)
	_, res = parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdCharacteristicRsp, 0x00, 0x01), nil)
	assert.Equal(t, ksx4506.ErrorMalformedPacket, res)
	assert.False(t, c.Variant().Learned())
}

func TestExtendedMeterDigits(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassMeter, SubID: MeterWater}
	status := ksx4506.NewPacket(addr, ksx4506.CmdStatusRsp, 0x00, 0x00, 0x00, 0x00, 0x00, 0x91, 0x23, 0x45, 0x67)

	std := mustContext(t, addr, Options{})
	out, _ := parse(t, std, status, nil)
	v, _ := out.Get(PropMeterTotal)
	assert.Equal(t, 1234.567, v.AsDouble())

	ext := mustContext(t, addr, Options{})
	require.True(t, ext.Preset(2, VendorExtendedMeter))
	out, _ = parse(t, ext, status, nil)
	v, _ = out.Get(PropMeterTotal)
	assert.Equal(t, 91234.567, v.AsDouble())

	old := mustContext(t, addr, Options{})
	require.True(t, old.Preset(1, VendorExtendedMeter))
	out, _ = parse(t, old, status, nil)
	v, _ = out.Get(PropMeterTotal)
	assert.Equal(t, 1234.567, v.AsDouble())
}

func TestInvertedValve(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassGasValve, SubID: 0x01}
	c := mustContext(t, addr, Options{})
	require.True(t, c.Preset(1, VendorInvertedValve))

	out, res := parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdStatusRsp, 0x00, 0x01), nil)
	require.Equal(t, ksx4506.OKStateUpdated, res)
	assertProposed(t, out, property.Bool(PropGasClosed, false))

	data, res := c.MakeControlReq(newStore(addr.Class, property.Bool(PropGasClosed, true)))
	require.False(t, res.Failed())
	assert.Equal(t, []byte{0x00}, data)

	slave := mustContext(t, addr, Options{})
	require.True(t, slave.Preset(1, VendorInvertedValve))
	out, res = parse(t, slave, ksx4506.NewPacket(addr, ksx4506.CmdSingleControlReq, data...), nil)
	require.Equal(t, ksx4506.OKStateUpdated, res)
	assertProposed(t, out, property.Bool(PropGasClosed, true))
}

func TestOrdinalVentModes(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassVentilation, SubID: 0x01}
	c := mustContext(t, addr, Options{})
	require.True(t, c.Preset(2, VendorOrdinalVent))
	require.True(t, c.Variant().OrdinalModeTable)

	out, res := parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdStatusRsp, 0x00, 0x01, 0x03, 0x02), nil)
	require.Equal(t, ksx4506.OKStateUpdated, res)
	assertProposed(t, out, property.Int(PropVentMode, VentSleep))

	_, res = parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdStatusRsp, 0x00, 0x01, 0x07, 0x02), nil)
	assert.Equal(t, ksx4506.ErrorMalformedPacket, res)

	state := newStore(addr.Class,
		property.Int(PropVentSupportedModes, VentAuto|VentPurify),
		property.Int(PropVentMaxSpeed, 3),
		property.Bool(PropVentPower, true),
		property.Int(PropVentMode, VentPurify),
		property.Int(PropVentSpeed, 1),
	)
	data, res := c.MakeControlReq(state)
	require.False(t, res.Failed())
	assert.Equal(t, []byte{0x01, 0x04, 0x01}, data)

	state.Put(property.Int(PropVentMode, VentAuto|VentPurify))
	_, res = c.MakeControlReq(state)
	assert.True(t, res.Failed())
}

func TestInterceptorsRunAfterBase(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassBatchSwitch, SubID: 0x01}
	c := mustContext(t, addr, Options{})

	var order []string
	c.UseParse(StepStatusRsp, func(next ParseFunc) ParseFunc {
		return func(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
			res := next(s, pkt, out)
			order = append(order, "inner")
			if res.Failed() {
				return res
			}
			out.Put(property.Int(PropBatchState, 0x7F))
			return res
		}
	}, func(next ParseFunc) ParseFunc {
		return func(s *Scope, pkt ksx4506.Packet, out *Output) ksx4506.ParseResult {
			res := next(s, pkt, out)
			order = append(order, "outer")
			return res
		}
	})

	out, res := parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdStatusRsp, 0x00, 0x01), nil)
	require.Equal(t, ksx4506.OKStateUpdated, res)
	assert.Equal(t, []string{"inner", "outer"}, order)
	assertProposed(t, out, property.Int(PropBatchState, 0x7F))
}

func TestSlaveRequestsAndResponses(t *testing.T) {
	addr := ksx4506.Address{Class: ksx4506.ClassGasValve, SubID: 0x01}
	c := mustContext(t, addr, Options{})
	state := newStore(addr.Class, property.Bool(PropGasAlarm, true))

	_, res := parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdStatusReq), state)
	assert.Equal(t, ksx4506.OKPeerDetected, res)

	out, res := parse(t, c, ksx4506.NewPacket(addr, ksx4506.CmdAlarmOffReq), state)
	require.Equal(t, ksx4506.OKStateUpdated, res)
	out.Apply(state, nil)

	rsp, ok := c.MakeResponse(ksx4506.NewPacket(addr, ksx4506.CmdAlarmOffReq), state, nil)
	require.True(t, ok)
	assert.Equal(t, ksx4506.CmdAlarmOffRsp, rsp.Command)
	assert.Equal(t, []byte{0x00, 0x00}, rsp.Data)

	_, ok = c.MakeResponse(ksx4506.NewPacket(addr, ksx4506.CmdGroupControlReq, 0x01), state, nil)
	assert.False(t, ok)
}

func TestUnsupportedClass(t *testing.T) {
	_, err := NewContext(ksx4506.Address{Class: ksx4506.ClassDoorLock, SubID: 0x01}, Options{}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedClass)
	assert.False(t, Supported(ksx4506.ClassCurtain))
	assert.True(t, Supported(ksx4506.ClassMeter))
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := DefaultRegistry()
	assert.ErrorIs(t, r.Register(&Vendor{Code: VendorOrdinalVent}), ErrDuplicateVendor)
	assert.Len(t, r.Vendors(), 3)
}
