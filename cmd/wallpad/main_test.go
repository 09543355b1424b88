package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urmzd/wallpad/pkg/capture"
	"github.com/urmzd/wallpad/pkg/conformance"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/ksx4506"
	"github.com/urmzd/wallpad/pkg/transport"
)

type nopCloser struct{ *bytes.Buffer }

func (nopCloser) Close() error { return nil }

func TestBuildRequest(t *testing.T) {
	pkt, err := buildRequest([]string{"0E:11", "41", "01"}, false)
	require.NoError(t, err)
	assert.Equal(t, "0E:11", pkt.Address.String())
	assert.Equal(t, ksx4506.CmdSingleControlReq, pkt.Command)
	assert.Equal(t, []byte{0x01}, pkt.Data)

	_, err = buildRequest([]string{"F7 0E 11 01 00 E9 00"}, true)
	require.Error(t, err, "spaces are not hex")
	raw, err := buildRequest([]string{"F7", "0E", "11", "01", "00", "E9", "00"}, true)
	require.NoError(t, err)
	assert.Equal(t, ksx4506.CmdStatusReq, raw.Command)

	for _, args := range [][]string{
		{"0E:11"},
		{"0E11", "01"},
		{"0E:11", "0101"},
		{"0E:11", "01", "zz"},
	} {
		_, err := buildRequest(args, false)
		assert.Error(t, err, strings.Join(args, " "))
	}
}

func TestDecodeCapture(t *testing.T) {
	buf := nopCloser{&bytes.Buffer{}}
	rec, err := capture.NewRecorder(buf, "/dev/ttyUSB0")
	require.NoError(t, err)

	light := ksx4506.NewPacket(ksx4506.NewAddress(ksx4506.ClassLight, 1, 1), ksx4506.CmdStatusReq)
	gas := ksx4506.NewPacket(ksx4506.NewAddress(ksx4506.ClassGasValve, 0, 1), ksx4506.CmdStatusReq)
	rec.Tap(true, light.MustEncode())
	rec.Tap(true, gas.MustEncode())
	bad := light.MustEncode()
	bad[len(bad)-1] ^= 0xFF
	require.NoError(t, rec.Write(capture.Record{T: time.Now(), Dir: capture.DirRX, Frame: bad}))
	require.NoError(t, rec.Close())

	r, err := capture.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	lines, err := decodeCapture(r, nil)
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, "0E:11", lines[0].Address)
	assert.Equal(t, "tx", lines[0].Dir)
	assert.Equal(t, "rx", lines[2].Dir)
	assert.NotEmpty(t, lines[2].Error)

	r, err = capture.NewReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	group := ksx4506.NewAddress(ksx4506.ClassGasValve, 0, 0x0F)
	lines, err = decodeCapture(r, &group)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "12:01", lines[0].Address)
}

func TestFormatter(t *testing.T) {
	var out bytes.Buffer
	f := NewFormatter("table")
	f.SetWriter(&out)
	f.PrintTable([]string{"A", "LONG"}, [][]string{{"xyz", "1"}})
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "A   LONG ", lines[0])
	assert.Equal(t, "--- ---- ", lines[1])
	assert.Equal(t, "xyz 1    ", lines[2])

	out.Reset()
	f = NewFormatter("JSON")
	f.SetWriter(&out)
	assert.Equal(t, FormatJSON, f.format)
	f.PrintFrame(FrameLine{Address: "0E:11", Command: "status_req"})
	var got FrameLine
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "0E:11", got.Address)

	assert.Equal(t, FormatTable, NewFormatter("csv").format)
}

func TestRunChecks_AgainstSimulatedLight(t *testing.T) {
	a, b := transport.NewPipePair()
	slaveCfg := device.DefaultNetworkConfig()
	slaveCfg.Mode = device.ModeSlave
	slaveCfg.PollInterval = 0
	slave := device.NewNetwork(slaveCfg, transport.NewStreamProcessor(transport.DefaultConfig()), nil)
	addr := ksx4506.NewAddress(ksx4506.ClassLight, 1, 1)
	_, err := slave.AddDevice(addr, "")
	require.NoError(t, err)
	require.NoError(t, slave.Start(b))
	t.Cleanup(slave.Close)

	master, devs, err := checkNetwork(transport.NewStreamProcessor(transport.DefaultConfig()), []ksx4506.Address{addr})
	require.NoError(t, err)
	require.NoError(t, master.Start(a))
	t.Cleanup(master.Close)

	results := runChecks(context.Background(), devs, 3*time.Second)
	require.Len(t, results, 3)
	passed, failed, _ := conformance.Summary(results)
	assert.Equal(t, 3, passed)
	assert.Zero(t, failed)

	rows := checkRows(results)
	assert.Equal(t, "passed", rows[0].Status)
	assert.Empty(t, rows[0].Error)
}
