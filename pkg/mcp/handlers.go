package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/urmzd/wallpad/pkg/codec"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/ksx4506"
)

const (
	defaultDiscoverySeconds = 120
	maxDiscoverySeconds     = 600
)

// reply encodes out as the tool result, or err as a tool error prefixed
// with what failed.
func reply(out any, what string, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("%s: %s", what, err)), nil
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %s", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

func (s *Server) handleGetHealth(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out := GetHealthOutput{
		Status:    "unhealthy",
		Bus:       "disconnected",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if s.controller.IsConnected() {
		out.Status, out.Bus = "healthy", "connected"
	}
	out.Devices, out.Online = device.Census(ctx, s.controller)
	return reply(out, "", nil)
}

// describe pairs a device with its confirmed state, when readable.
func (s *Server) describe(ctx context.Context, d *device.Device) DeviceInfo {
	state, err := s.controller.GetDeviceState(ctx, d.ID)
	if err != nil {
		state = nil
	}
	return deviceInfo(d, state)
}

func (s *Server) handleListDevices(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	devices, err := s.controller.ListDevices(ctx)
	if err != nil {
		return reply(nil, "failed to list devices", err)
	}
	out := ListDevicesOutput{Devices: make([]DeviceInfo, 0, len(devices))}
	for i := range devices {
		out.Devices = append(out.Devices, s.describe(ctx, &devices[i]))
	}
	out.Count = len(out.Devices)
	return reply(out, "", nil)
}

func (s *Server) handleGetDevice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return reply(nil, "invalid arguments", err)
	}
	d, err := s.controller.GetDevice(ctx, id)
	if err != nil {
		return reply(nil, "device not found", err)
	}
	return reply(GetDeviceOutput{Device: s.describe(ctx, d)}, "", nil)
}

func (s *Server) handleRenameDevice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return reply(nil, "invalid arguments", err)
	}
	name, err := req.RequireString("new_name")
	if err != nil {
		return reply(nil, "invalid arguments", err)
	}
	err = s.controller.RenameDevice(ctx, id, name)
	return reply(ActionOutput{Success: true, Message: fmt.Sprintf("%s is now %q", id, name)}, "failed to rename device", err)
}

func (s *Server) handleRemoveDevice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return reply(nil, "invalid arguments", err)
	}
	err = s.controller.RemoveDevice(ctx, id, req.GetBool("force", false))
	return reply(ActionOutput{Success: true, Message: fmt.Sprintf("%s removed", id)}, "failed to remove device", err)
}

func (s *Server) handleGetDeviceState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return reply(nil, "invalid arguments", err)
	}
	state, err := s.controller.GetDeviceState(ctx, id)
	return reply(StateOutput{DeviceID: id, State: state}, "failed to read device state", err)
}

// stateArgs takes the payload from a nested "state" object, or from the
// remaining flat arguments when clients inline it.
func stateArgs(req mcp.CallToolRequest) map[string]any {
	args := req.GetArguments()
	if nested, ok := args["state"].(map[string]any); ok {
		return nested
	}
	flat := make(map[string]any, len(args))
	for k, v := range args {
		if k != "id" && k != "state" {
			flat[k] = v
		}
	}
	return flat
}

func (s *Server) handleSetDeviceState(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return reply(nil, "invalid arguments", err)
	}
	d, err := s.controller.GetDevice(ctx, id)
	if err != nil {
		return reply(nil, "device not found", err)
	}
	state, err := s.apply(ctx, d, stateArgs(req))
	return reply(StateOutput{DeviceID: d.ID, State: state}, "failed to set device state", err)
}

// apply validates payload against the device schema and requests it.
func (s *Server) apply(ctx context.Context, d *device.Device, payload map[string]any) (device.DeviceState, error) {
	if s.validator != nil {
		if err := s.validator.Validate(d.StateSchema, payload); err != nil {
			return nil, err
		}
	}
	return s.controller.SetDeviceState(ctx, d.ID, payload)
}

func (s *Server) handleStartDiscovery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	secs := req.GetInt("duration_seconds", defaultDiscoverySeconds)
	if secs <= 0 {
		secs = defaultDiscoverySeconds
	}
	if secs > maxDiscoverySeconds {
		return reply(nil, "invalid arguments", fmt.Errorf("duration cannot exceed %d seconds", maxDiscoverySeconds))
	}
	err := s.controller.Discover(ctx, true, time.Duration(secs)*time.Second)
	out := ActionOutput{
		Success:         true,
		Message:         fmt.Sprintf("probing for %d seconds", secs),
		DurationSeconds: secs,
	}
	return reply(out, "failed to start discovery", err)
}

func (s *Server) handleStopDiscovery(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	err := s.controller.Discover(ctx, false, 0)
	return reply(ActionOutput{Success: true, Message: "discovery stopped"}, "failed to stop discovery", err)
}

func (s *Server) handleTurnOn(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.power(ctx, req, true)
}

func (s *Server) handleTurnOff(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.power(ctx, req, false)
}

// power switches a device on or off. Turning on may also carry a level,
// the dim level of a light or the fan speed of a ventilator.
func (s *Server) power(ctx context.Context, req mcp.CallToolRequest, on bool) (*mcp.CallToolResult, error) {
	what := "failed to turn off device"
	if on {
		what = "failed to turn on device"
	}
	id, err := req.RequireString("id")
	if err != nil {
		return reply(nil, "invalid arguments", err)
	}
	d, err := s.controller.GetDevice(ctx, id)
	if err != nil {
		return reply(nil, "device not found", err)
	}
	current, err := s.controller.GetDeviceState(ctx, d.ID)
	if err != nil {
		return reply(nil, what, err)
	}
	payload, err := device.PowerState(d.Type, current, on)
	if err != nil {
		return reply(nil, what, err)
	}
	if _, ok := req.GetArguments()["level"]; ok && on {
		key, err := levelProperty(d.Type)
		if err != nil {
			return reply(nil, what, err)
		}
		payload[key] = req.GetInt("level", 0)
	}
	state, err := s.apply(ctx, d, payload)
	return reply(StateOutput{DeviceID: d.ID, State: state}, what, err)
}

func levelProperty(typ string) (string, error) {
	switch typ {
	case ksx4506.ClassLight.String():
		return codec.PropLightDimLevel, nil
	case ksx4506.ClassVentilation.String():
		return codec.PropVentSpeed, nil
	}
	return "", fmt.Errorf("%w: %s has no level", device.ErrUnsupported, typ)
}
