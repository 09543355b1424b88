package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// deviceArg is the id argument shared by every per-device tool.
func deviceArg() mcp.ToolOption {
	return mcp.WithString("id",
		mcp.Required(),
		mcp.Description(`Bus address such as "0E:11", or the device name`),
	)
}

func (s *Server) tools() []server.ServerTool {
	readOnly := mcp.WithReadOnlyHintAnnotation(true)
	return []server.ServerTool{
		{Tool: mcp.NewTool("get_health",
			mcp.WithDescription("Report whether the bus link is up and how many devices are registered and online"),
			readOnly,
		), Handler: s.handleGetHealth},
		{Tool: mcp.NewTool("list_devices",
			mcp.WithDescription("List registered bus devices with their confirmed state"),
			readOnly,
		), Handler: s.handleListDevices},
		{Tool: mcp.NewTool("get_device",
			mcp.WithDescription("Describe one device: address, kind, variant, connection and state schema"),
			readOnly, deviceArg(),
		), Handler: s.handleGetDevice},
		{Tool: mcp.NewTool("get_device_state",
			mcp.WithDescription("Read the confirmed properties of a device, e.g. light.on, light.dim_level, gas.closed"),
			readOnly, deviceArg(),
		), Handler: s.handleGetDeviceState},
		{Tool: mcp.NewTool("rename_device",
			mcp.WithDescription("Give a device a new name"),
			deviceArg(),
			mcp.WithString("new_name", mcp.Required(), mcp.Description("The new name")),
		), Handler: s.handleRenameDevice},
		{Tool: mcp.NewTool("remove_device",
			mcp.WithDescription("Forget a device; it is learned again if it answers during discovery"),
			mcp.WithDestructiveHintAnnotation(true),
			deviceArg(),
			mcp.WithBoolean("force", mcp.Description("Remove even while a control request is in flight")),
		), Handler: s.handleRemoveDevice},
		{Tool: mcp.NewTool("set_device_state",
			mcp.WithDescription("Request new property values; the payload must match the device's state_schema"),
			deviceArg(),
			mcp.WithObject("state",
				mcp.Required(),
				mcp.Description(`Properties to change, e.g. {"light.on": true, "light.dim_level": 3}`),
			),
		), Handler: s.handleSetDeviceState},
		{Tool: mcp.NewTool("turn_on",
			mcp.WithDescription("Switch on a light, ventilator or thermostat, or open a gas valve"),
			deviceArg(),
			mcp.WithNumber("level", mcp.Description("Light dim level or ventilator fan speed")),
		), Handler: s.handleTurnOn},
		{Tool: mcp.NewTool("turn_off",
			mcp.WithDescription("Switch off a light, ventilator or thermostat, or close a gas valve"),
			deviceArg(),
		), Handler: s.handleTurnOff},
		{Tool: mcp.NewTool("start_discovery",
			mcp.WithDescription("Probe unknown bus addresses and register the devices that answer"),
			mcp.WithNumber("duration_seconds", mcp.Description("Seconds to keep probing (default 120, max 600)")),
		), Handler: s.handleStartDiscovery},
		{Tool: mcp.NewTool("stop_discovery",
			mcp.WithDescription("Stop probing for new devices"),
		), Handler: s.handleStopDiscovery},
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTools(s.tools()...)
}
