package mcp

import (
	"github.com/mark3labs/mcp-go/server"
	"github.com/urmzd/wallpad/pkg/device"
	"github.com/urmzd/wallpad/pkg/device/schema"
)

// Version is reported to MCP clients.
const Version = "1.0.0"

const instructions = `Devices are units on a KS X 4506 home-network bus, addressed as
"class:sub" in hex (0E:11 is light group 1 unit 1). Read state with
get_device_state before changing it; set_device_state only accepts the
properties in the device's state_schema. Control requests are confirmed
asynchronously by the device, so read the state again to see the result.`

// Server exposes a device Controller as MCP tools
type Server struct {
	mcpServer  *server.MCPServer
	controller device.Controller
	validator  *schema.Validator
}

// NewServer creates an MCP server for controller. A nil validator skips
// schema checks.
func NewServer(controller device.Controller, validator *schema.Validator) *Server {
	s := &Server{
		controller: controller,
		validator:  validator,
	}
	s.mcpServer = server.NewMCPServer("wallpad", Version,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
		server.WithRecovery(),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying server, for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves the tools over stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}
