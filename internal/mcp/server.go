// Package mcp exposes the debugging engine over the Model Context
// Protocol, so MCP clients can drive device debug sessions through
// tools:
//
// Session Management:
//   - debug_start: install, launch and attach to an app package
//   - debug_stop: end the active session
//   - debug_status: describe the active session
//
// Control:
//   - debug_register_location: cache a device location for a source coordinate
//   - debug_set_breakpoint / debug_remove_breakpoint
//   - debug_resume
//   - debug_step: step over/into/out
//   - debug_set_thread: select the suspended thread for stepping
//
// Inspection:
//   - debug_evaluate: evaluate an expression in the debuggee
package mcp

import (
	"sync"

	"github.com/mark3labs/mcp-go/server"

	"github.com/droidbg/droidbg/internal/config"
	"github.com/droidbg/droidbg/internal/debugger"
	"github.com/droidbg/droidbg/internal/version"
)

// Server wraps the MCP server around the debugger service.
type Server struct {
	mcpServer *server.MCPServer
	svc       *debugger.Service
	config    *config.Config

	mu     sync.Mutex
	handle *debugger.Handle
}

// NewServer creates a droidbg MCP server.
func NewServer(cfg *config.Config, svc *debugger.Service) *Server {
	mcpServer := server.NewMCPServer(
		"droidbg",
		version.GetVersion(),
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		svc:       svc,
		config:    cfg,
	}

	s.registerTools()

	return s
}

// ServeStdio starts the server using stdio transport
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// Close shuts down the server and any active session.
func (s *Server) Close() {
	s.svc.Close()
}
