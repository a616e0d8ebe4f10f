package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the debug tool API
func (s *Server) registerTools() {
	// Session Management
	s.registerDebugStart()
	s.registerDebugStop()
	s.registerDebugStatus()

	// Control
	s.registerDebugRegisterLocation()
	s.registerDebugSetBreakpoint()
	s.registerDebugRemoveBreakpoint()
	s.registerDebugResume()
	s.registerDebugStep()
	s.registerDebugSetThread()

	// Inspection
	s.registerDebugEvaluate()
}

// Session Management Tools

func (s *Server) registerDebugStart() {
	tool := mcp.NewTool("debug_start",
		mcp.WithDescription("Install an app package on the connected device, launch it debug-suspended and attach a debug session. Succeeds even when no device debug port is reachable; the session is then detached and commands are acknowledged without device effect. Replaces any previous session."),
		mcp.WithString("packagePath",
			mcp.Required(),
			mcp.Description("Path to the app package file to install and debug"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStart)
}

func (s *Server) registerDebugStop() {
	tool := mcp.NewTool("debug_stop",
		mcp.WithDescription("Stop the active debug session and release its connection"),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStop)
}

func (s *Server) registerDebugStatus() {
	tool := mcp.NewTool("debug_status",
		mcp.WithDescription("Describe the active debug session: process, pid, attachment and breakpoint count"),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStatus)
}

// Control Tools

func (s *Server) registerDebugRegisterLocation() {
	tool := mcp.NewTool("debug_register_location",
		mcp.WithDescription("Cache the device location (class, method, code index) for a source coordinate so debug_set_breakpoint can arm it on the device. Reference ids are 64-bit and passed as decimal or 0x-prefixed strings."),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Source file name the location belongs to"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("1-based source line"),
		),
		mcp.WithString("classId",
			mcp.Required(),
			mcp.Description("Reference type id of the declaring class"),
		),
		mcp.WithString("methodId",
			mcp.Required(),
			mcp.Description("Method id within the class"),
		),
		mcp.WithString("codeIndex",
			mcp.Description("Code index within the method (default 0)"),
		),
		mcp.WithNumber("typeTag",
			mcp.Description("Reference type tag: 1=class, 2=interface, 3=array (default 1)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugRegisterLocation)
}

func (s *Server) registerDebugSetBreakpoint() {
	tool := mcp.NewTool("debug_set_breakpoint",
		mcp.WithDescription("Set a breakpoint at a source location. Setting the same location twice is a no-op. The breakpoint is recorded even if the device rejects it."),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Source file name, e.g. MainActivity.java"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("1-based source line"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSetBreakpoint)
}

func (s *Server) registerDebugRemoveBreakpoint() {
	tool := mcp.NewTool("debug_remove_breakpoint",
		mcp.WithDescription("Remove a previously set breakpoint. Removing an unknown location returns removed=false."),
		mcp.WithString("file",
			mcp.Required(),
			mcp.Description("Source file name the breakpoint was set in"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("1-based source line"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugRemoveBreakpoint)
}

func (s *Server) registerDebugResume() {
	tool := mcp.NewTool("debug_resume",
		mcp.WithDescription("Resume the suspended debuggee"),
	)
	s.mcpServer.AddTool(tool, s.handleDebugResume)
}

func (s *Server) registerDebugStep() {
	tool := mcp.NewTool("debug_step",
		mcp.WithDescription("Single-step the current thread and resume. type selects the step depth."),
		mcp.WithString("type",
			mcp.Required(),
			mcp.Description("Step type: 'over', 'into' or 'out'"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugStep)
}

func (s *Server) registerDebugSetThread() {
	tool := mcp.NewTool("debug_set_thread",
		mcp.WithDescription("Select the suspended thread subsequent step commands apply to"),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("Thread object ID reported by the debuggee"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugSetThread)
}

// Inspection Tools

func (s *Server) registerDebugEvaluate() {
	tool := mcp.NewTool("debug_evaluate",
		mcp.WithDescription("Evaluate an expression in the context of the suspended debuggee"),
		mcp.WithString("expression",
			mcp.Required(),
			mcp.Description("The expression to evaluate"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleDebugEvaluate)
}
