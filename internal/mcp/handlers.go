package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/droidbg/droidbg/internal/debugerr"
	"github.com/droidbg/droidbg/internal/jdwp"
	"github.com/droidbg/droidbg/pkg/types"
)

// Session Management Handlers

func (s *Server) handleDebugStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	packagePath, err := request.RequireString("packagePath")
	if err != nil {
		return mcp.NewToolResultError("packagePath is required: path to the app package file to install and debug"), nil
	}

	handle, res := s.svc.StartDebugging(ctx, packagePath)
	if !res.Success {
		return mcp.NewToolResultError(strings.Join(res.Errors, "; ")), nil
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()

	return jsonResult(res)
}

func (s *Server) handleDebugStop(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()

	if handle == nil {
		return mcp.NewToolResultError(debugerr.NoActiveSession().Error()), nil
	}

	stopped := s.svc.StopDebugging(handle)
	return jsonResult(map[string]interface{}{
		"stopped":   stopped,
		"sessionId": handle.ID,
	})
}

func (s *Server) handleDebugStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	info, err := s.svc.Status()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(info)
}

// Control Handlers

func (s *Server) handleDebugRegisterLocation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError("file is required: source file name the location belongs to"), nil
	}
	line, err := request.RequireFloat("line")
	if err != nil {
		return mcp.NewToolResultError("line is required: 1-based source line"), nil
	}
	classID, err := requireReferenceID(request, "classId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	methodID, err := requireReferenceID(request, "methodId")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var index uint64
	if raw, err := request.RequireString("codeIndex"); err == nil && raw != "" {
		index, err = strconv.ParseUint(raw, 0, 64)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("codeIndex must be a decimal or 0x-prefixed integer: %v", err)), nil
		}
	}
	typeTag := byte(1)
	if tt, err := request.RequireFloat("typeTag"); err == nil {
		typeTag = byte(tt)
	}

	s.svc.RegisterLocation(file, int(line), jdwp.Location{
		TypeTag:  typeTag,
		ClassID:  classID,
		MethodID: methodID,
		Index:    index,
	})
	return jsonResult(map[string]interface{}{
		"registered": true,
		"location":   types.BreakpointRequest{File: file, Line: int(line)},
	})
}

// requireReferenceID parses a 64-bit reference id passed as a string, since
// JSON numbers cannot carry full 64-bit precision.
func requireReferenceID(request mcp.CallToolRequest, key string) (uint64, error) {
	raw, err := request.RequireString(key)
	if err != nil {
		return 0, fmt.Errorf("%s is required: a 64-bit reference id as a decimal or 0x-prefixed string", key)
	}
	id, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a decimal or 0x-prefixed 64-bit id: %v", key, err)
	}
	return id, nil
}

func (s *Server) handleDebugSetBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError("file is required: source file name, e.g. MainActivity.java"), nil
	}
	line, err := request.RequireFloat("line")
	if err != nil {
		return mcp.NewToolResultError("line is required: 1-based source line"), nil
	}

	ok, err := s.svc.SetBreakpoint(file, int(line))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"set":        ok,
		"breakpoint": types.BreakpointRequest{File: file, Line: int(line)},
	})
}

func (s *Server) handleDebugRemoveBreakpoint(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	file, err := request.RequireString("file")
	if err != nil {
		return mcp.NewToolResultError("file is required: source file name the breakpoint was set in"), nil
	}
	line, err := request.RequireFloat("line")
	if err != nil {
		return mcp.NewToolResultError("line is required: 1-based source line"), nil
	}

	removed, err := s.svc.RemoveBreakpoint(file, int(line))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"removed":    removed,
		"breakpoint": types.BreakpointRequest{File: file, Line: int(line)},
	})
}

func (s *Server) handleDebugResume(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ok, err := s.svc.Resume()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"resumed": ok})
}

func (s *Server) handleDebugStep(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stepType, err := request.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError("type is required: 'over', 'into' or 'out'"), nil
	}

	var ok bool
	switch stepType {
	case "over":
		ok, err = s.svc.StepOver()
	case "into":
		ok, err = s.svc.StepInto()
	case "out":
		ok, err = s.svc.StepOut()
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown step type %q: use 'over', 'into' or 'out'", stepType)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"stepped": ok,
		"type":    stepType,
	})
}

func (s *Server) handleDebugSetThread(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	threadID, err := request.RequireFloat("threadId")
	if err != nil {
		return mcp.NewToolResultError("threadId is required: thread object ID reported by the debuggee"), nil
	}

	if err := s.svc.SetCurrentThread(uint64(threadID)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{"threadId": uint64(threadID)})
}

// Inspection Handlers

func (s *Server) handleDebugEvaluate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	expression, err := request.RequireString("expression")
	if err != nil {
		return mcp.NewToolResultError("expression is required: the expression to evaluate"), nil
	}

	res, err := s.svc.Evaluate(expression)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}
