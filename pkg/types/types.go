// Package types defines shared data types used across the debugging engine.
//
// All results are plain value records: operations on devices and debug
// sessions report failure through Success flags and message lists rather
// than errors thrown across component boundaries. Nothing in this package
// holds a reference back to the service that produced it.
package types

// SessionState represents the lifecycle state of a debug session
type SessionState string

const (
	StateDisconnected  SessionState = "disconnected"
	StateHandshaking   SessionState = "handshaking"
	StateReady         SessionState = "ready"
	StateStepping      SessionState = "stepping"
	StateSuspended     SessionState = "suspended"
	StateDetachedReady SessionState = "detachedReady"
)

// InstallResult is the outcome of installing an application package
type InstallResult struct {
	Success bool     `json:"success"`
	Errors  []string `json:"errors,omitempty"`
}

// LaunchResult is the outcome of launching a debuggable process.
// Pid is only meaningful when Success is true.
type LaunchResult struct {
	Success bool     `json:"success"`
	Pid     int      `json:"pid,omitempty"`
	Errors  []string `json:"errors,omitempty"`
}

// StartResult is the outcome of starting a full debugging session.
// Attached reports whether a live wire connection was established;
// a start can succeed in detached mode with Attached == false.
type StartResult struct {
	Success   bool     `json:"success"`
	Attached  bool     `json:"attached"`
	SessionID string   `json:"sessionId,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// EvaluationResult is the outcome of evaluating an expression in the
// debuggee's context.
type EvaluationResult struct {
	Success bool   `json:"success"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message,omitempty"`
}

// SessionInfo describes an active debug session
type SessionInfo struct {
	SessionID   string       `json:"sessionId"`
	ProcessName string       `json:"processName"`
	Pid         int          `json:"pid"`
	Attached    bool         `json:"attached"`
	State       SessionState `json:"state"`
	Breakpoints int          `json:"breakpoints"`
}

// BreakpointRequest identifies a breakpoint coordinate
type BreakpointRequest struct {
	File string `json:"file"`
	Line int    `json:"line"`
}
