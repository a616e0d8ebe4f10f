// Package debugerr provides the structured failure records that cross
// component boundaries in the debugging engine. External command failures,
// protocol errors and lifecycle misuse are all converted to these values at
// the call site that observed them; nothing in the engine throws across a
// boundary.
package debugerr

import (
	"fmt"
	"strings"
)

// Code categorizes a failure for programmatic handling
type Code string

const (
	CodeInstallFailed   Code = "INSTALL_FAILED"
	CodeLaunchFailed    Code = "LAUNCH_FAILED"
	CodeBridgeFailed    Code = "BRIDGE_FAILED"
	CodeHandshakeFailed Code = "HANDSHAKE_FAILED"
	CodeProtocolError   Code = "PROTOCOL_ERROR"
	CodeNoActiveSession Code = "NO_ACTIVE_SESSION"
)

// Failure is a value record describing what went wrong. Messages are
// human-readable and surfaced to the caller verbatim.
type Failure struct {
	Code     Code     `json:"code"`
	Messages []string `json:"messages"`
	Cause    error    `json:"-"`
}

// Error implements the error interface
func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, strings.Join(f.Messages, "; "))
}

// Unwrap returns the underlying error for error chaining
func (f *Failure) Unwrap() error {
	return f.Cause
}

// Install creates a failure for package installation
func Install(messages ...string) *Failure {
	return &Failure{Code: CodeInstallFailed, Messages: messages}
}

// Launch creates a failure for process launch. Covers package-not-found,
// missing main activity, and unresolvable pid.
func Launch(messages ...string) *Failure {
	return &Failure{Code: CodeLaunchFailed, Messages: messages}
}

// Bridge creates a failure for port forwarding setup
func Bridge(err error) *Failure {
	return &Failure{
		Code:     CodeBridgeFailed,
		Messages: []string{fmt.Sprintf("port forwarding failed: %v", err)},
		Cause:    err,
	}
}

// Handshake creates a failure for a bad or short handshake echo
func Handshake(err error) *Failure {
	return &Failure{
		Code:     CodeHandshakeFailed,
		Messages: []string{fmt.Sprintf("wire handshake failed: %v", err)},
		Cause:    err,
	}
}

// Protocol creates a failure for a non-zero reply error code
func Protocol(errorCode uint16) *Failure {
	return &Failure{
		Code:     CodeProtocolError,
		Messages: []string{fmt.Sprintf("device replied with error code %d", errorCode)},
	}
}

// NoActiveSession creates a failure for commands issued without a session
func NoActiveSession() *Failure {
	return &Failure{
		Code:     CodeNoActiveSession,
		Messages: []string{"no active debug session"},
	}
}
