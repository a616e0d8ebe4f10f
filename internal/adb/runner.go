// Package adb drives the external device-control tools: installing an
// application package, launching it in debug-suspended mode, resolving its
// process id, and forwarding a local TCP port to the debuggee's debug port.
//
// Every external command's outcome is captured as a value (stdout, stderr,
// exit code); a non-zero exit never surfaces as a raw error across the
// package boundary.
package adb

import (
	"bytes"
	"context"
	stderrors "errors"
	"os/exec"

	"go.uber.org/zap"
)

// Result captures one external command invocation.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int

	// RunErr is set only when the command could not be run at all
	// (missing binary, cancelled context); never for a non-zero exit.
	RunErr error
}

// Ok reports whether the command ran and exited zero.
func (r Result) Ok() bool {
	return r.RunErr == nil && r.ExitCode == 0
}

// Runner executes external commands. Injectable for tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) Result
}

type execRunner struct {
	log *zap.Logger
}

// NewExecRunner returns a Runner backed by os/exec.
func NewExecRunner(log *zap.Logger) Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &execRunner{log: log}
}

func (e *execRunner) Run(ctx context.Context, name string, args ...string) Result {
	var stdout, stderr bytes.Buffer

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			res.ExitCode = -1
			res.RunErr = err
		}
	}

	e.log.Debug("external command",
		zap.String("name", name),
		zap.Strings("args", args),
		zap.Int("exitCode", res.ExitCode),
		zap.Error(res.RunErr))
	return res
}
