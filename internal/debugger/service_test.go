package debugger

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"

	"github.com/droidbg/droidbg/internal/config"
	"github.com/droidbg/droidbg/internal/debugerr"
	"github.com/droidbg/droidbg/internal/jdwp"
	"github.com/droidbg/droidbg/pkg/types"
)

// fakeDevice scripts each pipeline stage.
type fakeDevice struct {
	install    types.InstallResult
	launch     types.LaunchResult
	forwardErr error

	installs, launches, forwards int
}

func (d *fakeDevice) Install(context.Context, string) types.InstallResult {
	d.installs++
	return d.install
}

func (d *fakeDevice) PackageName(context.Context, string) string {
	return "com.example.app"
}

func (d *fakeDevice) Launch(context.Context, string) types.LaunchResult {
	d.launches++
	return d.launch
}

func (d *fakeDevice) Forward(context.Context, int) (int, error) {
	d.forwards++
	if d.forwardErr != nil {
		return 0, d.forwardErr
	}
	return 8700, nil
}

func healthyDevice() *fakeDevice {
	return &fakeDevice{
		install: types.InstallResult{Success: true},
		launch:  types.LaunchResult{Success: true, Pid: 4711},
	}
}

func newTestService(device *fakeDevice) *Service {
	svc := New(config.DefaultConfig(), device, nil)
	// Connect the dial seam to an in-process echo stub so the handshake
	// succeeds without a real device.
	svc.dial = func(context.Context, string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			buf := make([]byte, len(jdwp.Handshake))
			if _, err := server.Read(buf); err != nil {
				return
			}
			server.Write(buf)
		}()
		return client, nil
	}
	return svc
}

func TestStartDebugging_Attached(t *testing.T) {
	svc := newTestService(healthyDevice())

	handle, res := svc.StartDebugging(context.Background(), "app.apk")
	if !res.Success {
		t.Fatalf("start failed: %v", res.Errors)
	}
	if !res.Attached {
		t.Error("expected attached session")
	}
	if handle == nil || handle.ID == "" || handle.ID != res.SessionID {
		t.Errorf("handle %+v does not match result %+v", handle, res)
	}
	if handle.ProcessName != "com.example.app" || handle.Pid != 4711 {
		t.Errorf("handle = %+v", handle)
	}
}

func TestStartDebugging_InstallFailureShortCircuits(t *testing.T) {
	device := healthyDevice()
	device.install = types.InstallResult{Errors: []string{"install of app.apk failed (exit 1)"}}
	svc := newTestService(device)

	handle, res := svc.StartDebugging(context.Background(), "app.apk")
	if res.Success || handle != nil {
		t.Fatal("expected failed start with no handle")
	}
	if device.launches != 0 || device.forwards != 0 {
		t.Error("later stages must not run after install failure")
	}
	if len(res.Errors) == 0 {
		t.Error("expected error messages")
	}
}

func TestStartDebugging_MainActivityFailure(t *testing.T) {
	device := healthyDevice()
	device.launch = types.LaunchResult{
		Errors: []string{"could not resolve main activity for package com.example.app"},
	}
	svc := newTestService(device)

	handle, res := svc.StartDebugging(context.Background(), "app.apk")
	if res.Success || handle != nil {
		t.Fatal("expected failed start with no handle")
	}
	if !strings.Contains(strings.Join(res.Errors, " "), "main activity") {
		t.Errorf("errors %v should mention the main activity", res.Errors)
	}
	if device.forwards != 0 {
		t.Error("bridge must not run after launch failure")
	}
}

func TestStartDebugging_BridgeFailureDegradesToDetached(t *testing.T) {
	device := healthyDevice()
	device.forwardErr = errors.New("cannot bind listener")
	svc := newTestService(device)

	handle, res := svc.StartDebugging(context.Background(), "app.apk")
	if !res.Success {
		t.Fatalf("bridge failure must not fail the start: %v", res.Errors)
	}
	if res.Attached {
		t.Error("expected detached session")
	}

	// The detached session still answers every command.
	if ok, err := svc.SetBreakpoint("Main.src", 42); err != nil || !ok {
		t.Errorf("SetBreakpoint = %v, %v", ok, err)
	}
	if ok, err := svc.Resume(); err != nil || !ok {
		t.Errorf("Resume = %v, %v", ok, err)
	}
	_ = handle
}

func TestStartDebugging_HandshakeFailureDegradesToDetached(t *testing.T) {
	svc := newTestService(healthyDevice())
	svc.dial = func(context.Context, string) (net.Conn, error) {
		client, server := net.Pipe()
		go func() {
			buf := make([]byte, len(jdwp.Handshake))
			if _, err := server.Read(buf); err != nil {
				return
			}
			server.Write(buf[:len(buf)-1]) // short echo
			server.Close()
		}()
		return client, nil
	}

	_, res := svc.StartDebugging(context.Background(), "app.apk")
	if !res.Success {
		t.Fatalf("handshake failure must not fail the start: %v", res.Errors)
	}
	if res.Attached {
		t.Error("expected detached session after short echo")
	}
}

// wireStub answers every command with a zero error code and counts
// breakpoint-arm requests.
type wireStub struct {
	mu       sync.Mutex
	eventSet int
}

func (w *wireStub) serve(conn net.Conn) {
	buf := make([]byte, len(jdwp.Handshake))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return
	}
	if _, err := conn.Write(buf); err != nil {
		return
	}
	for {
		header := make([]byte, 4)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint32(header)
		raw := make([]byte, length)
		copy(raw, header)
		if _, err := io.ReadFull(conn, raw[4:]); err != nil {
			return
		}
		p, err := jdwp.Decode(raw)
		if err != nil {
			return
		}

		var payload []byte
		if p.CommandSet == jdwp.CmdSetEventRequest && p.Command == jdwp.CmdEventSet {
			w.mu.Lock()
			w.eventSet++
			w.mu.Unlock()
			payload = binary.BigEndian.AppendUint32(nil, 100)
		}
		if _, err := conn.Write(jdwp.EncodeReply(p.ID, 0, payload)); err != nil {
			return
		}
	}
}

func (w *wireStub) armCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.eventSet
}

// TestSetBreakpoint_ArmsRegisteredLocation verifies a location registered
// on the service reaches the attached session's resolver, so setting a
// breakpoint there issues an arm request on the wire. Unregistered
// coordinates stay local.
func TestSetBreakpoint_ArmsRegisteredLocation(t *testing.T) {
	svc := newTestService(healthyDevice())
	stub := &wireStub{}
	svc.dial = func(context.Context, string) (net.Conn, error) {
		client, server := net.Pipe()
		go stub.serve(server)
		return client, nil
	}

	svc.RegisterLocation("Main.src", 42,
		jdwp.Location{TypeTag: 1, ClassID: 0xC1A55, MethodID: 0xE7, Index: 42})

	_, res := svc.StartDebugging(context.Background(), "app.apk")
	if !res.Attached {
		t.Fatalf("expected attached session, errors: %v", res.Errors)
	}

	if ok, err := svc.SetBreakpoint("Main.src", 42); err != nil || !ok {
		t.Fatalf("SetBreakpoint = %v, %v", ok, err)
	}
	if n := stub.armCount(); n != 1 {
		t.Errorf("arm requests = %d, want 1", n)
	}

	if ok, err := svc.SetBreakpoint("Other.src", 7); err != nil || !ok {
		t.Fatalf("SetBreakpoint for unregistered coordinate = %v, %v", ok, err)
	}
	if n := stub.armCount(); n != 1 {
		t.Errorf("arm requests = %d after unregistered coordinate, want 1", n)
	}
}

func TestStopDebugging(t *testing.T) {
	svc := newTestService(healthyDevice())
	handle, _ := svc.StartDebugging(context.Background(), "app.apk")

	if !svc.StopDebugging(handle) {
		t.Error("expected true stopping the live session")
	}
	if svc.StopDebugging(handle) {
		t.Error("expected false stopping a consumed handle")
	}
	if svc.StopDebugging(nil) {
		t.Error("expected false stopping a nil handle")
	}

	if _, err := svc.Resume(); !isNoActiveSession(err) {
		t.Errorf("err = %v, want NO_ACTIVE_SESSION", err)
	}
}

func TestForwarding_NoActiveSession(t *testing.T) {
	svc := newTestService(healthyDevice())

	if _, err := svc.SetBreakpoint("Main.src", 1); !isNoActiveSession(err) {
		t.Errorf("SetBreakpoint err = %v", err)
	}
	if _, err := svc.Evaluate("x"); !isNoActiveSession(err) {
		t.Errorf("Evaluate err = %v", err)
	}
	if _, err := svc.Status(); !isNoActiveSession(err) {
		t.Errorf("Status err = %v", err)
	}
}

func TestStatus(t *testing.T) {
	svc := newTestService(healthyDevice())
	handle, _ := svc.StartDebugging(context.Background(), "app.apk")

	svc.SetBreakpoint("Main.src", 42)
	svc.SetBreakpoint("Main.src", 43)

	info, err := svc.Status()
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if info.SessionID != handle.ID || info.Pid != 4711 {
		t.Errorf("info = %+v", info)
	}
	if info.Breakpoints != 2 {
		t.Errorf("breakpoints = %d, want 2", info.Breakpoints)
	}
}

func TestStartDebugging_ReplacesActiveSession(t *testing.T) {
	svc := newTestService(healthyDevice())
	first, _ := svc.StartDebugging(context.Background(), "app.apk")
	second, _ := svc.StartDebugging(context.Background(), "app.apk")

	if svc.StopDebugging(first) {
		t.Error("replaced handle must no longer stop the service")
	}
	if !svc.StopDebugging(second) {
		t.Error("expected true stopping the current session")
	}
}

func isNoActiveSession(err error) bool {
	var f *debugerr.Failure
	return errors.As(err, &f) && f.Code == debugerr.CodeNoActiveSession
}
