package jdwp

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"testing"
	"time"
)

// fakeVM speaks just enough of the wire protocol to stand in for a device
// debug stub: it echoes the handshake, then answers every command packet
// with a scripted error code.
type fakeVM struct {
	conn net.Conn

	mu       sync.Mutex
	errCodes map[[2]byte]uint16 // (commandSet, command) -> reply error code
	received map[[2]byte]int
	nextReq  uint32

	done chan struct{}
}

func startFakeVM(t *testing.T, errCodes map[[2]byte]uint16) (net.Conn, *fakeVM) {
	t.Helper()

	client, server := net.Pipe()
	vm := &fakeVM{
		conn:     server,
		errCodes: errCodes,
		received: make(map[[2]byte]int),
		nextReq:  100,
		done:     make(chan struct{}),
	}
	go vm.serve()
	t.Cleanup(func() {
		client.Close()
		server.Close()
		<-vm.done
	})
	return client, vm
}

func (vm *fakeVM) serve() {
	defer close(vm.done)

	echo := make([]byte, len(Handshake))
	if _, err := io.ReadFull(vm.conn, echo); err != nil {
		return
	}
	if _, err := vm.conn.Write(echo); err != nil {
		return
	}

	for {
		header := make([]byte, 4)
		if _, err := io.ReadFull(vm.conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint32(header)
		raw := make([]byte, length)
		copy(raw, header)
		if _, err := io.ReadFull(vm.conn, raw[4:]); err != nil {
			return
		}

		p, err := Decode(raw)
		if err != nil {
			return
		}

		key := [2]byte{p.CommandSet, p.Command}
		vm.mu.Lock()
		vm.received[key]++
		code := vm.errCodes[key]
		reqID := vm.nextReq
		vm.nextReq++
		vm.mu.Unlock()

		var payload []byte
		if key == [2]byte{CmdSetEventRequest, CmdEventSet} && code == 0 {
			payload = binary.BigEndian.AppendUint32(nil, reqID)
		}
		if _, err := vm.conn.Write(EncodeReply(p.ID, code, payload)); err != nil {
			return
		}
	}
}

func (vm *fakeVM) count(commandSet, command byte) int {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.received[[2]byte{commandSet, command}]
}

func testResolver(file string, line int) (Location, bool) {
	return Location{TypeTag: 1, ClassID: 0xC1A55, MethodID: 0xE7, Index: uint64(line)}, true
}

func newAttached(t *testing.T, errCodes map[[2]byte]uint16, opts ...Option) (*WireSession, *fakeVM) {
	t.Helper()
	conn, vm := startFakeVM(t, errCodes)
	opts = append([]Option{WithLocationResolver(testResolver)}, opts...)
	s, err := NewWireSession(conn, "com.example.app", 4711, opts...)
	if err != nil {
		t.Fatalf("NewWireSession failed: %v", err)
	}
	return s, vm
}

// TestHandshake_GoodEcho verifies a correct echo transitions to Ready.
func TestHandshake_GoodEcho(t *testing.T) {
	s, _ := newAttached(t, nil)
	if got := s.State(); got != "ready" {
		t.Errorf("state %q, want ready", got)
	}
	if !s.Attached() {
		t.Error("expected attached session")
	}
}

// TestHandshake_ShortEcho verifies a one-byte-short echo fails construction
// so the caller can fall back to a detached session.
func TestHandshake_ShortEcho(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		buf := make([]byte, len(Handshake))
		if _, err := io.ReadFull(server, buf); err != nil {
			return
		}
		server.Write(buf[:len(Handshake)-1])
		server.Close()
	}()

	if _, err := NewWireSession(client, "com.example.app", 4711); err == nil {
		t.Fatal("expected handshake failure on short echo")
	}
}

func TestHandshake_BadToken(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()

	go func() {
		buf := make([]byte, len(Handshake))
		if _, err := io.ReadFull(server, buf); err != nil {
			return
		}
		server.Write([]byte("JDWP-Handshakx"))
		server.Close()
	}()

	if _, err := NewWireSession(client, "com.example.app", 4711); err == nil {
		t.Fatal("expected handshake failure on bad token")
	}
}

// TestSetBreakpoint_Idempotent verifies that setting the same coordinate
// twice leaves it registered once and issues at most one wire request.
func TestSetBreakpoint_Idempotent(t *testing.T) {
	s, vm := newAttached(t, nil)

	if !s.SetBreakpoint("Main.src", 42) {
		t.Fatal("first SetBreakpoint failed")
	}
	if !s.SetBreakpoint("Main.src", 42) {
		t.Fatal("duplicate SetBreakpoint failed")
	}

	bps := s.Breakpoints()
	if lines := bps["Main.src"]; len(lines) != 1 || lines[0] != 42 {
		t.Errorf("breakpoints = %v, want [42]", lines)
	}
	if n := vm.count(CmdSetEventRequest, CmdEventSet); n != 1 {
		t.Errorf("wire requests = %d, want 1", n)
	}
}

// TestSetBreakpoint_LocalFirst verifies the registry keeps the coordinate
// even when the device rejects the arm request.
func TestSetBreakpoint_LocalFirst(t *testing.T) {
	s, _ := newAttached(t, map[[2]byte]uint16{
		{CmdSetEventRequest, CmdEventSet}: 5,
	})

	if s.SetBreakpoint("Main.src", 42) {
		t.Error("expected false on non-zero reply error code")
	}
	if lines := s.Breakpoints()["Main.src"]; len(lines) != 1 || lines[0] != 42 {
		t.Errorf("breakpoints = %v, want [42] despite protocol failure", lines)
	}
}

// TestRemoveBreakpoint_Symmetric verifies remove-after-set succeeds and a
// second remove of the same coordinate fails without mutating state.
func TestRemoveBreakpoint_Symmetric(t *testing.T) {
	s, vm := newAttached(t, nil)

	s.SetBreakpoint("Main.src", 42)
	if !s.RemoveBreakpoint("Main.src", 42) {
		t.Fatal("RemoveBreakpoint failed")
	}
	if len(s.Breakpoints()) != 0 {
		t.Errorf("breakpoints = %v, want empty", s.Breakpoints())
	}
	if s.RemoveBreakpoint("Main.src", 42) {
		t.Error("expected false removing absent coordinate")
	}
	if n := vm.count(CmdSetEventRequest, CmdEventClear); n != 1 {
		t.Errorf("clear requests = %d, want 1", n)
	}
}

func TestRemoveBreakpoint_Absent(t *testing.T) {
	s, vm := newAttached(t, nil)
	if s.RemoveBreakpoint("Other.src", 7) {
		t.Error("expected false for never-set coordinate")
	}
	if n := vm.count(CmdSetEventRequest, CmdEventClear); n != 0 {
		t.Errorf("clear requests = %d, want 0", n)
	}
}

// TestStep_ResumeOrdering verifies the step contract: a failed arm phase
// never triggers the automatic resume, a successful one triggers it
// exactly once.
func TestStep_ResumeOrdering(t *testing.T) {
	t.Run("arm failure suppresses resume", func(t *testing.T) {
		s, vm := newAttached(t, map[[2]byte]uint16{
			{CmdSetEventRequest, CmdEventSet}: 13,
		})
		if s.StepOver() {
			t.Error("expected step failure")
		}
		if n := vm.count(CmdSetVirtualMachine, CmdResume); n != 0 {
			t.Errorf("resume issued %d times after failed arm, want 0", n)
		}
	})

	t.Run("arm success resumes once", func(t *testing.T) {
		s, vm := newAttached(t, nil)
		if !s.StepOver() {
			t.Error("expected step success")
		}
		if n := vm.count(CmdSetVirtualMachine, CmdResume); n != 1 {
			t.Errorf("resume issued %d times, want 1", n)
		}
	})
}

// TestStep_EntersSteppingState verifies a successful step leaves the
// session in the stepping state after the automatic resume.
func TestStep_EntersSteppingState(t *testing.T) {
	s, _ := newAttached(t, nil)
	if !s.StepOver() {
		t.Fatal("StepOver failed")
	}
	if got := s.State(); got != "stepping" {
		t.Errorf("state %q, want stepping", got)
	}
}

// TestReadTimeout verifies a debuggee that accepts commands but never
// replies fails the command within the read deadline instead of hanging
// the session.
func TestReadTimeout(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		buf := make([]byte, len(Handshake))
		if _, err := io.ReadFull(server, buf); err != nil {
			return
		}
		if _, err := server.Write(buf); err != nil {
			return
		}
		// Swallow commands, never reply.
		io.Copy(io.Discard, server)
	}()

	s, err := NewWireSession(client, "com.example.app", 4711,
		WithReadTimeout(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWireSession failed: %v", err)
	}

	done := make(chan bool, 1)
	go func() { done <- s.Resume() }()

	select {
	case ok := <-done:
		if ok {
			t.Error("expected resume to fail against a silent debuggee")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("resume did not return; reply read is not bounded by the deadline")
	}
}

// deadlineConn records the last write deadline set on the connection.
type deadlineConn struct {
	net.Conn

	mu            sync.Mutex
	writeDeadline time.Time
}

func (c *deadlineConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	c.writeDeadline = t
	c.mu.Unlock()
	return c.Conn.SetWriteDeadline(t)
}

func (c *deadlineConn) lastWriteDeadline() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeDeadline
}

// TestRoundTrip_ClearsWriteDeadline verifies the write deadline is reset
// after each command write, mirroring the read path.
func TestRoundTrip_ClearsWriteDeadline(t *testing.T) {
	conn, _ := startFakeVM(t, nil)
	dc := &deadlineConn{Conn: conn}

	s, err := NewWireSession(dc, "com.example.app", 4711)
	if err != nil {
		t.Fatalf("NewWireSession failed: %v", err)
	}
	if !s.Resume() {
		t.Fatal("Resume failed")
	}
	if d := dc.lastWriteDeadline(); !d.IsZero() {
		t.Errorf("write deadline left set to %v after round trip", d)
	}
}

func TestLocationCache(t *testing.T) {
	c := NewLocationCache()
	if _, ok := c.Resolve("Main.src", 42); ok {
		t.Error("empty cache resolved a coordinate")
	}

	want := Location{TypeTag: 1, ClassID: 2, MethodID: 3, Index: 4}
	c.Add("Main.src", 42, want)
	got, ok := c.Resolve("Main.src", 42)
	if !ok || got != want {
		t.Errorf("Resolve = %+v, %v; want %+v, true", got, ok, want)
	}
	if _, ok := c.Resolve("Main.src", 43); ok {
		t.Error("neighboring line must not resolve")
	}
}

func TestResume(t *testing.T) {
	s, vm := newAttached(t, nil)
	if !s.Resume() {
		t.Error("Resume failed")
	}
	if n := vm.count(CmdSetVirtualMachine, CmdResume); n != 1 {
		t.Errorf("resume requests = %d, want 1", n)
	}
}

func TestResume_ProtocolError(t *testing.T) {
	s, _ := newAttached(t, map[[2]byte]uint16{
		{CmdSetVirtualMachine, CmdResume}: 10,
	})
	if s.Resume() {
		t.Error("expected false on non-zero reply error code")
	}
}

func TestWireSession_Evaluate(t *testing.T) {
	s, _ := newAttached(t, nil)
	res := s.Evaluate("count + 1")
	if !res.Success {
		t.Errorf("expected success, got message %q", res.Message)
	}
	if res.Value != "count + 1" {
		t.Errorf("value %q, want expression echo", res.Value)
	}
}

func TestWireSession_DisconnectIdempotent(t *testing.T) {
	s, _ := newAttached(t, nil)
	s.SetBreakpoint("Main.src", 42)

	s.Disconnect()
	s.Disconnect() // second call must be a no-op

	if s.Attached() {
		t.Error("expected detached after Disconnect")
	}
	if len(s.Breakpoints()) != 0 {
		t.Error("expected breakpoint registry cleared on Disconnect")
	}
	if s.SetBreakpoint("Main.src", 1) {
		t.Error("disposed session must not accept new breakpoints")
	}
}

// TestNullSession_Determinism verifies the detached mode contract: all
// control calls succeed and evaluation returns a placeholder derived from
// the expression.
func TestNullSession_Determinism(t *testing.T) {
	s := NewNullSession("com.example.app", 0)

	if got := s.State(); got != "detachedReady" {
		t.Errorf("state %q, want detachedReady", got)
	}
	if s.Attached() {
		t.Error("detached session must not report attached")
	}

	if !s.SetBreakpoint("Main.src", 42) {
		t.Error("SetBreakpoint should succeed detached")
	}
	for name, op := range map[string]func() bool{
		"resume":   s.Resume,
		"stepOver": s.StepOver,
		"stepInto": s.StepInto,
		"stepOut":  s.StepOut,
	} {
		if !op() {
			t.Errorf("%s should succeed detached", name)
		}
	}

	res := s.Evaluate("user.name")
	if !res.Success {
		t.Error("detached Evaluate should succeed")
	}
	if res.Value != "user.name" {
		t.Errorf("value %q, want deterministic echo of expression", res.Value)
	}
	again := s.Evaluate("user.name")
	if again != res {
		t.Errorf("detached Evaluate not deterministic: %v vs %v", res, again)
	}
}

func TestNullSession_BreakpointBookkeeping(t *testing.T) {
	s := NewNullSession("com.example.app", 0)

	s.SetBreakpoint("A.src", 1)
	s.SetBreakpoint("A.src", 1)
	s.SetBreakpoint("A.src", 2)

	if lines := s.Breakpoints()["A.src"]; len(lines) != 2 {
		t.Errorf("breakpoints = %v, want two entries", lines)
	}
	if !s.RemoveBreakpoint("A.src", 1) {
		t.Error("remove of present coordinate failed")
	}
	if s.RemoveBreakpoint("A.src", 1) {
		t.Error("second remove should fail")
	}
}

func TestParseEvaluation(t *testing.T) {
	tests := []struct {
		raw     string
		success bool
		value   string
	}{
		{"0:ok:42", true, "42"},
		{"1:type error:", false, ""},
		{"0:ok:a:b:c", true, "a:b:c"}, // value may itself contain separators
	}
	for _, tc := range tests {
		t.Run(tc.raw, func(t *testing.T) {
			res := parseEvaluation(tc.raw)
			if res.Success != tc.success || res.Value != tc.value {
				t.Errorf("parseEvaluation(%q) = %+v", tc.raw, res)
			}
		})
	}

	if res := parseEvaluation("garbage"); res.Success {
		t.Error("malformed reply must not report success")
	}
}
