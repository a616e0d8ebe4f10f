package jdwp

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/droidbg/droidbg/internal/debugerr"
	"github.com/droidbg/droidbg/pkg/types"
)

// Session is the capability set shared by attached and detached sessions.
// Callers never need to check for a live connection: a detached session
// accepts the same calls and returns deterministic local results.
type Session interface {
	SetBreakpoint(file string, line int) bool
	RemoveBreakpoint(file string, line int) bool
	Resume() bool
	StepOver() bool
	StepInto() bool
	StepOut() bool
	Evaluate(expression string) types.EvaluationResult

	// SetCurrentThread records the thread the debuggee last reported as
	// suspended; step requests are bound to it.
	SetCurrentThread(threadID uint64)

	Breakpoints() map[string][]int
	Attached() bool
	State() types.SessionState
	Disconnect()
}

// Location addresses a code position on the device: a class reference,
// a method reference, and a code index within the method.
type Location struct {
	TypeTag  byte
	ClassID  uint64
	MethodID uint64
	Index    uint64
}

// LocationResolver maps a source coordinate to a device location. Only
// exact lookups already cached by the caller are supported; an unresolved
// coordinate degrades to a breakpoint that is registered locally but not
// yet armed on the device.
type LocationResolver func(file string, line int) (Location, bool)

type coordinate struct {
	file string
	line int
}

// WireSession is an attached debug session. It exclusively owns one socket
// connection, serializes all wire operations under a single mutex (strict
// request/reply, never pipelined), and keeps the local breakpoint set
// authoritative even when a wire request fails.
type WireSession struct {
	processName string
	pid         int

	mu     sync.Mutex
	conn   net.Conn
	nextID uint32
	closed bool
	state  types.SessionState

	breakpoints map[string]map[int]struct{}
	armed       map[coordinate]int32 // coordinate -> device event request id
	resolve     LocationResolver
	thread      uint64

	readTimeout time.Duration
	log         *zap.Logger
}

// Option configures a WireSession.
type Option func(*WireSession)

// WithLogger sets the session logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *WireSession) { s.log = log }
}

// WithReadTimeout bounds every reply read.
func WithReadTimeout(d time.Duration) Option {
	return func(s *WireSession) { s.readTimeout = d }
}

// WithLocationResolver installs the coordinate-to-location lookup used to
// arm breakpoints on the device.
func WithLocationResolver(r LocationResolver) Option {
	return func(s *WireSession) { s.resolve = r }
}

// NewWireSession takes ownership of conn and performs the handshake: the
// fixed 14-byte token is written and the echo read back in full. Any
// mismatch or short read closes the connection and fails construction;
// the caller is expected to fall back to a detached session.
func NewWireSession(conn net.Conn, processName string, pid int, opts ...Option) (*WireSession, error) {
	s := &WireSession{
		processName: processName,
		pid:         pid,
		conn:        conn,
		nextID:      1,
		state:       types.StateHandshaking,
		breakpoints: make(map[string]map[int]struct{}),
		armed:       make(map[coordinate]int32),
		readTimeout: DefaultReadTimeout,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.handshake(); err != nil {
		s.state = types.StateDisconnected
		s.closed = true
		_ = conn.Close()
		return nil, err
	}

	s.state = types.StateReady
	s.log.Info("debug session attached",
		zap.String("process", processName),
		zap.Int("pid", pid))
	return s, nil
}

func (s *WireSession) handshake() error {
	deadline := time.Now().Add(s.readTimeout)
	_ = s.conn.SetDeadline(deadline)
	defer s.conn.SetDeadline(time.Time{})

	if _, err := s.conn.Write([]byte(Handshake)); err != nil {
		return errors.Wrap(err, "writing handshake token")
	}

	echo := make([]byte, len(Handshake))
	if _, err := io.ReadFull(s.conn, echo); err != nil {
		return errors.Wrap(err, "reading handshake echo")
	}
	if string(echo) != Handshake {
		return errors.Errorf("bad handshake echo %q", echo)
	}
	return nil
}

// roundTrip sends one command packet and reads packets until the matching
// reply arrives. Unsolicited command packets from the VM (event
// notifications) are skipped. Callers must hold s.mu.
func (s *WireSession) roundTrip(commandSet, command byte, payload []byte) (Packet, error) {
	id := s.nextID
	s.nextID++

	frame := EncodeCommand(id, commandSet, command, payload)
	_ = s.conn.SetWriteDeadline(time.Now().Add(s.readTimeout))
	if _, err := s.conn.Write(frame); err != nil {
		return Packet{}, errors.Wrap(err, "writing command packet")
	}
	_ = s.conn.SetWriteDeadline(time.Time{})

	for {
		reply, err := s.readPacket()
		if err != nil {
			return Packet{}, err
		}
		if !reply.IsReply() {
			s.log.Debug("skipping unsolicited packet",
				zap.Uint8("commandSet", reply.CommandSet),
				zap.Uint8("command", reply.Command))
			continue
		}
		if reply.ID != id {
			s.log.Debug("skipping stale reply", zap.Uint32("id", reply.ID))
			continue
		}
		return reply, nil
	}
}

func (s *WireSession) readPacket() (Packet, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	defer s.conn.SetReadDeadline(time.Time{})

	header := make([]byte, 4)
	if _, err := io.ReadFull(s.conn, header); err != nil {
		return Packet{}, errors.Wrap(err, "reading packet length")
	}
	length := binary.BigEndian.Uint32(header)
	if length < HeaderSize {
		return Packet{}, errors.Errorf("jdwp: invalid packet length %d", length)
	}

	raw := make([]byte, length)
	copy(raw, header)
	if _, err := io.ReadFull(s.conn, raw[4:]); err != nil {
		return Packet{}, errors.Wrap(err, "reading packet body")
	}
	return Decode(raw)
}

// SetBreakpoint registers the coordinate locally and, when the location can
// be resolved, arms a breakpoint event request on the device. The local set
// is updated before any I/O and survives wire failures. A coordinate that
// is already present issues no wire request.
func (s *WireSession) SetBreakpoint(file string, line int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	set := s.breakpoints[file]
	if set == nil {
		set = make(map[int]struct{})
		s.breakpoints[file] = set
	}
	if _, present := set[line]; present {
		return true
	}
	set[line] = struct{}{}

	loc, ok := s.resolveLocation(file, line)
	if !ok {
		s.log.Debug("breakpoint registered locally, not armed",
			zap.String("file", file), zap.Int("line", line))
		return true
	}

	payload := make([]byte, 0, 32)
	payload = append(payload, EventKindBreakpoint, SuspendAll)
	payload = binary.BigEndian.AppendUint32(payload, 1) // one modifier
	payload = append(payload, ModLocationOnly, loc.TypeTag)
	payload = binary.BigEndian.AppendUint64(payload, loc.ClassID)
	payload = binary.BigEndian.AppendUint64(payload, loc.MethodID)
	payload = binary.BigEndian.AppendUint64(payload, loc.Index)

	reply, err := s.roundTrip(CmdSetEventRequest, CmdEventSet, payload)
	if err != nil {
		s.log.Warn("breakpoint arm failed", zap.Error(err))
		return false
	}
	if reply.ErrorCode != 0 {
		s.log.Warn("breakpoint rejected by device",
			zap.Error(debugerr.Protocol(reply.ErrorCode)))
		return false
	}
	if len(reply.Data) >= 4 {
		s.armed[coordinate{file, line}] = int32(binary.BigEndian.Uint32(reply.Data[:4]))
	}
	return true
}

// RemoveBreakpoint returns false when the coordinate is absent, without
// mutating state. Otherwise it removes locally and clears the device event
// request if one was armed.
func (s *WireSession) RemoveBreakpoint(file string, line int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.breakpoints[file]
	if set == nil {
		return false
	}
	if _, present := set[line]; !present {
		return false
	}
	delete(set, line)
	if len(set) == 0 {
		delete(s.breakpoints, file)
	}

	coord := coordinate{file, line}
	requestID, wasArmed := s.armed[coord]
	delete(s.armed, coord)
	if s.closed || !wasArmed {
		return true
	}

	payload := make([]byte, 0, 5)
	payload = append(payload, EventKindBreakpoint)
	payload = binary.BigEndian.AppendUint32(payload, uint32(requestID))

	reply, err := s.roundTrip(CmdSetEventRequest, CmdEventClear, payload)
	if err != nil {
		s.log.Warn("breakpoint clear failed", zap.Error(err))
		return false
	}
	return reply.ErrorCode == 0
}

func (s *WireSession) resolveLocation(file string, line int) (Location, bool) {
	if s.resolve == nil {
		return Location{}, false
	}
	return s.resolve(file, line)
}

// Resume lets all suspended threads run.
func (s *WireSession) Resume() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resumeLocked()
}

func (s *WireSession) resumeLocked() bool {
	if s.closed {
		return false
	}
	reply, err := s.roundTrip(CmdSetVirtualMachine, CmdResume, nil)
	if err != nil {
		s.log.Warn("resume failed", zap.Error(err))
		return false
	}
	if reply.ErrorCode != 0 {
		s.log.Warn("resume rejected by device",
			zap.Error(debugerr.Protocol(reply.ErrorCode)))
		return false
	}
	s.state = types.StateReady
	return true
}

// StepOver arms a step event at the current line depth and resumes.
func (s *WireSession) StepOver() bool { return s.step(StepOver) }

// StepInto arms a step event descending into calls and resumes.
func (s *WireSession) StepInto() bool { return s.step(StepInto) }

// StepOut arms a step event leaving the current frame and resumes.
func (s *WireSession) StepOut() bool { return s.step(StepOut) }

// step arms the event request; only a zero-error reply triggers the
// automatic resume that actually advances execution. A failed arm phase
// must leave the debuggee suspended.
func (s *WireSession) step(depth int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	thread := s.thread
	if thread == 0 {
		// No stop event seen yet; step the main thread.
		thread = 1
	}

	payload := make([]byte, 0, 24)
	payload = append(payload, EventKindStep, SuspendAll)
	payload = binary.BigEndian.AppendUint32(payload, 1)
	payload = append(payload, ModStep)
	payload = binary.BigEndian.AppendUint64(payload, thread)
	payload = binary.BigEndian.AppendUint32(payload, uint32(StepSizeLine))
	payload = binary.BigEndian.AppendUint32(payload, uint32(depth))

	reply, err := s.roundTrip(CmdSetEventRequest, CmdEventSet, payload)
	if err != nil {
		s.log.Warn("step arm failed", zap.Error(err))
		return false
	}
	if reply.ErrorCode != 0 {
		s.log.Warn("step rejected by device",
			zap.Error(debugerr.Protocol(reply.ErrorCode)))
		return false
	}

	if !s.resumeLocked() {
		return false
	}
	s.state = types.StateStepping
	return true
}

// Evaluate returns a deterministic result for the expression. Real
// frame-context evaluation (thread and frame selection, value decoding) is
// not part of the wire subset this engine speaks; the attached path answers
// locally so control-flow callers keep working.
func (s *WireSession) Evaluate(expression string) types.EvaluationResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return types.EvaluationResult{Success: false, Message: "session disconnected"}
	}
	return parseEvaluation(fmt.Sprintf("0:expression not evaluated on device:%s", expression))
}

// parseEvaluation decodes the three-part status:message:value evaluation
// reply format. A status of "0" means success.
func parseEvaluation(raw string) types.EvaluationResult {
	parts := strings.SplitN(raw, ":", 3)
	if len(parts) != 3 {
		return types.EvaluationResult{Success: false, Message: "malformed evaluation reply: " + raw}
	}
	return types.EvaluationResult{
		Success: parts[0] == "0",
		Message: parts[1],
		Value:   parts[2],
	}
}

// SetCurrentThread records the suspended thread reported by the debuggee.
func (s *WireSession) SetCurrentThread(threadID uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thread = threadID
	if !s.closed {
		s.state = types.StateSuspended
	}
}

// Breakpoints returns a sorted snapshot of the local breakpoint registry.
func (s *WireSession) Breakpoints() map[string][]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotBreakpoints(s.breakpoints)
}

// Attached reports true while the session owns a live connection.
func (s *WireSession) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// State returns the current lifecycle state.
func (s *WireSession) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Disconnect closes the read side, the write side, and the socket in that
// order, swallowing individual close errors so one failure does not block
// the rest. It is idempotent and safe to call from any goroutine; a
// disconnected session cannot be reused.
func (s *WireSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.state = types.StateDisconnected

	if tcp, ok := s.conn.(*net.TCPConn); ok {
		if err := tcp.CloseRead(); err != nil {
			s.log.Debug("closing read side", zap.Error(err))
		}
		if err := tcp.CloseWrite(); err != nil {
			s.log.Debug("closing write side", zap.Error(err))
		}
	}
	if err := s.conn.Close(); err != nil {
		s.log.Debug("closing socket", zap.Error(err))
	}
	s.conn = nil

	s.breakpoints = make(map[string]map[int]struct{})
	s.armed = make(map[coordinate]int32)

	s.log.Info("debug session disconnected",
		zap.String("process", s.processName),
		zap.Int("pid", s.pid))
}

// NullSession is a detached debug session: no socket, same calls. Control
// operations succeed deterministically and breakpoint bookkeeping matches
// the attached session, so callers exercising control flow never need a
// live device.
type NullSession struct {
	processName string
	pid         int

	mu          sync.Mutex
	closed      bool
	breakpoints map[string]map[int]struct{}
}

// NewNullSession creates a detached session for the given process.
func NewNullSession(processName string, pid int) *NullSession {
	return &NullSession{
		processName: processName,
		pid:         pid,
		breakpoints: make(map[string]map[int]struct{}),
	}
}

// SetBreakpoint registers the coordinate locally.
func (s *NullSession) SetBreakpoint(file string, line int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	set := s.breakpoints[file]
	if set == nil {
		set = make(map[int]struct{})
		s.breakpoints[file] = set
	}
	set[line] = struct{}{}
	return true
}

// RemoveBreakpoint mirrors the attached semantics: absent coordinates
// report failure without mutating state.
func (s *NullSession) RemoveBreakpoint(file string, line int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.breakpoints[file]
	if set == nil {
		return false
	}
	if _, present := set[line]; !present {
		return false
	}
	delete(set, line)
	if len(set) == 0 {
		delete(s.breakpoints, file)
	}
	return true
}

func (s *NullSession) Resume() bool   { return s.ok() }
func (s *NullSession) StepOver() bool { return s.ok() }
func (s *NullSession) StepInto() bool { return s.ok() }
func (s *NullSession) StepOut() bool  { return s.ok() }

func (s *NullSession) ok() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

// Evaluate returns a deterministic placeholder derived from the expression.
func (s *NullSession) Evaluate(expression string) types.EvaluationResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.EvaluationResult{Success: false, Message: "session disconnected"}
	}
	return parseEvaluation("0:no device attached:" + expression)
}

// SetCurrentThread is a no-op without a device.
func (s *NullSession) SetCurrentThread(uint64) {}

// Breakpoints returns a sorted snapshot of the local breakpoint registry.
func (s *NullSession) Breakpoints() map[string][]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotBreakpoints(s.breakpoints)
}

// Attached always reports false.
func (s *NullSession) Attached() bool { return false }

// State is DetachedReady for the session's whole life.
func (s *NullSession) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return types.StateDisconnected
	}
	return types.StateDetachedReady
}

// Disconnect clears the breakpoint registry; the session cannot be reused.
func (s *NullSession) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.breakpoints = make(map[string]map[int]struct{})
}

func snapshotBreakpoints(src map[string]map[int]struct{}) map[string][]int {
	out := make(map[string][]int, len(src))
	for file, set := range src {
		lines := make([]int, 0, len(set))
		for line := range set {
			lines = append(lines, line)
		}
		sort.Ints(lines)
		out[file] = lines
	}
	return out
}
