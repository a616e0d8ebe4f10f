// Package debugger provides the engine facade: it sequences package
// install, debug-suspended launch, port forwarding and wire session
// construction, and forwards subsequent debug commands to the single
// active session.
//
// A bridge or handshake failure does not fail the start; the service
// degrades to a detached session so the engine stays usable without a
// reachable device.
package debugger

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/droidbg/droidbg/internal/config"
	"github.com/droidbg/droidbg/internal/debugerr"
	"github.com/droidbg/droidbg/internal/jdwp"
	"github.com/droidbg/droidbg/pkg/types"
)

// Device is the device-control surface the service needs. Implemented by
// adb.Client; injectable for tests.
type Device interface {
	Install(ctx context.Context, packagePath string) types.InstallResult
	PackageName(ctx context.Context, packagePath string) string
	Launch(ctx context.Context, packageName string) types.LaunchResult
	Forward(ctx context.Context, pid int) (int, error)
}

// Handle is a caller-owned reference to a started session. StopDebugging
// consumes it; a consumed handle rejects nothing itself, the service does.
type Handle struct {
	ID          string
	ProcessName string
	Pid         int

	session jdwp.Session
}

// Service is the debugging facade. At most one session is live per
// instance; starting a new one replaces (and disconnects) the old.
type Service struct {
	cfg    *config.Config
	device Device
	log    *zap.Logger

	// dial and attach are injectable seams for tests.
	dial   func(ctx context.Context, addr string) (net.Conn, error)
	attach func(conn net.Conn, processName string, pid int) (jdwp.Session, error)

	locations *jdwp.LocationCache

	mu     sync.Mutex
	active *Handle
}

// New creates a debugger service.
func New(cfg *config.Config, device Device, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		cfg:       cfg,
		device:    device,
		log:       log,
		locations: jdwp.NewLocationCache(),
	}
	s.dial = func(ctx context.Context, addr string) (net.Conn, error) {
		d := net.Dialer{Timeout: 5 * time.Second}
		return d.DialContext(ctx, "tcp", addr)
	}
	s.attach = func(conn net.Conn, processName string, pid int) (jdwp.Session, error) {
		return jdwp.NewWireSession(conn, processName, pid,
			jdwp.WithLogger(log),
			jdwp.WithReadTimeout(cfg.ReadTimeout),
			jdwp.WithLocationResolver(s.locations.Resolve))
	}
	return s
}

// RegisterLocation caches the device location for a source coordinate so
// subsequent SetBreakpoint calls can arm it on the device. Locations
// survive session replacement.
func (s *Service) RegisterLocation(file string, line int, loc jdwp.Location) {
	s.locations.Add(file, line, loc)
}

// StartDebugging runs the full pipeline: install, resolve package name,
// launch debug-suspended, forward the debug port, connect and handshake.
// Install and launch failures short-circuit with the accumulated error
// list and no session. Bridge, dial and handshake failures degrade to a
// detached session instead of failing the call.
func (s *Service) StartDebugging(ctx context.Context, packagePath string) (*Handle, types.StartResult) {
	install := s.device.Install(ctx, packagePath)
	if !install.Success {
		return nil, failedStart(debugerr.Install(install.Errors...))
	}

	packageName := s.device.PackageName(ctx, packagePath)

	launch := s.device.Launch(ctx, packageName)
	if !launch.Success {
		return nil, failedStart(debugerr.Launch(launch.Errors...))
	}

	session := s.connect(ctx, packageName, launch.Pid)

	handle := &Handle{
		ID:          uuid.NewString(),
		ProcessName: packageName,
		Pid:         launch.Pid,
		session:     session,
	}

	s.mu.Lock()
	if s.active != nil {
		s.log.Info("replacing active session", zap.String("sessionId", s.active.ID))
		s.active.session.Disconnect()
	}
	s.active = handle
	s.mu.Unlock()

	return handle, types.StartResult{
		Success:   true,
		Attached:  session.Attached(),
		SessionID: handle.ID,
	}
}

// connect attempts the attached path and falls back to a detached session
// on any bridge, dial or handshake failure.
func (s *Service) connect(ctx context.Context, packageName string, pid int) jdwp.Session {
	port, err := s.device.Forward(ctx, pid)
	if err != nil {
		s.log.Warn("port bridge unavailable, continuing detached",
			zap.Error(debugerr.Bridge(err)))
		return jdwp.NewNullSession(packageName, pid)
	}

	conn, err := s.dial(ctx, fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		s.log.Warn("debug port unreachable, continuing detached", zap.Error(err))
		return jdwp.NewNullSession(packageName, pid)
	}

	session, err := s.attach(conn, packageName, pid)
	if err != nil {
		s.log.Warn("handshake failed, continuing detached",
			zap.Error(debugerr.Handshake(err)))
		return jdwp.NewNullSession(packageName, pid)
	}
	return session
}

func failedStart(f *debugerr.Failure) types.StartResult {
	return types.StartResult{Success: false, Errors: f.Messages}
}

// StopDebugging disconnects and discards the session the handle refers
// to, reporting whether it was the live one. Stopping a stale or nil
// handle is a no-op.
func (s *Service) StopDebugging(h *Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h == nil || s.active == nil || s.active.ID != h.ID {
		return false
	}
	s.active.session.Disconnect()
	s.active = nil
	return true
}

// session returns the live session or a NoActiveSession failure.
func (s *Service) session() (jdwp.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil, debugerr.NoActiveSession()
	}
	return s.active.session, nil
}

// SetBreakpoint forwards to the active session.
func (s *Service) SetBreakpoint(file string, line int) (bool, error) {
	sess, err := s.session()
	if err != nil {
		return false, err
	}
	return sess.SetBreakpoint(file, line), nil
}

// RemoveBreakpoint forwards to the active session.
func (s *Service) RemoveBreakpoint(file string, line int) (bool, error) {
	sess, err := s.session()
	if err != nil {
		return false, err
	}
	return sess.RemoveBreakpoint(file, line), nil
}

// Resume forwards to the active session.
func (s *Service) Resume() (bool, error) {
	sess, err := s.session()
	if err != nil {
		return false, err
	}
	return sess.Resume(), nil
}

// StepOver forwards to the active session.
func (s *Service) StepOver() (bool, error) {
	sess, err := s.session()
	if err != nil {
		return false, err
	}
	return sess.StepOver(), nil
}

// StepInto forwards to the active session.
func (s *Service) StepInto() (bool, error) {
	sess, err := s.session()
	if err != nil {
		return false, err
	}
	return sess.StepInto(), nil
}

// StepOut forwards to the active session.
func (s *Service) StepOut() (bool, error) {
	sess, err := s.session()
	if err != nil {
		return false, err
	}
	return sess.StepOut(), nil
}

// Evaluate forwards to the active session.
func (s *Service) Evaluate(expression string) (types.EvaluationResult, error) {
	sess, err := s.session()
	if err != nil {
		return types.EvaluationResult{}, err
	}
	return sess.Evaluate(expression), nil
}

// SetCurrentThread records the suspended thread on the active session.
func (s *Service) SetCurrentThread(threadID uint64) error {
	sess, err := s.session()
	if err != nil {
		return err
	}
	sess.SetCurrentThread(threadID)
	return nil
}

// Status describes the active session.
func (s *Service) Status() (types.SessionInfo, error) {
	s.mu.Lock()
	h := s.active
	s.mu.Unlock()

	if h == nil {
		return types.SessionInfo{}, debugerr.NoActiveSession()
	}

	bps := 0
	for _, lines := range h.session.Breakpoints() {
		bps += len(lines)
	}
	return types.SessionInfo{
		SessionID:   h.ID,
		ProcessName: h.ProcessName,
		Pid:         h.Pid,
		Attached:    h.session.Attached(),
		State:       h.session.State(),
		Breakpoints: bps,
	}, nil
}

// Close disconnects any live session.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		s.active.session.Disconnect()
		s.active = nil
	}
}
