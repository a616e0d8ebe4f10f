package jdwp

import "time"

// Handshake is the fixed ASCII token both ends exchange before any packet.
// The debuggee echoes it back byte for byte.
const Handshake = "JDWP-Handshake"

// HeaderSize is the minimum serialized size of any packet: length (4),
// id (4), flags (1), plus command-set/command or error-code (2).
const HeaderSize = 11

// FlagReply marks a packet as a reply; command packets carry zero flags.
const FlagReply byte = 0x80

// Command sets used by the engine. Only the subset needed for breakpoints,
// stepping, resume and evaluation is defined.
const (
	CmdSetVirtualMachine byte = 1
	CmdSetEventRequest   byte = 15
)

// VirtualMachine commands
const (
	CmdResume byte = 9
)

// EventRequest commands
const (
	CmdEventSet   byte = 1
	CmdEventClear byte = 2
)

// Event kinds
const (
	EventKindStep       byte = 1
	EventKindBreakpoint byte = 2
	EventKindException  byte = 4
)

// Event request modifier kinds
const (
	ModLocationOnly byte = 7
	ModStep         byte = 10
)

// Step depths
const (
	StepInto int32 = 0
	StepOver int32 = 1
	StepOut  int32 = 2
)

// StepSizeLine steps by source line rather than bytecode instruction.
const StepSizeLine int32 = 1

// Suspend policies
const (
	SuspendNone        byte = 0
	SuspendEventThread byte = 1
	SuspendAll         byte = 2
)

// DefaultReadTimeout bounds every reply read so a wedged debuggee fails
// the command instead of hanging the session.
const DefaultReadTimeout = 10 * time.Second
