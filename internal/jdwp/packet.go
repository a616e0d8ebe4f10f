// Package jdwp implements the subset of the Java Debug Wire Protocol needed
// to drive breakpoints, stepping, resume and expression evaluation against a
// remote VM, plus a detached session that answers the same calls with
// deterministic local results when no device is reachable.
//
// The wire format is bit-exact: all multi-byte integers are big-endian, and
// a packet's length field counts the full serialized packet including the
// header. Interoperating with a real device debug stub depends on this.
package jdwp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrTruncated is returned when fewer bytes are available than a packet's
// header or declared length claims.
var ErrTruncated = errors.New("jdwp: truncated packet")

// Packet is the wire unit. Command packets carry CommandSet/Command,
// replies carry ErrorCode; Flags distinguishes the two.
type Packet struct {
	Length     uint32
	ID         uint32
	Flags      byte
	CommandSet byte
	Command    byte
	ErrorCode  uint16
	Data       []byte
}

// IsReply reports whether the packet is a reply to a command.
func (p Packet) IsReply() bool {
	return p.Flags&FlagReply != 0
}

// EncodeCommand serializes a command packet. The length field is written
// as zero and backpatched once the total size is known.
func EncodeCommand(id uint32, commandSet, command byte, payload []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, 0, 0, 0, 0) // length, backpatched below
	buf = binary.BigEndian.AppendUint32(buf, id)
	buf = append(buf, 0) // flags: command
	buf = append(buf, commandSet, command)
	buf = append(buf, payload...)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(buf)))
	return buf
}

// EncodeReply serializes a reply packet.
func EncodeReply(id uint32, errorCode uint16, payload []byte) []byte {
	buf := make([]byte, 0, HeaderSize+len(payload))
	buf = append(buf, 0, 0, 0, 0)
	buf = binary.BigEndian.AppendUint32(buf, id)
	buf = append(buf, FlagReply)
	buf = binary.BigEndian.AppendUint16(buf, errorCode)
	buf = append(buf, payload...)
	binary.BigEndian.PutUint32(buf[:4], uint32(len(buf)))
	return buf
}

// Decode parses a single packet from data. It fails with ErrTruncated when
// fewer bytes are available than the header needs or the declared length
// claims, and rejects lengths smaller than the header.
func Decode(data []byte) (Packet, error) {
	if len(data) < HeaderSize {
		return Packet{}, ErrTruncated
	}

	length := binary.BigEndian.Uint32(data[:4])
	if length < HeaderSize {
		return Packet{}, errors.Errorf("jdwp: invalid packet length %d", length)
	}
	if uint32(len(data)) < length {
		return Packet{}, ErrTruncated
	}

	p := Packet{
		Length: length,
		ID:     binary.BigEndian.Uint32(data[4:8]),
		Flags:  data[8],
	}

	if p.IsReply() {
		p.ErrorCode = binary.BigEndian.Uint16(data[9:11])
	} else {
		p.CommandSet = data[9]
		p.Command = data[10]
	}

	if length > HeaderSize {
		p.Data = make([]byte, length-HeaderSize)
		copy(p.Data, data[HeaderSize:length])
	}

	return p, nil
}
