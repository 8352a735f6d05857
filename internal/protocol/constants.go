// Package protocol implements the loopback peer protocol: port selection,
// the single-peer accept, the fixed handshake and the little-endian
// integer / newline-terminated JSON framing.
//
// The constants in this file are shared by both ends of the connection.
//
// # Wire format
//
//	handshake   peer → "fan-control-check"      (one segment, exact bytes)
//	            server → "fan-control-ok"
//	snapshot    server → <JSON array> '\n'
//	command     peer → int32 code [int32 index [int32 value]]
//	response    server → int32 (GetValue) | <JSON array> '\n' (GetHardware)
//
// Integers are 4-byte little-endian two's complement.
package protocol

import "encoding/binary"

// Connection defaults.
const (
	// DefaultAddress is the only address the server binds.
	DefaultAddress = "127.0.0.1"

	// DefaultPort is the first port tried.
	DefaultPort = 55555

	// MaxPort is the last port tried.
	MaxPort = 65535
)

// Handshake messages.
const (
	CheckMessage = "fan-control-check"
	OkMessage    = "fan-control-ok"
)

// Command is a command code sent by the peer.
type Command int32

// Command codes.
const (
	CmdGetHardware Command = 0
	CmdSetAuto     Command = 1
	CmdSetValue    Command = 2
	CmdGetValue    Command = 3
	CmdShutdown    Command = 4
	CmdUpdate      Command = 5
)

// String returns the command name used in logs.
func (c Command) String() string {
	switch c {
	case CmdGetHardware:
		return "GetHardware"
	case CmdSetAuto:
		return "SetAuto"
	case CmdSetValue:
		return "SetValue"
	case CmdGetValue:
		return "GetValue"
	case CmdShutdown:
		return "Shutdown"
	case CmdUpdate:
		return "Update"
	default:
		return "Unknown"
	}
}

// Int32Size is the encoded size of an integer on the wire.
const Int32Size = 4

// FrameDelimiter terminates every JSON frame.
const FrameDelimiter = '\n'

// EncodeInt32 returns the wire encoding of v.
func EncodeInt32(v int32) []byte {
	b := make([]byte, Int32Size)
	binary.LittleEndian.PutUint32(b, uint32(v))
	return b
}

// DecodeInt32 decodes the first four bytes of b.
func DecodeInt32(b []byte) int32 {
	return int32(binary.LittleEndian.Uint32(b))
}
