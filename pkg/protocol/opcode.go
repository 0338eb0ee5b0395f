package protocol

import "strconv"

// Opcode identifies the kind of a gateway frame.
type Opcode int

const (
	OpDispatch            Opcode = 0
	OpHeartbeat           Opcode = 1
	OpIdentify            Opcode = 2
	OpPresenceUpdate      Opcode = 3
	OpVoiceStateUpdate    Opcode = 4
	OpResume              Opcode = 6
	OpReconnect           Opcode = 7
	OpRequestGuildMembers Opcode = 8
	OpInvalidSession      Opcode = 9
	OpHello               Opcode = 10
	OpHeartbeatAck        Opcode = 11
)

// Known reports whether the opcode is part of the supported protocol.
func (o Opcode) Known() bool {
	switch o {
	case OpDispatch, OpHeartbeat, OpIdentify, OpPresenceUpdate, OpVoiceStateUpdate,
		OpResume, OpReconnect, OpRequestGuildMembers, OpInvalidSession, OpHello, OpHeartbeatAck:
		return true
	default:
		return false
	}
}

// String returns a human-readable representation of the opcode.
func (o Opcode) String() string {
	switch o {
	case OpDispatch:
		return "Dispatch"
	case OpHeartbeat:
		return "Heartbeat"
	case OpIdentify:
		return "Identify"
	case OpPresenceUpdate:
		return "PresenceUpdate"
	case OpVoiceStateUpdate:
		return "VoiceStateUpdate"
	case OpResume:
		return "Resume"
	case OpReconnect:
		return "Reconnect"
	case OpRequestGuildMembers:
		return "RequestGuildMembers"
	case OpInvalidSession:
		return "InvalidSession"
	case OpHello:
		return "Hello"
	case OpHeartbeatAck:
		return "HeartbeatAck"
	default:
		return "Opcode(" + strconv.Itoa(int(o)) + ")"
	}
}
