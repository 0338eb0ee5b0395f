package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Hello is the first frame the server sends on a new connection.
type Hello struct {
	// HeartbeatInterval is in milliseconds.
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Interval returns the heartbeat interval as a duration.
func (h Hello) Interval() time.Duration {
	return time.Duration(h.HeartbeatInterval) * time.Millisecond
}

// IdentifyProperties describes the connecting client.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Identify starts a new session.
type Identify struct {
	Token          string             `json:"token"`
	Properties     IdentifyProperties `json:"properties"`
	Compress       bool               `json:"compress,omitempty"`
	LargeThreshold int                `json:"large_threshold,omitempty"`
	Shard          *[2]uint64         `json:"shard,omitempty"`
	Presence       *PresenceUpdate    `json:"presence,omitempty"`
	Intents        Intents            `json:"intents"`
}

// Resume continues an existing session from Seq.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Seq       int64  `json:"seq"`
}

// Ready is the payload of the READY dispatch.
type Ready struct {
	Version          int             `json:"v"`
	SessionID        string          `json:"session_id"`
	ResumeGatewayURL string          `json:"resume_gateway_url"`
	Shard            *[2]uint64      `json:"shard,omitempty"`
	User             json.RawMessage `json:"user,omitempty"`
}

// ParseInvalidSession returns whether an InvalidSession frame allows resuming.
func ParseInvalidSession(f Frame) (resumable bool, err error) {
	if f.Op != OpInvalidSession {
		return false, fmt.Errorf("%w: expected %s, got %s", ErrMalformedFrame, OpInvalidSession, f.Op)
	}
	if string(f.Data) == "null" {
		return false, nil
	}
	err = f.Unmarshal(&resumable)
	return resumable, err
}

// Command is an outbound frame a client may issue on its own behalf.
type Command interface {
	Opcode() Opcode
}

// EncodeCommand encodes a command into a wire envelope.
func EncodeCommand(c Command) ([]byte, error) {
	return Encode(c.Opcode(), c)
}

// Status is a presence status string.
type Status string

const (
	StatusOnline       Status = "online"
	StatusIdle         Status = "idle"
	StatusDoNotDisturb Status = "dnd"
	StatusInvisible    Status = "invisible"
	StatusOffline      Status = "offline"
)

// ActivityType describes what an activity is.
type ActivityType int

const (
	ActivityPlaying   ActivityType = 0
	ActivityStreaming ActivityType = 1
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
	ActivityCustom    ActivityType = 4
	ActivityCompeting ActivityType = 5
)

// Activity is a single presence activity.
type Activity struct {
	Name string       `json:"name"`
	Type ActivityType `json:"type"`
	URL  string       `json:"url,omitempty"`
}

// PresenceUpdate changes the client presence.
type PresenceUpdate struct {
	// Since is a unix time in milliseconds, or nil when not idle.
	Since      *int64     `json:"since"`
	Activities []Activity `json:"activities"`
	Status     Status     `json:"status"`
	AFK        bool       `json:"afk"`
}

// Opcode implements Command.
func (PresenceUpdate) Opcode() Opcode { return OpPresenceUpdate }

// VoiceStateUpdate joins, moves between or leaves voice channels.
type VoiceStateUpdate struct {
	GuildID   string  `json:"guild_id"`
	ChannelID *string `json:"channel_id"`
	SelfMute  bool    `json:"self_mute"`
	SelfDeaf  bool    `json:"self_deaf"`
}

// Opcode implements Command.
func (VoiceStateUpdate) Opcode() Opcode { return OpVoiceStateUpdate }

// RequestGuildMembers asks for guild member chunks.
type RequestGuildMembers struct {
	GuildID   string   `json:"guild_id"`
	Query     *string  `json:"query,omitempty"`
	Limit     int      `json:"limit"`
	Presences bool     `json:"presences,omitempty"`
	UserIDs   []string `json:"user_ids,omitempty"`
	Nonce     string   `json:"nonce,omitempty"`
}

// Opcode implements Command.
func (RequestGuildMembers) Opcode() Opcode { return OpRequestGuildMembers }
