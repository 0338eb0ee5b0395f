package protocol

// CloseCode is a websocket close code sent by the gateway.
type CloseCode int

const (
	CloseNormal               CloseCode = 1000
	CloseGoingAway            CloseCode = 1001
	CloseUnknownError         CloseCode = 4000
	CloseUnknownOpcode        CloseCode = 4001
	CloseDecodeError          CloseCode = 4002
	CloseNotAuthenticated     CloseCode = 4003
	CloseAuthenticationFailed CloseCode = 4004
	CloseAlreadyAuthenticated CloseCode = 4005
	CloseInvalidSeq           CloseCode = 4007
	CloseRateLimited          CloseCode = 4008
	CloseSessionTimedOut      CloseCode = 4009
	CloseInvalidShard         CloseCode = 4010
	CloseShardingRequired     CloseCode = 4011
	CloseInvalidAPIVersion    CloseCode = 4012
	CloseInvalidIntents       CloseCode = 4013
	CloseDisallowedIntents    CloseCode = 4014
)

// CloseAction is what a client should do after a close code.
type CloseAction int

const (
	// CloseActionResume reconnects and resumes the existing session.
	CloseActionResume CloseAction = iota
	// CloseActionReidentify reconnects with a fresh session.
	CloseActionReidentify
	// CloseActionAuthFailure stops the shard; credentials were rejected.
	CloseActionAuthFailure
	// CloseActionConfigFailure stops the shard; the request can never succeed as configured.
	CloseActionConfigFailure
)

// Action classifies a close code.
func (c CloseCode) Action() CloseAction {
	switch c {
	case CloseAuthenticationFailed:
		return CloseActionAuthFailure
	case CloseInvalidShard, CloseShardingRequired, CloseInvalidAPIVersion,
		CloseInvalidIntents, CloseDisallowedIntents:
		return CloseActionConfigFailure
	case CloseInvalidSeq, CloseSessionTimedOut:
		return CloseActionReidentify
	default:
		return CloseActionResume
	}
}
