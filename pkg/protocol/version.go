package protocol

// Version information for the protocol module.
const (
	// Version is the current version of the protocol module.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)

// APIVersion is the gateway protocol version requested on connect.
const APIVersion = 10
