package shard

// Version information for the shard module.
const (
	// Version is the current version of the shard module.
	Version = "1.0.0"

	// MinCompatibleVersion is the minimum version that is compatible with this version.
	MinCompatibleVersion = "1.0.0"
)
