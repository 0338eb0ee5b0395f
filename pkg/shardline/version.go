package shardline

import (
	"fmt"

	"github.com/bft-labs/shardline/pkg/cluster"
	"github.com/bft-labs/shardline/pkg/gate"
	"github.com/bft-labs/shardline/pkg/heartbeat"
	"github.com/bft-labs/shardline/pkg/lifecycle"
	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/protocol"
	"github.com/bft-labs/shardline/pkg/session"
	"github.com/bft-labs/shardline/pkg/shard"
)

// Version is the version of the facade.
const Version = "1.0.0"

type moduleVersion struct {
	version    string
	minVersion string
}

func modules() map[string]moduleVersion {
	return map[string]moduleVersion{
		"protocol":  {protocol.Version, protocol.MinCompatibleVersion},
		"session":   {session.Version, session.MinCompatibleVersion},
		"heartbeat": {heartbeat.Version, heartbeat.MinCompatibleVersion},
		"lifecycle": {lifecycle.Version, lifecycle.MinCompatibleVersion},
		"gate":      {gate.Version, gate.MinCompatibleVersion},
		"shard":     {shard.Version, shard.MinCompatibleVersion},
		"cluster":   {cluster.Version, cluster.MinCompatibleVersion},
		"log":       {log.Version, log.MinCompatibleVersion},
	}
}

// ModuleVersions returns the version of every sub-module.
func ModuleVersions() map[string]string {
	out := make(map[string]string)
	for name, m := range modules() {
		out[name] = m.version
	}
	return out
}

// CompatibilityMatrix returns the minimum compatible version of every
// sub-module.
func CompatibilityMatrix() map[string]string {
	out := make(map[string]string)
	for name, m := range modules() {
		out[name] = m.minVersion
	}
	return out
}

// validateModuleVersions returns an error if any module version is below
// its minimum compatible version.
func validateModuleVersions() error {
	for name, m := range modules() {
		if !isVersionCompatible(m.version, m.minVersion) {
			return fmt.Errorf("module %s version %s is below minimum compatible version %s",
				name, m.version, m.minVersion)
		}
	}
	return nil
}

// isVersionCompatible reports whether version >= minVersion.
// Versions are "major.minor.patch".
func isVersionCompatible(version, minVersion string) bool {
	var vMajor, vMinor, vPatch int
	var mMajor, mMinor, mPatch int

	_, _ = fmt.Sscanf(version, "%d.%d.%d", &vMajor, &vMinor, &vPatch)
	_, _ = fmt.Sscanf(minVersion, "%d.%d.%d", &mMajor, &mMinor, &mPatch)

	if vMajor != mMajor {
		return vMajor > mMajor
	}
	if vMinor != mMinor {
		return vMinor > mMinor
	}
	return vPatch >= mPatch
}
