package shardline

import (
	"context"

	"github.com/bft-labs/shardline/pkg/log"
	"github.com/bft-labs/shardline/pkg/protocol"
)

// Plugin extends a Shardline instance. Plugins are initialized on Start in
// registration order and shut down on Stop in reverse order.
type Plugin interface {
	// Name returns the plugin identifier.
	Name() string

	// Initialize starts the plugin. ctx is cancelled when the instance stops.
	Initialize(ctx context.Context, cfg PluginConfig) error

	// Shutdown stops the plugin.
	Shutdown(ctx context.Context) error
}

// Broadcaster sends a command on every shard.
type Broadcaster interface {
	Broadcast(ctx context.Context, cmd protocol.Command) error
}

// PluginConfig is handed to plugins on Initialize.
type PluginConfig struct {
	Logger log.Logger

	// Commands sends commands through the shards' command gates.
	Commands Broadcaster

	// Ready is closed once every shard was Ready once.
	Ready <-chan struct{}
}
