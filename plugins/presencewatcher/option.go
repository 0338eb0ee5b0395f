package presencewatcher

import "github.com/bft-labs/shardline/pkg/shardline"

// WithPresenceWatcher returns a shardline Option that keeps the presence
// in sync with a TOML file.
//
// Usage:
//
//	gw, err := shardline.New(cfg,
//	    presencewatcher.WithPresenceWatcher(presencewatcher.Config{
//	        Path:          "/etc/shardline/presence.toml",
//	        DebounceDelay: 100 * time.Millisecond,
//	    }),
//	)
func WithPresenceWatcher(cfg Config) shardline.Option {
	return shardline.WithPlugin(New(cfg))
}
