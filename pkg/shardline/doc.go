// Package shardline provides an embeddable gateway session manager.
//
// Shardline keeps every shard of an application connected to the gateway:
// it identifies in rate-limited waves, heartbeats, resumes dropped
// sessions, reconnects with backoff and hands out the decoded events. It
// can be used as a standalone CLI application or embedded as a library.
//
// # Basic Usage
//
//	gw, err := shardline.New(shardline.Config{
//	    Token:   os.Getenv("BOT_TOKEN"),
//	    Intents: protocol.IntentGuilds | protocol.IntentGuildMessages,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := gw.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	for ev := range gw.Events() {
//	    // ev.Shard, ev.Name, ev.Data
//	}
//
//	if err := gw.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Configuration
//
// Only Token is required. Zero values fall back to the defaults of the
// shard and cluster packages; ShardCount and ShardConcurrency are taken
// from the gateway/bot endpoint when zero.
//
// # Event Handling
//
// Implement [EventHandler], usually by embedding [BaseEventHandler], and
// pass it via [WithEventHandler] to observe lifecycle changes, shard phase
// changes and fatal shard errors.
//
// # Lifecycle States
//
// An instance is in one of [StateStopped], [StateStarting], [StateRunning],
// [StateStopping] or [StateCrashed]. Use [Shardline.Status] to query it.
//
// # Plugins
//
//	import "github.com/bft-labs/shardline/plugins/presencewatcher"
//
//	gw, err := shardline.New(cfg,
//	    presencewatcher.WithPresenceWatcher(presencewatcher.Config{Path: "presence.toml"}),
//	)
//
// # Version
//
// Current version: 1.0.0
//
// Use [ModuleVersions] to get versions of all sub-modules and
// [CompatibilityMatrix] to check minimum compatible versions.
package shardline
