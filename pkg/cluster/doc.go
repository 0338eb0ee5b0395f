// Package cluster runs the set of shards of one application.
//
// A Cluster resolves the shard count and identify concurrency, either
// from the configuration or from the gateway/bot endpoint, and starts one
// supervised Shard per index. Identifies are spread into waves through a
// queue.LocalQueue. A shard that stops unexpectedly is replaced by a new
// Shard that resumes the old session when it is still valid; other shards
// are not affected. Fatal shard errors are reported on Errors and the
// shard stays down.
//
// # Usage
//
//	c, err := cluster.New(ctx, cluster.Config{
//	    Token: token,
//	    Shard: shard.Config{Intents: protocol.IntentGuilds},
//	}, cluster.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	go func() {
//	    for ev := range c.Events() {
//	        // ev.Shard tells which shard delivered the event
//	    }
//	}()
//
//	return c.Run(ctx)
//
// # Event sink
//
// By default all shards feed one merged channel. With PerShardEvents each
// shard gets its own channel, available through ShardEvents. Channels
// survive shard restarts and are closed when Run returns.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package cluster
