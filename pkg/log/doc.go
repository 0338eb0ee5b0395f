// Package log provides the logging abstraction used by shardline components.
//
// Components accept a [Logger] and never depend on a concrete logging
// library. A zerolog adapter is provided for applications, and a no-op
// logger is the default when nothing is configured.
//
// # Usage
//
//	logger := log.NewZerologAdapter()
//	shardLogger := log.With(logger, log.Uint64("shard", 3))
//	shardLogger.Info("identified", log.String("session", id))
//
// # Version
//
// Current version: 1.1.0
// Minimum compatible version: 1.0.0
package log
