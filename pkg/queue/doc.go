// Package queue staggers Identify operations across shards.
//
// The server allows max_concurrency identifies per five seconds, bucketed
// by shard index modulo max_concurrency. LocalQueue enforces that limit
// within one process, bringing shards up in waves of max_concurrency.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package queue
