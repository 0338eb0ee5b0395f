// Package heartbeat keeps a gateway connection alive.
//
// A Heartbeater sends a heartbeat on the interval announced by the server's
// Hello and tracks whether each beat was acknowledged. When the next tick
// arrives with the previous beat still unacknowledged the connection is
// considered dead and Run returns ErrMissedAck.
//
// The first beat is delayed by a random fraction of the interval when
// jitter is enabled, so shards reconnecting together do not beat in
// lockstep.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package heartbeat
