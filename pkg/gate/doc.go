// Package gate rate-limits outbound gateway commands.
//
// A Gate enforces a fixed-window budget: at most Capacity commands are sent
// per Window, the window opening at the first send after a reset. Once the
// budget is spent, submissions queue in FIFO order up to QueueCapacity and
// are flushed when the window resets. A submission that finds the queue
// full fails immediately with ErrBackpressure.
//
// Heartbeats must not be sent through a Gate.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package gate
