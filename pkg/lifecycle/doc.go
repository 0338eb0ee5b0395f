// Package lifecycle provides the state machines of the gateway.
//
// Two machines live here. Machine tracks the connection phase of a single
// shard, with phase-specific data carried by the PhaseState variants so
// that, for example, a pending Identify only exists while Identifying.
// DefaultManager tracks the service as a whole (Stopped, Starting, Running,
// Stopping, Crashed) and coordinates graceful shutdown of its workers.
//
// Backoff computes reconnect delays.
//
// # Connection phases
//
// Valid phase transitions:
//   - Connecting -> Identifying, Resuming, Reconnecting, Closed
//   - Identifying -> Ready, Reconnecting, Closed
//   - Resuming -> Ready, Identifying, Reconnecting, Closed
//   - Ready -> Reconnecting, Closed
//   - Reconnecting -> Connecting, Closed
//   - Closed is terminal
//
// # Service states
//
// Valid state transitions:
//   - Stopped -> Starting
//   - Starting -> Running, Crashed, Stopping
//   - Running -> Stopping, Crashed
//   - Stopping -> Stopped, Crashed
//   - Crashed -> Starting, Stopping
//
// # Usage
//
//	m := lifecycle.NewMachine(func(prev, cur lifecycle.PhaseState) {
//	    logger.Info("phase", log.String("to", cur.Phase().String()))
//	})
//	if err := m.Transition(lifecycle.Identifying{Identify: id}); err != nil {
//	    return err
//	}
//
//	b := lifecycle.NewBackoff(time.Second, time.Minute)
//	if err := b.Wait(ctx); err != nil {
//	    return err // cancelled
//	}
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
//
// See version.go for version constants that can be used programmatically.
package lifecycle
