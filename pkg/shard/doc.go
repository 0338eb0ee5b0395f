// Package shard runs one gateway connection.
//
// A Shard owns a single transport connection at a time and drives it
// through the connection phases: it dials, waits for Hello, starts the
// heartbeat, identifies or resumes, and then forwards dispatched events
// until the connection drops. Drops are classified and, unless fatal,
// followed by a backoff and a new connection that resumes the session
// when the session is still valid.
//
// # Usage
//
//	s, err := shard.New(shard.Config{
//	    Token:      token,
//	    ID:         protocol.ShardID{Index: 0, Total: 1},
//	    GatewayURL: "wss://gateway.discord.gg",
//	    Intents:    protocol.IntentGuilds | protocol.IntentGuildMessages,
//	}, shard.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//
//	go func() {
//	    for ev := range s.Events() {
//	        // ev.Sequence has already been recorded in the session
//	    }
//	}()
//
//	if err := s.Run(ctx); err != nil {
//	    // fatal: authentication or configuration was rejected
//	}
//
// # Ordering
//
// Events of one shard are delivered in wire order. The session sequence
// is advanced before the event is handed out. A dispatch whose sequence
// is not greater than the last one is rejected and the connection is
// re-established with a fresh session.
//
// # Errors
//
// Every connection-level error is an *Error carrying a Kind. Transport
// errors, heartbeat timeouts, protocol violations and server-requested
// reconnects are recovered from inside Run. Authentication and
// configuration failures end Run and are returned to the caller.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package shard
