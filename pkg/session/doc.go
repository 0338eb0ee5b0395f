// Package session holds the resumable state of one gateway session.
//
// A Session is owned by exactly one shard connection at a time. It is
// created when the server acknowledges an Identify, advanced on every
// dispatched event, and invalidated when the server reports that it can no
// longer be resumed.
//
// # Usage
//
//	var s session.Session
//	s.Start("abc", "wss://resume.example.com")
//	if err := s.Advance(frame.Sequence); err != nil {
//	    // out-of-order sequence: the stream can no longer be trusted
//	}
//	if s.Resumable() {
//	    // send Resume{SessionID: s.ID, Seq: s.Sequence}
//	}
//
// Sessions are memory-resident only and are never written to disk. A fresh
// Identify is always valid after a process restart.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
//
// See version.go for version constants that can be used programmatically.
package session
