// Package transport abstracts the message-oriented connection a shard
// runs over.
//
// Conn and Dialer are small interfaces so shard logic can be driven by an
// in-memory fake in tests. WebsocketDialer is the production
// implementation on top of gorilla/websocket.
//
// # Version
//
// Current version: 1.0.0
// Minimum compatible version: 1.0.0
package transport
