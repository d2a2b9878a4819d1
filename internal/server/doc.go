// Package server implements the WebSocket transport for the Parley chat
// service: the hub that owns live connections and implements room-addressed
// delivery, the per-client read/write pumps, HTTP routing, origin checks,
// rate limiting, and configuration.
//
// The chat semantics themselves live in internal/chat; this package feeds it
// decoded inbound events and carries its outbound emissions to clients.
package server
