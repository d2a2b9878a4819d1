// Package chat implements the core state machine of the Parley service: the
// connection registry, the room directory, the session lifecycle, and the
// message routing rules.
//
// The package is transport-agnostic. All outbound effects are expressed
// through the Transport interface (unicast, room multicast, global broadcast),
// so the routing and lifecycle logic is testable against a recording fake
// without a network layer.
package chat
