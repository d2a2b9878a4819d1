package chat

// Transport is the addressing capability the chat core depends on: unicast by
// connection-id, multicast by room label, and global broadcast. The WebSocket
// hub implements it in production; tests use a recording fake.
//
// Every send is fire-and-forget. Implementations must never block on a slow
// destination and must deliver to the remaining destinations of a multicast
// even when one destination fails.
type Transport interface {
	// Unicast delivers an event to a single connection. Delivery to an
	// unknown connection-id is silently dropped.
	Unicast(connectionID, event string, payload any)

	// Multicast delivers an event to every connection subscribed to roomID.
	Multicast(roomID, event string, payload any)

	// MulticastExcept delivers an event to every connection subscribed to
	// roomID except the named one.
	MulticastExcept(roomID, exceptConnectionID, event string, payload any)

	// Broadcast delivers an event to every connection.
	Broadcast(event string, payload any)

	// Subscribe adds a connection to a room label for multicast addressing.
	Subscribe(connectionID, roomID string)

	// Unsubscribe removes a connection from a room label. Removing a
	// non-subscriber is a no-op.
	Unsubscribe(connectionID, roomID string)
}
