// Package chat defines the error taxonomy shared by the session lifecycle and
// routing operations. Every error here is a client-input or client-state
// error, reported back to the originating connection only; none is fatal to
// the server.
package chat

import "errors"

var (
	// ErrEmptyName rejects a join with a blank display name (post-trim).
	ErrEmptyName = errors.New("display name cannot be empty")

	// ErrNameTaken rejects a join whose display name already identifies an
	// active session. Matching is case-sensitive and exact.
	ErrNameTaken = errors.New("display name is already taken")

	// ErrAlreadyRegistered rejects a second join_chat from a connection that
	// already has an active session.
	ErrAlreadyRegistered = errors.New("connection already has an active session")

	// ErrNotRegistered rejects room and message operations from a connection
	// without an active session.
	ErrNotRegistered = errors.New("connection has not joined the chat")

	// ErrRecipientOffline rejects a private message whose recipient
	// connection has no active session.
	ErrRecipientOffline = errors.New("recipient is not online")
)
