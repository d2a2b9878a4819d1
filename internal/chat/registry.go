package chat

import "sort"

// Session is the application identity bound to a connection: the chosen
// display name and the room the connection currently occupies. A session
// exists from successful registration until disconnect.
type Session struct {
	DisplayName string
	Room        string
}

// Registry maps active connection-ids to their sessions and enforces global
// display-name uniqueness. It holds no routing logic.
//
// The Registry is not safe for concurrent use on its own; the Service guards
// it jointly with the room Directory under one lock.
type Registry struct {
	sessions map[string]*Session
	names    map[string]string // display name -> connection id
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		names:    make(map[string]string),
	}
}

// Register creates a session for the connection, placing it in room. It fails
// with ErrNameTaken when any active session already holds the display name.
func (r *Registry) Register(connectionID, displayName, room string) (*Session, error) {
	if _, taken := r.names[displayName]; taken {
		return nil, ErrNameTaken
	}

	session := &Session{DisplayName: displayName, Room: room}
	r.sessions[connectionID] = session
	r.names[displayName] = connectionID
	return session, nil
}

// Get returns the session for a connection, or false when none exists.
func (r *Registry) Get(connectionID string) (*Session, bool) {
	session, ok := r.sessions[connectionID]
	return session, ok
}

// Remove deletes and returns the session for a connection. It returns false
// when no session existed, e.g. a disconnect before registration completed.
func (r *Registry) Remove(connectionID string) (*Session, bool) {
	session, ok := r.sessions[connectionID]
	if !ok {
		return nil, false
	}
	delete(r.sessions, connectionID)
	delete(r.names, session.DisplayName)
	return session, true
}

// All returns a snapshot of every active session, sorted by display name so
// repeated snapshots of the same state are identical.
func (r *Registry) All() []Presence {
	presences := make([]Presence, 0, len(r.sessions))
	for connectionID, session := range r.sessions {
		presences = append(presences, Presence{
			ConnectionID: connectionID,
			DisplayName:  session.DisplayName,
			CurrentRoom:  session.Room,
		})
	}
	sort.Slice(presences, func(i, j int) bool {
		return presences[i].DisplayName < presences[j].DisplayName
	})
	return presences
}
