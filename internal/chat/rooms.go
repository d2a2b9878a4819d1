package chat

import "sort"

// Directory maps room-ids to their occupant sets. Rooms are created lazily on
// first reference and never deleted; an empty room remains listed. Occupant
// identities resolve to display names through the connection Registry.
//
// Like the Registry, the Directory relies on the Service for serialization.
type Directory struct {
	registry *Registry
	rooms    map[string]map[string]struct{}
}

// NewDirectory creates an empty room directory resolving occupants through
// the given registry.
func NewDirectory(registry *Registry) *Directory {
	return &Directory{
		registry: registry,
		rooms:    make(map[string]map[string]struct{}),
	}
}

// Ensure returns after the room exists, reporting whether this call created
// it. Creation is an observable side effect: the caller announces new rooms
// to all connections.
func (d *Directory) Ensure(roomID string) (created bool) {
	if _, ok := d.rooms[roomID]; ok {
		return false
	}
	d.rooms[roomID] = make(map[string]struct{})
	return true
}

// AddOccupant places a connection in a room. Adding an existing occupant is a
// no-op, never a duplicate.
func (d *Directory) AddOccupant(roomID, connectionID string) {
	occupants, ok := d.rooms[roomID]
	if !ok {
		return
	}
	occupants[connectionID] = struct{}{}
}

// RemoveOccupant removes a connection from a room. Removing a non-member or
// removing from a room that does not exist is a no-op.
func (d *Directory) RemoveOccupant(roomID, connectionID string) {
	occupants, ok := d.rooms[roomID]
	if !ok {
		return
	}
	delete(occupants, connectionID)
}

// OccupantNames resolves the room's occupants to display names, sorted.
// Occupants without a resolvable session are silently dropped; a disconnect
// may race the lookup.
func (d *Directory) OccupantNames(roomID string) []string {
	occupants, ok := d.rooms[roomID]
	if !ok {
		return []string{}
	}

	names := make([]string, 0, len(occupants))
	for connectionID := range occupants {
		if session, ok := d.registry.Get(connectionID); ok {
			names = append(names, session.DisplayName)
		}
	}
	sort.Strings(names)
	return names
}

// RoomIDs returns every known room id, sorted.
func (d *Directory) RoomIDs() []string {
	ids := make([]string, 0, len(d.rooms))
	for roomID := range d.rooms {
		ids = append(ids, roomID)
	}
	sort.Strings(ids)
	return ids
}
