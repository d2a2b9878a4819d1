package chat_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/chat"
)

func TestDirectoryEnsure(t *testing.T) {
	directory := chat.NewDirectory(chat.NewRegistry())

	assert.True(t, directory.Ensure("general"))
	assert.False(t, directory.Ensure("general"))
	assert.True(t, directory.Ensure("dev"))

	assert.Equal(t, []string{"dev", "general"}, directory.RoomIDs())
}

func TestDirectoryOccupantsIdempotent(t *testing.T) {
	registry := chat.NewRegistry()
	directory := chat.NewDirectory(registry)
	directory.Ensure("general")

	_, err := registry.Register("c1", "alice", "general")
	require.NoError(t, err)

	directory.AddOccupant("general", "c1")
	directory.AddOccupant("general", "c1")
	assert.Equal(t, []string{"alice"}, directory.OccupantNames("general"))

	directory.RemoveOccupant("general", "c1")
	directory.RemoveOccupant("general", "c1")
	assert.Empty(t, directory.OccupantNames("general"))

	// Removing from a room that was never created is a no-op, not an error.
	directory.RemoveOccupant("nowhere", "c1")
}

func TestDirectoryOccupantNamesDropsStaleSessions(t *testing.T) {
	registry := chat.NewRegistry()
	directory := chat.NewDirectory(registry)
	directory.Ensure("general")

	_, err := registry.Register("c1", "alice", "general")
	require.NoError(t, err)
	_, err = registry.Register("c2", "bob", "general")
	require.NoError(t, err)
	directory.AddOccupant("general", "c1")
	directory.AddOccupant("general", "c2")

	// A session removed between occupancy update and name resolution is
	// silently dropped rather than surfaced.
	registry.Remove("c2")
	assert.Equal(t, []string{"alice"}, directory.OccupantNames("general"))
}

func TestDirectoryUnknownRoom(t *testing.T) {
	directory := chat.NewDirectory(chat.NewRegistry())

	assert.Empty(t, directory.OccupantNames("nowhere"))
	assert.Empty(t, directory.RoomIDs())

	// Adding to a room that does not exist is ignored; occupancy only ever
	// follows an Ensure.
	directory.AddOccupant("nowhere", "c1")
	assert.Empty(t, directory.RoomIDs())
}
