package chat_test

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parleyhq/parley/internal/chat"
)

var fixedTime = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

// emission is one raw transport operation in the order the service issued it.
type emission struct {
	op      string // "unicast", "multicast", "multicast_except", "broadcast"
	target  string // connection id or room id
	except  string
	event   string
	payload any
}

// delivery is one event as seen by a single connection.
type delivery struct {
	event   string
	payload any
}

// fakeTransport records the ordered operations the service issues and expands
// them into per-connection inboxes, mirroring how the hub would address them.
type fakeTransport struct {
	conns map[string]bool
	subs  map[string]map[string]bool
	ops   []emission
	inbox map[string][]delivery
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		conns: make(map[string]bool),
		subs:  make(map[string]map[string]bool),
		inbox: make(map[string][]delivery),
	}
}

// connect declares a live connection, as the hub would on upgrade.
func (f *fakeTransport) connect(connectionID string) {
	f.conns[connectionID] = true
}

// drop simulates the hub removing a vanished connection before session
// teardown runs.
func (f *fakeTransport) drop(connectionID string) {
	delete(f.conns, connectionID)
	for _, members := range f.subs {
		delete(members, connectionID)
	}
}

func (f *fakeTransport) reset() {
	f.ops = nil
	f.inbox = make(map[string][]delivery)
}

func (f *fakeTransport) Unicast(connectionID, event string, payload any) {
	f.ops = append(f.ops, emission{op: "unicast", target: connectionID, event: event, payload: payload})
	if f.conns[connectionID] {
		f.inbox[connectionID] = append(f.inbox[connectionID], delivery{event, payload})
	}
}

func (f *fakeTransport) Multicast(roomID, event string, payload any) {
	f.ops = append(f.ops, emission{op: "multicast", target: roomID, event: event, payload: payload})
	for connectionID := range f.subs[roomID] {
		f.inbox[connectionID] = append(f.inbox[connectionID], delivery{event, payload})
	}
}

func (f *fakeTransport) MulticastExcept(roomID, exceptConnectionID, event string, payload any) {
	f.ops = append(f.ops, emission{op: "multicast_except", target: roomID, except: exceptConnectionID, event: event, payload: payload})
	for connectionID := range f.subs[roomID] {
		if connectionID == exceptConnectionID {
			continue
		}
		f.inbox[connectionID] = append(f.inbox[connectionID], delivery{event, payload})
	}
}

func (f *fakeTransport) Broadcast(event string, payload any) {
	f.ops = append(f.ops, emission{op: "broadcast", event: event, payload: payload})
	for connectionID := range f.conns {
		f.inbox[connectionID] = append(f.inbox[connectionID], delivery{event, payload})
	}
}

func (f *fakeTransport) Subscribe(connectionID, roomID string) {
	members, ok := f.subs[roomID]
	if !ok {
		members = make(map[string]bool)
		f.subs[roomID] = members
	}
	members[connectionID] = true
}

func (f *fakeTransport) Unsubscribe(connectionID, roomID string) {
	if members, ok := f.subs[roomID]; ok {
		delete(members, connectionID)
	}
}

// received returns the deliveries of one event type seen by a connection.
func (f *fakeTransport) received(connectionID, event string) []delivery {
	var matched []delivery
	for _, d := range f.inbox[connectionID] {
		if d.event == event {
			matched = append(matched, d)
		}
	}
	return matched
}

func newTestService(t *testing.T) (*chat.Service, *fakeTransport) {
	t.Helper()
	transport := newFakeTransport()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	service := chat.NewService(transport, logger, chat.WithClock(func() time.Time { return fixedTime }))
	return service, transport
}

// join connects and registers a user, then clears the recorded traffic so a
// test can assert on the operation under test alone.
func join(t *testing.T, service *chat.Service, transport *fakeTransport, connectionID, name string) {
	t.Helper()
	transport.connect(connectionID)
	require.NoError(t, service.JoinChat(connectionID, name))
	transport.reset()
}

func TestJoinChatDistinctNamesAllSucceed(t *testing.T) {
	service, transport := newTestService(t)

	names := []string{"alice", "bob", "carol", "dave"}
	for i, name := range names {
		connectionID := string(rune('1' + i))
		transport.connect(connectionID)
		require.NoError(t, service.JoinChat(connectionID, name))
	}
}

func TestJoinChatDuplicateNameRejected(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")

	transport.connect("c2")
	err := service.JoinChat("c2", "alice")
	require.ErrorIs(t, err, chat.ErrNameTaken)

	// The rejected joiner alone hears about it, and no session state changed.
	errors := transport.received("c2", chat.EventError)
	require.Len(t, errors, 1)
	assert.Empty(t, transport.received("c1", chat.EventError))
	assert.Empty(t, transport.received("c1", chat.EventUserJoined))

	// The name stays bound to the original session.
	transport.reset()
	require.NoError(t, service.JoinChat("c2", "alice2"))
}

func TestJoinChatNameMatchingIsCaseSensitive(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")

	transport.connect("c2")
	require.NoError(t, service.JoinChat("c2", "Alice"))
}

func TestJoinChatEmptyNameRejected(t *testing.T) {
	service, transport := newTestService(t)

	transport.connect("c1")
	err := service.JoinChat("c1", "   ")
	require.ErrorIs(t, err, chat.ErrEmptyName)

	require.Len(t, transport.received("c1", chat.EventError), 1)
	assert.Empty(t, transport.received("c1", chat.EventUserJoined))
	assert.Empty(t, transport.received("c1", chat.EventOnlineUsers))
}

func TestJoinChatSecondJoinRejected(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")

	err := service.JoinChat("c1", "alice-again")
	require.ErrorIs(t, err, chat.ErrAlreadyRegistered)
	require.Len(t, transport.received("c1", chat.EventError), 1)
}

func TestJoinChatEmissionOrder(t *testing.T) {
	service, transport := newTestService(t)

	transport.connect("c1")
	require.NoError(t, service.JoinChat("c1", "alice"))

	require.Len(t, transport.ops, 5)

	assert.Equal(t, "broadcast", transport.ops[0].op)
	assert.Equal(t, chat.EventUserJoined, transport.ops[0].event)
	joined := transport.ops[0].payload.(chat.UserJoined)
	assert.Equal(t, chat.UserJoined{ConnectionID: "c1", DisplayName: "alice", RoomID: chat.DefaultRoom}, joined)

	assert.Equal(t, "unicast", transport.ops[1].op)
	assert.Equal(t, chat.EventOnlineUsers, transport.ops[1].event)
	assert.Equal(t, "c1", transport.ops[1].target)

	assert.Equal(t, "unicast", transport.ops[2].op)
	assert.Equal(t, chat.EventAvailableRooms, transport.ops[2].event)
	assert.Equal(t, []string{chat.DefaultRoom}, transport.ops[2].payload)

	assert.Equal(t, "unicast", transport.ops[3].op)
	assert.Equal(t, chat.EventReceiveMessage, transport.ops[3].event)
	welcome := transport.ops[3].payload.(chat.Message)
	assert.Equal(t, chat.SystemSender, welcome.Sender)
	assert.Equal(t, chat.DefaultRoom, welcome.Room)
	assert.Equal(t, fixedTime, welcome.Timestamp)

	assert.Equal(t, "multicast", transport.ops[4].op)
	assert.Equal(t, chat.EventRoomUsersUpdate, transport.ops[4].event)
	assert.Equal(t, chat.DefaultRoom, transport.ops[4].target)
}

func TestJoinChatOnlineUsersSnapshot(t *testing.T) {
	service, transport := newTestService(t)

	transport.connect("c1")
	require.NoError(t, service.JoinChat("c1", "alice"))

	snapshots := transport.received("c1", chat.EventOnlineUsers)
	require.Len(t, snapshots, 1)
	users := snapshots[0].payload.([]chat.Presence)
	require.Len(t, users, 1)
	assert.Equal(t, chat.Presence{ConnectionID: "c1", DisplayName: "alice", CurrentRoom: chat.DefaultRoom}, users[0])
}

func TestJoinRoomMovesBetweenRooms(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")
	join(t, service, transport, "c2", "bob")

	require.NoError(t, service.JoinRoom("c2", "dev"))

	// Leave before create, create before join, confirmation last.
	require.Len(t, transport.ops, 6)
	assert.Equal(t, chat.EventRoomUsersUpdate, transport.ops[0].event)
	assert.Equal(t, chat.DefaultRoom, transport.ops[0].target)
	assert.Equal(t, chat.EventReceiveMessage, transport.ops[1].event)
	assert.Equal(t, chat.DefaultRoom, transport.ops[1].target)
	assert.Equal(t, "broadcast", transport.ops[2].op)
	assert.Equal(t, chat.EventAvailableRooms, transport.ops[2].event)
	assert.Equal(t, chat.EventRoomUsersUpdate, transport.ops[3].event)
	assert.Equal(t, "dev", transport.ops[3].target)
	assert.Equal(t, chat.EventReceiveMessage, transport.ops[4].event)
	assert.Equal(t, "dev", transport.ops[4].target)
	assert.Equal(t, "unicast", transport.ops[5].op)
	assert.Equal(t, chat.EventRoomChanged, transport.ops[5].event)
	assert.Equal(t, "c2", transport.ops[5].target)

	// Old room no longer lists the mover; the new room does.
	oldUpdate := transport.ops[0].payload.(chat.RoomUsers)
	assert.Equal(t, []string{"alice"}, oldUpdate.DisplayNames)
	newUpdate := transport.ops[3].payload.(chat.RoomUsers)
	assert.Equal(t, []string{"bob"}, newUpdate.DisplayNames)

	// Exactly one room_changed, delivered to the mover only.
	changed := transport.received("c2", chat.EventRoomChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, "dev", changed[0].payload)
	assert.Empty(t, transport.received("c1", chat.EventRoomChanged))

	// The room list announcement reached everyone.
	rooms := transport.received("c1", chat.EventAvailableRooms)
	require.Len(t, rooms, 1)
	assert.ElementsMatch(t, []string{chat.DefaultRoom, "dev"}, rooms[0].payload)
}

func TestJoinRoomExistingRoomNotAnnounced(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")
	join(t, service, transport, "c2", "bob")

	require.NoError(t, service.JoinRoom("c1", "dev"))
	transport.reset()

	require.NoError(t, service.JoinRoom("c2", "dev"))

	// No available_rooms broadcast on a join to a known room.
	for _, op := range transport.ops {
		assert.NotEqual(t, chat.EventAvailableRooms, op.event)
	}
}

func TestJoinRoomNotRegistered(t *testing.T) {
	service, transport := newTestService(t)

	transport.connect("c1")
	err := service.JoinRoom("c1", "dev")
	require.ErrorIs(t, err, chat.ErrNotRegistered)

	require.Len(t, transport.ops, 1)
	require.Len(t, transport.received("c1", chat.EventError), 1)
}

func TestJoinRoomRejoinSameRoom(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")

	require.NoError(t, service.JoinRoom("c1", "dev"))
	transport.reset()

	// Rejoining the current room replays the leave/join broadcast pair.
	require.NoError(t, service.JoinRoom("c1", "dev"))

	require.Len(t, transport.ops, 5)
	assert.Equal(t, chat.EventRoomUsersUpdate, transport.ops[0].event)
	assert.Equal(t, "dev", transport.ops[0].target)
	assert.Equal(t, chat.EventReceiveMessage, transport.ops[1].event)
	assert.Equal(t, chat.EventRoomUsersUpdate, transport.ops[2].event)
	assert.Equal(t, "dev", transport.ops[2].target)
	assert.Equal(t, chat.EventReceiveMessage, transport.ops[3].event)
	assert.Equal(t, chat.EventRoomChanged, transport.ops[4].event)

	// Membership is unchanged: still exactly one occupancy.
	final := transport.ops[2].payload.(chat.RoomUsers)
	assert.Equal(t, []string{"alice"}, final.DisplayNames)
}

func TestSendRoomMessageDeliveredToRoom(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")
	join(t, service, transport, "c2", "bob")

	require.NoError(t, service.SendRoomMessage("c1", "hello"))

	for _, connectionID := range []string{"c1", "c2"} {
		messages := transport.received(connectionID, chat.EventReceiveMessage)
		require.Len(t, messages, 1, "connection %s", connectionID)
		message := messages[0].payload.(chat.Message)
		assert.Equal(t, "alice", message.Sender)
		assert.Equal(t, "hello", message.Body)
		assert.Equal(t, chat.DefaultRoom, message.Room)
		assert.Equal(t, fixedTime, message.Timestamp)
		assert.False(t, message.IsPrivate)
	}
}

func TestSendRoomMessageNotRegistered(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")

	transport.connect("c2")
	err := service.SendRoomMessage("c2", "hello")
	require.ErrorIs(t, err, chat.ErrNotRegistered)

	require.Len(t, transport.received("c2", chat.EventError), 1)
	assert.Empty(t, transport.received("c1", chat.EventReceiveMessage))
}

func TestSendPrivateMessage(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")
	join(t, service, transport, "c2", "bob")

	require.NoError(t, service.SendPrivateMessage("c1", "c2", "hi"))

	// Exactly two deliveries, one per party, identical contents.
	var copies []chat.Message
	for _, connectionID := range []string{"c1", "c2"} {
		messages := transport.received(connectionID, chat.EventReceiveMessage)
		require.Len(t, messages, 1, "connection %s", connectionID)
		copies = append(copies, messages[0].payload.(chat.Message))
	}
	assert.Equal(t, copies[0], copies[1])
	assert.Equal(t, "alice", copies[0].Sender)
	assert.Equal(t, "bob", copies[0].Recipient)
	assert.Equal(t, "hi", copies[0].Body)
	assert.True(t, copies[0].IsPrivate)
	assert.Empty(t, copies[0].Room)
}

func TestSendPrivateMessageRecipientOffline(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")

	err := service.SendPrivateMessage("c1", "ghost", "hi")
	require.ErrorIs(t, err, chat.ErrRecipientOffline)

	require.Len(t, transport.received("c1", chat.EventError), 1)
	assert.Empty(t, transport.received("c1", chat.EventReceiveMessage))
}

func TestTypingRelayExcludesSender(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")
	join(t, service, transport, "c2", "bob")
	join(t, service, transport, "c3", "carol")

	service.TypingStart("c1", chat.DefaultRoom)

	assert.Empty(t, transport.received("c1", chat.EventTypingStatus))
	for _, connectionID := range []string{"c2", "c3"} {
		statuses := transport.received(connectionID, chat.EventTypingStatus)
		require.Len(t, statuses, 1, "connection %s", connectionID)
		status := statuses[0].payload.(chat.TypingStatus)
		assert.Equal(t, chat.TypingStatus{DisplayName: "alice", IsTyping: true, RoomID: chat.DefaultRoom}, status)
	}

	transport.reset()
	service.TypingStop("c1", chat.DefaultRoom)

	statuses := transport.received("c2", chat.EventTypingStatus)
	require.Len(t, statuses, 1)
	assert.False(t, statuses[0].payload.(chat.TypingStatus).IsTyping)
}

func TestTypingFromUnregisteredIsSilent(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")

	transport.connect("c2")
	service.TypingStart("c2", chat.DefaultRoom)

	assert.Empty(t, transport.ops)
}

func TestDisconnectUnregisteredIsNoOp(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")

	transport.connect("c2")
	service.Disconnect("c2")

	assert.Empty(t, transport.ops)
}

func TestDisconnectActiveSession(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")
	join(t, service, transport, "c2", "bob")

	transport.drop("c2")
	service.Disconnect("c2")

	// Room update and leave notice to the room, then the global notice.
	require.Len(t, transport.ops, 3)
	assert.Equal(t, chat.EventRoomUsersUpdate, transport.ops[0].event)
	update := transport.ops[0].payload.(chat.RoomUsers)
	assert.Equal(t, []string{"alice"}, update.DisplayNames)
	assert.Equal(t, chat.EventReceiveMessage, transport.ops[1].event)
	assert.Equal(t, "broadcast", transport.ops[2].op)
	assert.Equal(t, chat.EventUserDisconnected, transport.ops[2].event)
	assert.Equal(t, "c2", transport.ops[2].payload)

	// The display name is free again.
	transport.reset()
	transport.connect("c3")
	require.NoError(t, service.JoinChat("c3", "bob"))
}

func TestEndToEndScenario(t *testing.T) {
	service, transport := newTestService(t)
	join(t, service, transport, "c1", "alice")
	join(t, service, transport, "c2", "bob")

	// Alice posts in the default room; bob receives it.
	require.NoError(t, service.SendRoomMessage("c1", "hello"))
	messages := transport.received("c2", chat.EventReceiveMessage)
	require.Len(t, messages, 1)
	message := messages[0].payload.(chat.Message)
	assert.Equal(t, "alice", message.Sender)
	assert.Equal(t, "hello", message.Body)
	assert.Equal(t, chat.DefaultRoom, message.Room)

	// Bob switches to an auto-created room; everyone hears about it.
	transport.reset()
	require.NoError(t, service.JoinRoom("c2", "dev"))
	for _, connectionID := range []string{"c1", "c2"} {
		rooms := transport.received(connectionID, chat.EventAvailableRooms)
		require.Len(t, rooms, 1, "connection %s", connectionID)
		assert.Contains(t, rooms[0].payload.([]string), "dev")
	}

	// Alice, still in the default room, does not see bob's dev-room traffic.
	transport.reset()
	require.NoError(t, service.SendRoomMessage("c2", "dev talk"))
	assert.Empty(t, transport.received("c1", chat.EventReceiveMessage))
	bobMessages := transport.received("c2", chat.EventReceiveMessage)
	require.Len(t, bobMessages, 1)
	assert.Equal(t, "dev talk", bobMessages[0].payload.(chat.Message).Body)
}
