package chat

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultRoom is the room every session starts in unless the service is
// configured otherwise.
const DefaultRoom = "general"

// Service coordinates the connection registry and the room directory and
// implements the session lifecycle and message routing rules. It owns both
// collections exclusively; callers never touch the maps directly, so the
// cross-collection invariants (a session's room always exists, occupancy
// mirrors sessions) cannot be violated from outside.
//
// A single mutex guards both collections jointly. Every operation runs to
// completion under it, including all of its emissions, so no two operations
// interleave against shared state. Emissions themselves are non-blocking
// enqueues on the Transport and never stall the critical section.
type Service struct {
	mu          sync.Mutex
	transport   Transport
	registry    *Registry
	rooms       *Directory
	logger      *slog.Logger
	now         func() time.Time
	defaultRoom string
}

// Option configures a Service.
type Option func(*Service)

// WithDefaultRoom overrides the room new sessions start in.
func WithDefaultRoom(roomID string) Option {
	return func(s *Service) {
		if roomID != "" {
			s.defaultRoom = roomID
		}
	}
}

// WithClock overrides the timestamp source for messages. Tests use this to
// make message stamps deterministic.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the chat core bound to a transport. The default room is
// created immediately and exists for the lifetime of the service, even with
// zero occupants.
func NewService(transport Transport, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Service{
		transport:   transport,
		logger:      logger,
		now:         time.Now,
		defaultRoom: DefaultRoom,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.registry = NewRegistry()
	s.rooms = NewDirectory(s.registry)
	s.rooms.Ensure(s.defaultRoom)
	return s
}

// JoinChat registers a display name for an unregistered connection and places
// it in the default room. On success it emits, in order: a global user_joined
// notification, then to the joiner only the online-user list, the room list,
// and a system welcome message, then a room_users_update to the default room.
// On failure the joiner alone receives an error_message and no state changes.
func (s *Service) JoinChat(connectionID, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registry.Get(connectionID); ok {
		s.reject(connectionID, ErrAlreadyRegistered)
		return ErrAlreadyRegistered
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		s.reject(connectionID, ErrEmptyName)
		return ErrEmptyName
	}

	if _, err := s.registry.Register(connectionID, displayName, s.defaultRoom); err != nil {
		s.reject(connectionID, err)
		return err
	}

	s.rooms.AddOccupant(s.defaultRoom, connectionID)
	s.transport.Subscribe(connectionID, s.defaultRoom)

	s.logger.Info("user joined chat",
		"connection_id", connectionID,
		"display_name", displayName,
		"room", s.defaultRoom,
	)

	s.transport.Broadcast(EventUserJoined, UserJoined{
		ConnectionID: connectionID,
		DisplayName:  displayName,
		RoomID:       s.defaultRoom,
	})
	s.transport.Unicast(connectionID, EventOnlineUsers, s.registry.All())
	s.transport.Unicast(connectionID, EventAvailableRooms, s.rooms.RoomIDs())
	s.transport.Unicast(connectionID, EventReceiveMessage, s.systemMessage(
		s.defaultRoom,
		fmt.Sprintf("Welcome to %s, %s!", s.defaultRoom, displayName),
	))
	s.transport.Multicast(s.defaultRoom, EventRoomUsersUpdate, RoomUsers{
		RoomID:       s.defaultRoom,
		DisplayNames: s.rooms.OccupantNames(s.defaultRoom),
	})
	return nil
}

// JoinRoom moves an active session into roomID, creating the room on first
// reference. The emission order is part of the contract: the old room hears
// the leave before anyone hears about a new room, the new room hears the join
// before the mover's confirmation. Rejoining the current room reproduces the
// same leave/join broadcasts.
func (s *Service) JoinRoom(connectionID, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.registry.Get(connectionID)
	if !ok {
		s.reject(connectionID, ErrNotRegistered)
		return ErrNotRegistered
	}

	previous := session.Room
	s.rooms.RemoveOccupant(previous, connectionID)
	s.transport.Unsubscribe(connectionID, previous)
	s.transport.Multicast(previous, EventRoomUsersUpdate, RoomUsers{
		RoomID:       previous,
		DisplayNames: s.rooms.OccupantNames(previous),
	})
	s.transport.Multicast(previous, EventReceiveMessage, s.systemMessage(
		previous,
		fmt.Sprintf("%s has left %s", session.DisplayName, previous),
	))

	if s.rooms.Ensure(roomID) {
		s.logger.Info("room created", "room", roomID, "created_by", session.DisplayName)
		s.transport.Broadcast(EventAvailableRooms, s.rooms.RoomIDs())
	}

	session.Room = roomID
	s.rooms.AddOccupant(roomID, connectionID)
	s.transport.Subscribe(connectionID, roomID)

	s.transport.Multicast(roomID, EventRoomUsersUpdate, RoomUsers{
		RoomID:       roomID,
		DisplayNames: s.rooms.OccupantNames(roomID),
	})
	s.transport.Multicast(roomID, EventReceiveMessage, s.systemMessage(
		roomID,
		fmt.Sprintf("%s has joined %s", session.DisplayName, roomID),
	))
	s.transport.Unicast(connectionID, EventRoomChanged, roomID)

	s.logger.Debug("room changed",
		"connection_id", connectionID,
		"from", previous,
		"to", roomID,
	)
	return nil
}

// Disconnect tears down a connection's session. It is always safe to call: a
// connection that never registered produces no state change and no emissions.
// Otherwise the session's room hears the leave, the session is removed, and
// every connection receives a user_disconnected notice.
func (s *Service) Disconnect(connectionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.registry.Get(connectionID)
	if !ok {
		return
	}

	room := session.Room
	s.rooms.RemoveOccupant(room, connectionID)
	s.transport.Unsubscribe(connectionID, room)
	s.transport.Multicast(room, EventRoomUsersUpdate, RoomUsers{
		RoomID:       room,
		DisplayNames: s.rooms.OccupantNames(room),
	})
	s.transport.Multicast(room, EventReceiveMessage, s.systemMessage(
		room,
		fmt.Sprintf("%s has left %s", session.DisplayName, room),
	))

	s.registry.Remove(connectionID)
	s.transport.Broadcast(EventUserDisconnected, connectionID)

	s.logger.Info("user disconnected",
		"connection_id", connectionID,
		"display_name", session.DisplayName,
	)
}

// SendRoomMessage delivers a message to every occupant of the sender's
// current room, the sender included. An unregistered sender receives a
// private error_message and nothing is broadcast.
func (s *Service) SendRoomMessage(connectionID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.registry.Get(connectionID)
	if !ok {
		s.reject(connectionID, ErrNotRegistered)
		return ErrNotRegistered
	}

	s.transport.Multicast(session.Room, EventReceiveMessage, Message{
		Sender:    session.DisplayName,
		Body:      body,
		Timestamp: s.now(),
		Room:      session.Room,
	})
	return nil
}

// SendPrivateMessage delivers one message to the recipient connection and an
// identical copy back to the sender: two unicasts, never a room multicast.
// The sender alone is told when it is unregistered or the recipient has no
// active session; the recipient never learns of a failed attempt.
func (s *Service) SendPrivateMessage(connectionID, recipientConnectionID, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.registry.Get(connectionID)
	if !ok {
		s.reject(connectionID, ErrNotRegistered)
		return ErrNotRegistered
	}

	recipient, ok := s.registry.Get(recipientConnectionID)
	if !ok {
		s.reject(connectionID, ErrRecipientOffline)
		return ErrRecipientOffline
	}

	message := Message{
		Sender:    session.DisplayName,
		Recipient: recipient.DisplayName,
		Body:      body,
		Timestamp: s.now(),
		IsPrivate: true,
	}
	s.transport.Unicast(recipientConnectionID, EventReceiveMessage, message)
	s.transport.Unicast(connectionID, EventReceiveMessage, message)
	return nil
}

// TypingStart relays a typing indicator to the other occupants of roomID.
func (s *Service) TypingStart(connectionID, roomID string) {
	s.relayTyping(connectionID, roomID, true)
}

// TypingStop relays the end of a typing indicator to the other occupants of
// roomID.
func (s *Service) TypingStop(connectionID, roomID string) {
	s.relayTyping(connectionID, roomID, false)
}

// relayTyping forwards a typing status to every occupant of the room except
// the typist. Typing signals are best-effort UX hints: an unregistered sender
// is silently ignored and no state is retained.
func (s *Service) relayTyping(connectionID, roomID string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.registry.Get(connectionID)
	if !ok {
		return
	}

	s.transport.MulticastExcept(roomID, connectionID, EventTypingStatus, TypingStatus{
		DisplayName: session.DisplayName,
		IsTyping:    isTyping,
		RoomID:      roomID,
	})
}

// reject reports a client error privately to the originating connection.
func (s *Service) reject(connectionID string, err error) {
	s.logger.Debug("rejected operation", "connection_id", connectionID, "reason", err)
	s.transport.Unicast(connectionID, EventError, err.Error())
}

// systemMessage builds a server-generated message scoped to a room.
func (s *Service) systemMessage(roomID, body string) Message {
	return Message{
		Sender:    SystemSender,
		Body:      body,
		Timestamp: s.now(),
		Room:      roomID,
	}
}
