// Package chat declares the named events and payload shapes exchanged with
// clients. Event names and field casing are part of the wire contract.
package chat

import "time"

// Inbound event names.
const (
	EventJoinChat           = "join_chat"
	EventJoinRoom           = "join_room"
	EventSendMessage        = "send_message"
	EventSendPrivateMessage = "send_private_message"
	EventTypingStart        = "typing_start"
	EventTypingStop         = "typing_stop"
)

// Outbound event names.
const (
	EventError            = "error_message"
	EventUserJoined       = "user_joined"
	EventOnlineUsers      = "online_users"
	EventAvailableRooms   = "available_rooms"
	EventReceiveMessage   = "receive_message"
	EventRoomUsersUpdate  = "room_users_update"
	EventRoomChanged      = "room_changed"
	EventTypingStatus     = "typing_status"
	EventUserDisconnected = "user_disconnected"
)

// SystemSender is the sender name stamped on server-generated messages such
// as the welcome text and the join/leave notices.
const SystemSender = "system"

// Message is the payload of receive_message events. Room messages carry Room;
// private messages carry Recipient and IsPrivate instead. Messages are
// transient and never stored.
type Message struct {
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
	Room      string    `json:"room,omitempty"`
	Recipient string    `json:"recipient,omitempty"`
	IsPrivate bool      `json:"isPrivate,omitempty"`
}

// Presence is one entry of the online_users payload.
type Presence struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	CurrentRoom  string `json:"currentRoom"`
}

// UserJoined is the payload of the global user_joined notification.
type UserJoined struct {
	ConnectionID string `json:"connectionId"`
	DisplayName  string `json:"displayName"`
	RoomID       string `json:"roomId"`
}

// RoomUsers is the payload of room_users_update broadcasts.
type RoomUsers struct {
	RoomID       string   `json:"roomId"`
	DisplayNames []string `json:"displayNames"`
}

// TypingStatus is the payload relayed to a room when an occupant starts or
// stops typing.
type TypingStatus struct {
	DisplayName string `json:"displayName"`
	IsTyping    bool   `json:"isTyping"`
	RoomID      string `json:"roomId"`
}
