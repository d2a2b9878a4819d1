// Package server coordinates client connections and event delivery for the
// Parley WebSocket transport via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/parleyhq/parley/internal/chat"
)

// inboundEvent is a decoded wire frame awaiting dispatch, paired with the
// client that produced it.
type inboundEvent struct {
	client   *Client
	envelope Envelope
}

// Hub owns every live client connection and implements the chat.Transport
// addressing model: unicast by connection-id, multicast by room label, and
// global broadcast. Inbound events are processed one at a time by the Run
// loop, so each chat operation completes, including all of its emissions,
// before the next begins.
type Hub struct {
	clients    map[string]*Client
	rooms      map[string]map[string]*Client
	inbound    chan inboundEvent
	register   chan *Client
	unregister chan *Client
	chat       *chat.Service
	logger     *slog.Logger
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub with its channels and connection maps initialized.
// The chat core is bound later by Start, once configuration is active.
func NewHub() *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[string]*Client),
		inbound:    make(chan inboundEvent),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     slog.Default(),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

var hub = NewHub()

// Start binds the chat core to the hub using the active configuration and
// launches the event loop. It must be called before clients connect.
func (h *Hub) Start(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	h.logger = logger
	h.chat = chat.NewService(h, logger.With("component", "chat"),
		chat.WithDefaultRoom(currentConfig().DefaultRoom))

	go h.Run()
}

// Run is the hub's main event loop: client registration, unregistration, and
// inbound event dispatch. Exactly one inbound event is handled at a time.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client.id] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("client connected",
				"connection_id", client.id,
				"remote_addr", client.addr,
				"total_clients", clientCount,
			)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.removeClient(client)

		case ev := <-h.inbound:
			h.dispatch(ev)
		}
	}
}

// removeClient drops a client from the connection and room maps, tears down
// its session, and closes its outbound buffer. The hub lock is released
// before the chat core runs so session teardown can emit to the remaining
// clients.
func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	for _, members := range h.rooms {
		delete(members, client.id)
	}
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.chat.Disconnect(client.id)
	close(client.send)
	h.logger.Info("client disconnected",
		"connection_id", client.id,
		"remote_addr", client.addr,
		"total_clients", clientCount,
	)
}

// dispatch decodes the event payload and invokes the matching chat operation.
// A malformed payload is logged and dropped; the chat core itself reports
// client-state errors back to the sender.
func (h *Hub) dispatch(ev inboundEvent) {
	client, envelope := ev.client, ev.envelope

	switch envelope.Event {
	case chat.EventJoinChat:
		var displayName string
		if err := json.Unmarshal(envelope.Data, &displayName); err != nil {
			h.invalidPayload(client, envelope.Event, err)
			return
		}
		_ = h.chat.JoinChat(client.id, displayName)

	case chat.EventJoinRoom:
		var roomID string
		if err := json.Unmarshal(envelope.Data, &roomID); err != nil {
			h.invalidPayload(client, envelope.Event, err)
			return
		}
		_ = h.chat.JoinRoom(client.id, roomID)

	case chat.EventSendMessage:
		var payload messagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			h.invalidPayload(client, envelope.Event, err)
			return
		}
		_ = h.chat.SendRoomMessage(client.id, payload.Body)

	case chat.EventSendPrivateMessage:
		var payload privateMessagePayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			h.invalidPayload(client, envelope.Event, err)
			return
		}
		_ = h.chat.SendPrivateMessage(client.id, payload.RecipientConnectionID, payload.Body)

	case chat.EventTypingStart, chat.EventTypingStop:
		var roomID string
		if err := json.Unmarshal(envelope.Data, &roomID); err != nil {
			h.invalidPayload(client, envelope.Event, err)
			return
		}
		if envelope.Event == chat.EventTypingStart {
			h.chat.TypingStart(client.id, roomID)
		} else {
			h.chat.TypingStop(client.id, roomID)
		}

	default:
		h.logger.Warn("unknown event",
			"connection_id", client.id,
			"event", envelope.Event,
		)
	}
}

func (h *Hub) invalidPayload(client *Client, event string, err error) {
	h.logger.Warn("invalid event payload",
		"connection_id", client.id,
		"event", event,
		"error", err,
	)
}

// Unicast delivers an event to one connection. Unknown connection-ids are
// silently dropped.
func (h *Hub) Unicast(connectionID, event string, payload any) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}

	h.mutex.RLock()
	client := h.clients[connectionID]
	h.mutex.RUnlock()

	if client != nil {
		h.safeSend(client, frame)
	}
}

// Multicast delivers an event to every connection subscribed to roomID.
func (h *Hub) Multicast(roomID, event string, payload any) {
	h.multicast(roomID, "", event, payload)
}

// MulticastExcept delivers an event to every connection subscribed to roomID
// except the named one.
func (h *Hub) MulticastExcept(roomID, exceptConnectionID, event string, payload any) {
	h.multicast(roomID, exceptConnectionID, event, payload)
}

func (h *Hub) multicast(roomID, exceptConnectionID, event string, payload any) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}

	for _, client := range h.roomSnapshot(roomID) {
		if client.id == exceptConnectionID {
			continue
		}
		h.safeSend(client, frame)
	}
}

// Broadcast delivers an event to every connection.
func (h *Hub) Broadcast(event string, payload any) {
	frame, err := encodeEvent(event, payload)
	if err != nil {
		h.logger.Error("failed to encode event", "event", event, "error", err)
		return
	}

	for _, client := range h.clientSnapshot() {
		h.safeSend(client, frame)
	}
}

// Subscribe adds a connection to a room label for multicast addressing.
func (h *Hub) Subscribe(connectionID, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.clients[connectionID]
	if !ok {
		return
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[connectionID] = client
}

// Unsubscribe removes a connection from a room label. Removing a
// non-subscriber is a no-op.
func (h *Hub) Unsubscribe(connectionID, roomID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, connectionID)
	}
}

// safeSend enqueues a frame on the client's outbound buffer without ever
// blocking. A full buffer or a departed client drops the frame; one failed
// destination never aborts delivery to the rest of a multicast.
func (h *Hub) safeSend(client *Client, frame []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("recovered from panic in safeSend", "panic", r)
		}
	}()

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client.id]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		h.logger.Debug("dropping frame for slow client", "connection_id", client.id)
		return false
	}
}

func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) roomSnapshot(roomID string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	members := h.rooms[roomID]
	clients := make([]*Client, 0, len(members))
	for _, client := range members {
		clients = append(clients, client)
	}
	return clients
}

// shutdownClients closes every active client connection.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	clients := h.clientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
				h.logger.Warn("error closing client connection",
					"connection_id", client.id,
					"error", err,
				)
			}
		}
	}

	h.logger.Info("closed client connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for the event
// loop and the client pump goroutines to finish, or for the timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	finished := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached; some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
