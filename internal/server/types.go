// Package server defines the wire envelope shared by client and hub logic.
package server

import (
	"encoding/json"
	"strings"
)

// Envelope is the JSON frame exchanged over the WebSocket in both directions:
// a named event plus an event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// messagePayload is the data of an inbound send_message event.
type messagePayload struct {
	Body string `json:"body"`
}

// privateMessagePayload is the data of an inbound send_private_message event.
type privateMessagePayload struct {
	RecipientConnectionID string `json:"recipientConnectionId"`
	Body                  string `json:"body"`
}

// encodeEvent marshals an outbound event into its wire envelope.
func encodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: data})
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
