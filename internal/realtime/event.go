package realtime

import (
	"encoding/json"
	"fmt"
)

// EventType tags a live board event.
type EventType string

const (
	EventConnected   EventType = "connected"
	EventCardMoved   EventType = "card_moved"
	EventCardUpdated EventType = "card_updated"
	EventCardCreated EventType = "card_created"
	EventCardDeleted EventType = "card_deleted"
	EventError       EventType = "error"
)

// Known reports whether t is one of the event tags the board stream emits.
func (t EventType) Known() bool {
	switch t {
	case EventConnected, EventCardMoved, EventCardUpdated, EventCardCreated, EventCardDeleted, EventError:
		return true
	default:
		return false
	}
}

// CardChange reports whether the event changes a card on the board.
func (t EventType) CardChange() bool {
	switch t {
	case EventCardMoved, EventCardUpdated, EventCardCreated, EventCardDeleted:
		return true
	default:
		return false
	}
}

// Event is one message received from the board stream.
type Event struct {
	Type EventType      `json:"type"`
	Data map[string]any `json:"data"`
}

// Message returns data.message, the human readable text of error events.
func (e Event) Message() string {
	if msg, ok := e.Data["message"].(string); ok {
		return msg
	}
	return ""
}

func decodeEvent(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("realtime.decodeEvent: %w", err)
	}
	if ev.Data == nil {
		ev.Data = map[string]any{}
	}
	return ev, nil
}

// heartbeatPayload is sent every heartbeat interval while the connection is open.
var heartbeatPayload = []byte(`{"type":"ping"}`) //nolint:gochecknoglobals // fixed wire payload

// Handlers receive dispatched events. Every field is optional.
// Handlers run on the client's dispatcher goroutine, one at a time,
// in the order events were received.
type Handlers struct {
	OnConnected   func(data map[string]any)
	OnCardMoved   func(data map[string]any)
	OnCardUpdated func(data map[string]any)
	OnCardCreated func(data map[string]any)
	OnCardDeleted func(data map[string]any)
	OnError       func(message string)
}
