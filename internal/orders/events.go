package orders

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Wire message types.
const (
	TypeConnection        = "connection"
	TypeEcho              = "echo"
	TypeNewOrder          = "new-order"
	TypeOrderStatusUpdate = "order-status-update"
)

// Event is one of NewOrder or OrderStatusUpdate.
type Event interface {
	Kind() string
	Snapshot() Order
	sealed()
}

// NewOrder is published after a successful create.
type NewOrder struct{ Order Order }

// OrderStatusUpdate is published after a successful status/settlement patch.
type OrderStatusUpdate struct{ Order Order }

func (NewOrder) Kind() string { return TypeNewOrder }
func (e NewOrder) Snapshot() Order { return e.Order }
func (NewOrder) sealed() {}
func (OrderStatusUpdate) Kind() string { return TypeOrderStatusUpdate }
func (e OrderStatusUpdate) Snapshot() Order { return e.Order }
func (OrderStatusUpdate) sealed() {}

// Message is the JSON frame exchanged on the realtime connection.
type Message struct {
	Type    string          `json:"type"`
	Message string          `json:"message,omitempty"`
	Order   *Order          `json:"order,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

var ErrUnknownMessage = errors.New("unknown message type")

// EncodeEvent renders ev as a wire frame.
func EncodeEvent(ev Event) ([]byte, error) {
	var o Order
	switch e := ev.(type) {
	case NewOrder:
		o = e.Order
	case OrderStatusUpdate:
		o = e.Order
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownMessage, ev)
	}
	return json.Marshal(Message{Type: ev.Kind(), Order: &o})
}

// DecodeEvent parses an event frame. Non-event frames (connection, echo) return
// ErrUnknownMessage so callers can skip them.
func DecodeEvent(b []byte) (Event, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	switch m.Type {
	case TypeNewOrder, TypeOrderStatusUpdate:
		if m.Order == nil {
			return nil, fmt.Errorf("decode frame: %s without order", m.Type)
		}
		if m.Type == TypeNewOrder {
			return NewOrder{Order: *m.Order}, nil
		}
		return OrderStatusUpdate{Order: *m.Order}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, m.Type)
	}
}

func EncodeGreeting(text string) ([]byte, error) {
	return json.Marshal(Message{Type: TypeConnection, Message: text})
}

// EncodeEcho wraps a client payload. payload must be valid JSON.
func EncodeEcho(payload []byte) ([]byte, error) {
	if !json.Valid(payload) {
		return nil, errors.New("echo payload is not valid JSON")
	}
	return json.Marshal(Message{Type: TypeEcho, Data: json.RawMessage(payload)})
}
