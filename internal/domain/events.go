package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// EventType tags the variants of Event.
type EventType string

const (
	EventJoin         EventType = "join"
	EventLeave        EventType = "leave"
	EventFrame        EventType = "frame"
	EventStatusChange EventType = "status_change"
	EventChatMessage  EventType = "chat_message"
	EventTip          EventType = "tip"
)

// Event is an inbound relay event. The set of implementations is closed.
type Event interface {
	Type() EventType
	Room() string
	Validate() error
	sealed()
}

// Join subscribes the connection to a room.
type Join struct {
	RoomID string
}

// Leave unsubscribes the connection from a room.
type Leave struct {
	RoomID string
}

// Frame carries one opaque video frame from the room's broadcaster.
type Frame struct {
	RoomID  string
	Payload json.RawMessage
}

// StatusChange asks to flip the room between live and offline.
type StatusChange struct {
	RoomID string
	Live   bool
}

// ChatMessage is a chat line posted to a room.
type ChatMessage struct {
	RoomID string
	Text   string
}

// Tip is a donation announcement. Amount is in the payment currency's major unit.
type Tip struct {
	RoomID string
	Amount float64
}

func (Join) Type() EventType         { return EventJoin }
func (Leave) Type() EventType        { return EventLeave }
func (Frame) Type() EventType        { return EventFrame }
func (StatusChange) Type() EventType { return EventStatusChange }
func (ChatMessage) Type() EventType  { return EventChatMessage }
func (Tip) Type() EventType          { return EventTip }

func (e Join) Room() string         { return e.RoomID }
func (e Leave) Room() string        { return e.RoomID }
func (e Frame) Room() string        { return e.RoomID }
func (e StatusChange) Room() string { return e.RoomID }
func (e ChatMessage) Room() string  { return e.RoomID }
func (e Tip) Room() string          { return e.RoomID }

func (Join) sealed()         {}
func (Leave) sealed()        {}
func (Frame) sealed()        {}
func (StatusChange) sealed() {}
func (ChatMessage) sealed()  {}
func (Tip) sealed()          {}

func (e Join) Validate() error         { return validateRoom(e.RoomID) }
func (e Leave) Validate() error        { return validateRoom(e.RoomID) }
func (e StatusChange) Validate() error { return validateRoom(e.RoomID) }

func (e Frame) Validate() error {
	if err := validateRoom(e.RoomID); err != nil {
		return err
	}
	p := bytes.TrimSpace(e.Payload)
	if len(p) == 0 || bytes.Equal(p, []byte("null")) || bytes.Equal(p, []byte(`""`)) {
		return fmt.Errorf("%w: empty frame payload", ErrMalformedEvent)
	}
	return nil
}

func (e ChatMessage) Validate() error {
	if err := validateRoom(e.RoomID); err != nil {
		return err
	}
	if strings.TrimSpace(e.Text) == "" {
		return fmt.Errorf("%w: empty chat message", ErrMalformedEvent)
	}
	return nil
}

func (e Tip) Validate() error {
	if err := validateRoom(e.RoomID); err != nil {
		return err
	}
	if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount <= 0 {
		return fmt.Errorf("%w: tip amount must be positive", ErrMalformedEvent)
	}
	return nil
}

func validateRoom(roomID string) error {
	if strings.TrimSpace(roomID) == "" {
		return fmt.Errorf("%w: missing room_id", ErrMalformedEvent)
	}
	return nil
}
