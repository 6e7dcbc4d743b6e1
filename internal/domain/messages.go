package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// WebSocket message types from client.
const (
	MsgTypeJoinStream   = "join_stream"
	MsgTypeLeaveStream  = "leave_stream"
	MsgTypeStreamFrame  = "stream_frame"
	MsgTypeStatusChange = "stream_status_change"
	MsgTypeSendMessage  = "send_message"
	MsgTypeSendTip      = "send_tip"
	MsgTypePing         = "ping"
)

// WebSocket message types to client.
const (
	MsgTypeVideoUpdate  = "video_update"
	MsgTypeStatusUpdate = "status_update"
	MsgTypeNewMessage   = "new_message"
	MsgTypeNewTip       = "new_tip"
	MsgTypeError        = "error"
	MsgTypePong         = "pong"
)

// Stream status values carried by stream_status_change.
const (
	StatusLive    = "live"
	StatusOffline = "offline"
)

// Error codes
const (
	ErrCodeBadRequest = "BAD_REQUEST"
	ErrCodeForbidden  = "FORBIDDEN"
	ErrCodeNotFound   = "NOT_FOUND"
)

// BaseMessage is the base structure for all WebSocket messages.
type BaseMessage struct {
	Type string `json:"type"`
}

// RoomRef accepts a room id sent either as a JSON string or a JSON number.
type RoomRef string

func (r *RoomRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RoomRef(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("room id must be a string or number")
	}
	id, err := integralRoomID(n)
	if err != nil {
		return err
	}
	*r = RoomRef(strconv.FormatInt(id, 10))
	return nil
}

// integralRoomID maps 7, 7.0 and 7e0 to the same room.
func integralRoomID(n json.Number) (int64, error) {
	if id, err := n.Int64(); err == nil {
		return id, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("numeric room id must be an integer, got %s", n.String())
	}
	return int64(f), nil
}

// Amount accepts a JSON number or a numeric string.
type Amount float64

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("amount must be numeric")
		}
		*a = Amount(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*a = Amount(f)
	return nil
}

// Client -> Server messages

type JoinStreamMessage struct {
	Type   string  `json:"type"`
	RoomID RoomRef `json:"room_id"`
}

type LeaveStreamMessage struct {
	Type   string  `json:"type"`
	RoomID RoomRef `json:"room_id"`
}

type StreamFrameMessage struct {
	Type    string          `json:"type"`
	RoomID  RoomRef         `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

type StatusChangeMessage struct {
	Type   string  `json:"type"`
	RoomID RoomRef `json:"room_id"`
	Status string  `json:"status"`
}

type SendMessageMessage struct {
	Type    string  `json:"type"`
	RoomID  RoomRef `json:"room_id"`
	Message string  `json:"message"`
}

type SendTipMessage struct {
	Type   string  `json:"type"`
	RoomID RoomRef `json:"room_id"`
	Amount Amount  `json:"amount"`
}

// DecodeEvent turns a raw client message of the given type into a validated Event.
// Every shape problem is reported as ErrMalformedEvent.
func DecodeEvent(msgType string, data []byte) (Event, error) {
	var evt Event

	switch msgType {
	case MsgTypeJoinStream:
		var msg JoinStreamMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		evt = Join{RoomID: string(msg.RoomID)}

	case MsgTypeLeaveStream:
		var msg LeaveStreamMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		evt = Leave{RoomID: string(msg.RoomID)}

	case MsgTypeStreamFrame:
		var msg StreamFrameMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		evt = Frame{RoomID: string(msg.RoomID), Payload: msg.Payload}

	case MsgTypeStatusChange:
		var msg StatusChangeMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		switch msg.Status {
		case StatusLive:
			evt = StatusChange{RoomID: string(msg.RoomID), Live: true}
		case StatusOffline:
			evt = StatusChange{RoomID: string(msg.RoomID), Live: false}
		default:
			return nil, fmt.Errorf("%w: status must be %q or %q", ErrMalformedEvent, StatusLive, StatusOffline)
		}

	case MsgTypeSendMessage:
		var msg SendMessageMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		evt = ChatMessage{RoomID: string(msg.RoomID), Text: msg.Message}

	case MsgTypeSendTip:
		var msg SendTipMessage
		if err := unmarshal(data, &msg); err != nil {
			return nil, err
		}
		evt = Tip{RoomID: string(msg.RoomID), Amount: float64(msg.Amount)}

	default:
		return nil, fmt.Errorf("%w: unknown message type %q", ErrMalformedEvent, msgType)
	}

	if err := evt.Validate(); err != nil {
		return nil, err
	}
	return evt, nil
}

func unmarshal(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// Server -> Client messages

type VideoUpdateMessage struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id"`
	Payload json.RawMessage `json:"payload"`
}

type StatusUpdateMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"room_id"`
	IsLive bool   `json:"is_live"`
}

type NewMessageMessage struct {
	Type     string `json:"type"`
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

type NewTipMessage struct {
	Type     string  `json:"type"`
	RoomID   string  `json:"room_id"`
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type PongMessage struct {
	Type string `json:"type"`
}

func NewVideoUpdate(roomID string, payload json.RawMessage) *VideoUpdateMessage {
	return &VideoUpdateMessage{Type: MsgTypeVideoUpdate, RoomID: roomID, Payload: payload}
}

func NewStatusUpdate(roomID string, live bool) *StatusUpdateMessage {
	return &StatusUpdateMessage{Type: MsgTypeStatusUpdate, RoomID: roomID, IsLive: live}
}

func NewChatOut(roomID, username, text string) *NewMessageMessage {
	return &NewMessageMessage{Type: MsgTypeNewMessage, RoomID: roomID, Username: username, Message: text}
}

func NewTipOut(roomID, username string, amount float64) *NewTipMessage {
	return &NewTipMessage{Type: MsgTypeNewTip, RoomID: roomID, Username: username, Amount: amount}
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}
