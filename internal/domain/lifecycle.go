package domain

import "time"

// Lifecycle event types.
const (
	LifecycleStreamLive    = "stream_live"
	LifecycleStreamOffline = "stream_offline"
)

// LifecycleEvent records a durable live transition of a stream.
type LifecycleEvent struct {
	Type          string    `json:"type"`
	RoomID        string    `json:"room_id"`
	BroadcasterID string    `json:"broadcaster_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewLifecycleEvent(roomID string, live bool, broadcasterID string) *LifecycleEvent {
	typ := LifecycleStreamOffline
	if live {
		typ = LifecycleStreamLive
	}
	return &LifecycleEvent{
		Type:          typ,
		RoomID:        roomID,
		BroadcasterID: broadcasterID,
		Timestamp:     time.Now().UTC(),
	}
}
