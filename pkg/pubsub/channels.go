package pubsub

import (
	"fmt"
	"strings"
)

// Channel naming for trusted out-of-band injection into relay rooms.
const (
	ChannelRoomTips = "relay:room:%s:tips"
	PatternRoomTips = "relay:room:*:tips"
)

// Event types carried on relay channels.
const (
	EventTipConfirmed = "tip_confirmed"
)

// RoomTipsChannel returns the channel a payment collaborator publishes confirmed tips to.
func RoomTipsChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomTips, roomID)
}

// RoomFromTipsChannel extracts the room id from a channel built by RoomTipsChannel.
func RoomFromTipsChannel(channel string) (string, bool) {
	const prefix, suffix = "relay:room:", ":tips"
	if len(channel) <= len(prefix)+len(suffix) ||
		!strings.HasPrefix(channel, prefix) || !strings.HasSuffix(channel, suffix) {
		return "", false
	}
	return channel[len(prefix) : len(channel)-len(suffix)], true
}

// TipConfirmedPayload is published after a payment has been verified.
type TipConfirmedPayload struct {
	Username string  `json:"username"`
	Amount   float64 `json:"amount"`
}
