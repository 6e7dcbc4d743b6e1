package domain

import "time"

// Stream is the durable record behind a room.
type Stream struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	IsLive        bool      `json:"is_live"`
	BroadcasterID string    `json:"broadcaster_id,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// StreamResponse is a stream as exposed by the HTTP API, overlaid with
// the relay's in-memory view of the room.
type StreamResponse struct {
	Stream
	ViewerCount int `json:"viewer_count"`
}

// DefaultStreams is the catalogue seeded into an empty registry.
func DefaultStreams() []Stream {
	return []Stream{
		{
			ID:          "1",
			Title:       "Uffizi Gallery",
			Description: "Exclusive night tour among Renaissance masterpieces.",
			ImageURL:    "https://images.unsplash.com/photo-1580226326847-e7b5c2d5c043",
		},
		{
			ID:          "2",
			Title:       "Pompeii Archaeological Park",
			Description: "Walking through the ruins of the eternal city at sunset.",
			ImageURL:    "https://images.unsplash.com/photo-1555661879-423a5383a674",
		},
		{
			ID:          "3",
			Title:       "Colosseum Arena",
			Description: "First-person visit inside the world's most famous amphitheater.",
			ImageURL:    "https://images.unsplash.com/photo-1552832230-c0197dd311b5",
		},
	}
}
