package domain

import "time"

// StreamModel is the GORM model for the streams table.
type StreamModel struct {
	ID            string    `gorm:"type:varchar(36);primaryKey"`
	Title         string    `gorm:"type:varchar(150);not null"`
	Description   string    `gorm:"type:text"`
	ImageURL      string    `gorm:"type:varchar(300)"`
	IsLive        bool      `gorm:"index;not null;default:false"`
	BroadcasterID string    `gorm:"type:varchar(36)"`
	CreatedAt     time.Time `gorm:"autoCreateTime"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for StreamModel.
func (StreamModel) TableName() string {
	return "streams"
}

// ToDomain converts StreamModel to domain Stream.
func (m *StreamModel) ToDomain() *Stream {
	return &Stream{
		ID:            m.ID,
		Title:         m.Title,
		Description:   m.Description,
		ImageURL:      m.ImageURL,
		IsLive:        m.IsLive,
		BroadcasterID: m.BroadcasterID,
		UpdatedAt:     m.UpdatedAt,
	}
}

// StreamToModel converts domain Stream to StreamModel.
func StreamToModel(s *Stream) *StreamModel {
	return &StreamModel{
		ID:            s.ID,
		Title:         s.Title,
		Description:   s.Description,
		ImageURL:      s.ImageURL,
		IsLive:        s.IsLive,
		BroadcasterID: s.BroadcasterID,
	}
}
