package models

import "gorm.io/gorm"

// ChatHistory represents a saved random-chat message in the PostgreSQL database.
// The embedded gorm.Model provides ID, CreatedAt, UpdatedAt, and DeletedAt fields,
// which serve as the message ID and timestamps.
type ChatHistory struct {
	gorm.Model

	// RoomID is the identifier of the chat room where the message was sent.
	RoomID string `gorm:"type:uuid;not null;index:idx_room_msg"`
	// SenderID is the identity of the user who sent the message.
	SenderID string `gorm:"type:text;not null;index:idx_room_msg"`
	// Content is the message text.
	Content string `gorm:"type:text;not null"`
	// Type indicates the kind of message ("text").
	Type string `gorm:"type:text;not null"`
}

// RoomMessage converts the stored row into its wire form.
func (h *ChatHistory) RoomMessage() RoomMessage {
	return RoomMessage{
		ID:        h.ID,
		RoomID:    h.RoomID,
		SenderID:  h.SenderID,
		Content:   h.Content,
		Type:      h.Type,
		CreatedAt: h.CreatedAt,
	}
}
