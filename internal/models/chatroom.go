package models

import "time"

// ChatRoom is the audit row of one anonymous chat session.
// The live room state is kept in memory by the matcher; this row only records
// who was paired and when the room opened and closed.
type ChatRoom struct {
	// RoomID is the opaque room identifier (UUID) minted at pairing time.
	RoomID string `gorm:"primaryKey"`
	// User1ID is the member that was waiting in the queue.
	User1ID string `gorm:"index"`
	// User2ID is the member whose request produced the match.
	User2ID string `gorm:"index"`
	// IsActive indicates whether the chat room is currently open.
	IsActive bool
	// StartedAt is the timestamp when the chat room was created.
	StartedAt time.Time
	// EndedAt is set when the room is closed.
	EndedAt *time.Time
}
