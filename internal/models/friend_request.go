package models

import "gorm.io/gorm"

// FriendRequestPending is the status of a request the receiver has not answered yet.
const FriendRequestPending = "pending"

// FriendRequest is a friendship invitation between two users.
type FriendRequest struct {
	gorm.Model

	SenderID   string `gorm:"type:text;not null;index:idx_friend_pair"`
	ReceiverID string `gorm:"type:text;not null;index:idx_friend_pair"`
	Status     string `gorm:"type:text;not null;default:pending"`
}
