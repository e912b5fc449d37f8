package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq" // Необхідний для pq.StringArray
	"gorm.io/gorm"
)

// User is the account row owned by the auth service.
// The realtime core only reads it to build public profiles and to check friendships.
type User struct {
	ID        string         `gorm:"primaryKey" json:"id"`
	Name      string         `gorm:"uniqueIndex;not null" json:"name"`
	Email     string         `gorm:"uniqueIndex" json:"-"`
	AvatarURL string         `gorm:"column:profile_pic" json:"profile_pic"`
	Friends   pq.StringArray `gorm:"type:text[]" json:"friends"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// BeforeCreate - це хук GORM, який викликається перед створенням запису.
// Він генерує новий UUID для користувача, якщо ID ще не встановлено.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Profile returns the public part of the user shown to partners and callees.
func (u *User) Profile() Profile {
	return Profile{ID: u.ID, Name: u.Name, AvatarURL: u.AvatarURL}
}

// HasFriend reports whether userID is already in the friend list.
func (u *User) HasFriend(userID string) bool {
	for _, id := range u.Friends {
		if id == userID {
			return true
		}
	}
	return false
}

// Profile is the public user card attached to pairing and call notifications.
type Profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}
