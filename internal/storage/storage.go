package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"qchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrSelfRequest    = errors.New("cannot send a friend request to yourself")
	ErrAlreadyFriends = errors.New("users are already friends")
	ErrRequestExists  = errors.New("friend request already sent")
)

// ProfileStore resolves public user profiles.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}

// MessageStore persists random-chat messages.
type MessageStore interface {
	SaveMessage(ctx context.Context, msg *models.ChatHistory) error
	GetChatHistory(ctx context.Context, roomID string) ([]models.ChatHistory, error)
	DeleteChatHistory(ctx context.Context, roomID string) (int64, error)
}

// RoomStore keeps the audit trail of paired rooms.
type RoomStore interface {
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CloseRoom(ctx context.Context, roomID string) error
	GetActiveRooms(ctx context.Context) ([]models.ChatRoom, error)
}

// FriendStore records friend requests and answers friendship lookups.
type FriendStore interface {
	CreateFriendRequest(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error)
	AreFriends(ctx context.Context, userID, otherID string) (bool, error)
}

// Storage is everything the realtime core needs from the outside world.
type Storage interface {
	ProfileStore
	MessageStore
	RoomStore
	FriendStore
}

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client

	// ProfileTTL is how long a profile stays in the Redis cache. Zero disables caching.
	ProfileTTL time.Duration
}

// NewStorageService Constructor. rdb may be nil (admin CLI), which disables the cache.
func NewStorageService(db *gorm.DB, rdb *redis.Client, profileTTL time.Duration) *Service {
	return &Service{
		DB:         db,
		Redis:      rdb,
		ProfileTTL: profileTTL,
	}
}

// AutoMigrate creates the tables owned by the realtime core.
func (s *Service) AutoMigrate() error {
	return s.DB.AutoMigrate(
		&models.User{},
		&models.ChatRoom{},
		&models.ChatHistory{},
		&models.FriendRequest{},
	)
}

func profileKey(userID string) string {
	return "profile:" + userID
}

// GetProfile reads a profile through the Redis cache, falling back to PostgreSQL.
func (s *Service) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if cached, ok := s.cachedProfile(ctx, userID); ok {
		return cached, nil
	}

	var user models.User
	err := s.DB.WithContext(ctx).Select("id", "name", "profile_pic").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load profile %s: %w", userID, err)
	}

	profile := user.Profile()
	s.cacheProfile(ctx, &profile)
	return &profile, nil
}

func (s *Service) cachedProfile(ctx context.Context, userID string) (*models.Profile, bool) {
	if s.Redis == nil || s.ProfileTTL == 0 {
		return nil, false
	}

	raw, err := s.Redis.Get(ctx, profileKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		log.Printf("WARNING: profile cache read failed for %s: %v", userID, err)
		return nil, false
	}

	var profile models.Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		log.Printf("WARNING: corrupt cached profile for %s: %v", userID, err)
		return nil, false
	}
	return &profile, true
}

func (s *Service) cacheProfile(ctx context.Context, profile *models.Profile) {
	if s.Redis == nil || s.ProfileTTL == 0 {
		return
	}

	data, err := json.Marshal(profile)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, profileKey(profile.ID), data, s.ProfileTTL).Err(); err != nil {
		log.Printf("WARNING: profile cache write failed for %s: %v", profile.ID, err)
	}
}

// SaveRoom зберігає кімнату в PostgreSQL
func (s *Service) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	return s.DB.WithContext(ctx).Save(room).Error
}

// CloseRoom закриває кімнату, встановлюючи IsActive = false та EndedAt = time.Now()
func (s *Service) CloseRoom(ctx context.Context, roomID string) error {
	return s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ?", roomID).
		Updates(map[string]interface{}{
			"is_active": false,
			"ended_at":  gorm.Expr("NOW()"),
		}).Error
}

// GetActiveRooms повертає всі кімнати, які ще не закриті.
func (s *Service) GetActiveRooms(ctx context.Context) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	if err := s.DB.WithContext(ctx).Where("is_active = ?", true).Order("started_at asc").Find(&rooms).Error; err != nil {
		log.Printf("ERROR: Failed to retrieve active rooms: %v", err)
		return nil, err
	}
	return rooms, nil
}

// SaveMessage зберігає повідомлення в PostgreSQL; msg.ID та CreatedAt заповнює GORM.
func (s *Service) SaveMessage(ctx context.Context, msg *models.ChatHistory) error {
	if msg.Type == "" {
		msg.Type = "text"
	}
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		log.Printf("ERROR: Failed to save message for room %s: %v", msg.RoomID, err)
		return err
	}
	return nil
}

// GetChatHistory отримує історію повідомлень для кімнати
func (s *Service) GetChatHistory(ctx context.Context, roomID string) ([]models.ChatHistory, error) {
	var history []models.ChatHistory
	if err := s.DB.WithContext(ctx).Where("room_id = ?", roomID).Order("created_at asc").Find(&history).Error; err != nil {
		log.Printf("ERROR: Failed to get chat history for room %s: %v", roomID, err)
		return nil, err
	}
	return history, nil
}

// DeleteChatHistory permanently removes a room's messages and returns how many were deleted.
func (s *Service) DeleteChatHistory(ctx context.Context, roomID string) (int64, error) {
	result := s.DB.WithContext(ctx).Unscoped().Where("room_id = ?", roomID).Delete(&models.ChatHistory{})
	if result.Error != nil {
		log.Printf("ERROR: Failed to delete chat history for room %s: %v", roomID, result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// CreateFriendRequest stores a pending request unless the users are already
// friends or the same request is still pending.
func (s *Service) CreateFriendRequest(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error) {
	if senderID == receiverID {
		return nil, ErrSelfRequest
	}

	var request *models.FriendRequest
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sender models.User
		if err := tx.Select("id", "friends").Where("id = ?", senderID).First(&sender).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if sender.HasFriend(receiverID) {
			return ErrAlreadyFriends
		}

		var receivers int64
		if err := tx.Model(&models.User{}).Where("id = ?", receiverID).Count(&receivers).Error; err != nil {
			return err
		}
		if receivers == 0 {
			return ErrUserNotFound
		}

		var pending int64
		if err := tx.Model(&models.FriendRequest{}).
			Where("sender_id = ? AND receiver_id = ? AND status = ?", senderID, receiverID, models.FriendRequestPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return ErrRequestExists
		}

		request = &models.FriendRequest{
			SenderID:   senderID,
			ReceiverID: receiverID,
			Status:     models.FriendRequestPending,
		}
		return tx.Create(request).Error
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// AreFriends reports whether otherID is on userID's friend list.
func (s *Service) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	var user models.User
	err := s.DB.WithContext(ctx).Select("id", "friends").Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrUserNotFound
	}
	if err != nil {
		return false, fmt.Errorf("load friends of %s: %w", userID, err)
	}
	return user.HasFriend(otherID), nil
}
