package chathub_test

import (
	"context"

	"qchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	args := m.Called(ctx, userID)
	profile, _ := args.Get(0).(*models.Profile)
	return profile, args.Error(1)
}

func (m *MockStorage) SaveMessage(ctx context.Context, msg *models.ChatHistory) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockStorage) GetChatHistory(ctx context.Context, roomID string) ([]models.ChatHistory, error) {
	args := m.Called(ctx, roomID)
	history, _ := args.Get(0).([]models.ChatHistory)
	return history, args.Error(1)
}

func (m *MockStorage) DeleteChatHistory(ctx context.Context, roomID string) (int64, error) {
	args := m.Called(ctx, roomID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockStorage) CloseRoom(ctx context.Context, roomID string) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *MockStorage) GetActiveRooms(ctx context.Context) ([]models.ChatRoom, error) {
	args := m.Called(ctx)
	rooms, _ := args.Get(0).([]models.ChatRoom)
	return rooms, args.Error(1)
}

func (m *MockStorage) CreateFriendRequest(ctx context.Context, senderID, receiverID string) (*models.FriendRequest, error) {
	args := m.Called(ctx, senderID, receiverID)
	req, _ := args.Get(0).(*models.FriendRequest)
	return req, args.Error(1)
}

// withProfiles stubs GetProfile for every id with a profile named after it.
func (m *MockStorage) withProfiles(ids ...string) *MockStorage {
	for _, id := range ids {
		m.On("GetProfile", mock.Anything, id).Return(&models.Profile{ID: id, Name: "name-" + id}, nil).Maybe()
	}
	return m
}

// withRooms accepts every room audit write.
func (m *MockStorage) withRooms() *MockStorage {
	m.On("SaveRoom", mock.Anything, mock.AnythingOfType("*models.ChatRoom")).Return(nil).Maybe()
	m.On("CloseRoom", mock.Anything, mock.AnythingOfType("string")).Return(nil).Maybe()
	return m
}

func (m *MockStorage) AreFriends(ctx context.Context, userID, otherID string) (bool, error) {
	args := m.Called(ctx, userID, otherID)
	return args.Bool(0), args.Error(1)
}
