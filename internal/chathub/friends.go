package chathub

import (
	"context"
	"log"

	"qchat/backend/internal/models"
)

// sendFriendRequest records a pending request and notifies the receiver if it is online.
func (m *ManagerService) sendFriendRequest(from, to string) {
	if to == "" || to == from {
		m.reply(from, models.EventError, ErrInvalidPayload)
		return
	}

	store := m.Storage
	m.async(func(ctx context.Context) func() {
		req, err := store.CreateFriendRequest(ctx, from, to)
		if err != nil {
			return func() { m.friendRequestStored(from, to, nil, nil, err) }
		}
		// The receiver sees who asked; a missing profile is not worth failing the request.
		sender, perr := store.GetProfile(ctx, from)
		if perr != nil {
			log.Printf("WARNING: no profile for friend request sender %s: %v", from, perr)
		}
		return func() { m.friendRequestStored(from, to, req, sender, nil) }
	}, func(err error) func() {
		return func() { m.friendRequestStored(from, to, nil, nil, err) }
	})
}

func (m *ManagerService) friendRequestStored(from, to string, req *models.FriendRequest, sender *models.Profile, err error) {
	if err != nil {
		log.Printf("Friend request %s -> %s rejected: %v", from, to, err)
		m.reply(from, models.EventError, storageError(err))
		return
	}

	m.sendTo(from, models.Event{
		Type:      models.EventFriendRequestSent,
		To:        to,
		RequestID: req.ID,
	})
	if sender == nil {
		sender = &models.Profile{ID: from}
	}
	m.sendTo(to, models.Event{
		Type:      models.EventFriendRequestReceived,
		From:      from,
		Partner:   sender,
		RequestID: req.ID,
	})
	log.Printf("Friend request %d: %s -> %s", req.ID, from, to)
}

// checkFriendStatus tells from whether to is already on its friend list.
func (m *ManagerService) checkFriendStatus(from, to string) {
	if to == "" || to == from {
		m.reply(from, models.EventError, ErrInvalidPayload)
		return
	}

	store := m.Storage
	m.async(func(ctx context.Context) func() {
		friends, err := store.AreFriends(ctx, from, to)
		return func() { m.friendStatusLoaded(from, to, friends, err) }
	}, func(err error) func() {
		return func() { m.friendStatusLoaded(from, to, false, err) }
	})
}

func (m *ManagerService) friendStatusLoaded(from, to string, friends bool, err error) {
	if err != nil {
		log.Printf("ERROR: friend status %s -> %s: %v", from, to, err)
		m.reply(from, models.EventError, storageError(err))
		return
	}
	m.sendTo(from, models.Event{
		Type:           models.EventFriendStatus,
		To:             to,
		AlreadyFriends: &friends,
	})
}
