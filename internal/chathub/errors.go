package chathub

import (
	"errors"

	"qchat/backend/internal/models"
	"qchat/backend/internal/storage"
)

var (
	ErrPeerUnreachable = errors.New("user is not online")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrNotRoomMember   = errors.New("not a member of this room")
	ErrUpstream        = errors.New("service temporarily unavailable")
	ErrInvalidPayload  = errors.New("invalid payload")
	ErrInternal        = errors.New("internal error")
	ErrHubStopped      = errors.New("chat hub stopped")
)

// errorCode maps an error to the stable code clients switch on.
func errorCode(err error) string {
	switch {
	case errors.Is(err, ErrPeerUnreachable):
		return "peer_unreachable"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrNotRoomMember):
		return "not_room_member"
	case errors.Is(err, ErrUpstream):
		return "upstream_failure"
	case errors.Is(err, ErrInvalidPayload), errors.Is(err, storage.ErrSelfRequest):
		return "invalid_payload"
	case errors.Is(err, storage.ErrAlreadyFriends):
		return "already_friends"
	case errors.Is(err, storage.ErrRequestExists):
		return "request_exists"
	case errors.Is(err, storage.ErrUserNotFound):
		return "user_not_found"
	default:
		return "internal_error"
	}
}

// storageError keeps the storage sentinels clients can act on and hides
// everything else behind ErrUpstream.
func storageError(err error) error {
	switch {
	case errors.Is(err, storage.ErrSelfRequest),
		errors.Is(err, storage.ErrAlreadyFriends),
		errors.Is(err, storage.ErrRequestExists),
		errors.Is(err, storage.ErrUserNotFound):
		return err
	default:
		return ErrUpstream
	}
}

// replyTypeFor picks the event an error about eventType is reported as.
func replyTypeFor(eventType string) string {
	switch eventType {
	case models.EventCallUser, models.EventAnswerCall, models.EventDeclineCall, models.EventEndCall, models.EventICECandidate:
		return models.EventCallError
	default:
		return models.EventError
	}
}

// reply sends err back to userID as an event of the given type.
func (m *ManagerService) reply(userID, eventType string, err error) {
	m.sendTo(userID, models.Event{
		Type:  eventType,
		Code:  errorCode(err),
		Error: err.Error(),
	})
}
