package models

import (
	"time"

	"github.com/pion/webrtc/v4"
)

// Client -> server events.
const (
	EventStartChat     = "start-chat"
	EventEndChat       = "end-chat"
	EventSendMessage   = "send-message"
	EventCallUser      = "call-user"
	EventAnswerCall    = "answer-call"
	EventDeclineCall   = "decline-call"
	EventEndCall       = "end-call"
	EventFriendRequest = "send-friend-request"
	EventCheckFriends  = "check-if-already-friends"
)

// Events that travel in both directions under the same name.
const (
	EventTyping       = "typing"
	EventStopTyping   = "stop-typing"
	EventICECandidate = "ice-candidate"
)

// Server -> client events.
const (
	EventOnlineUsers           = "online-users"
	EventSessionReplaced       = "session-replaced"
	EventChatWaiting           = "chat-waiting"
	EventChatStarted           = "chat-started"
	EventChatNotFound          = "chat-not-found"
	EventChatEnded             = "chat-ended"
	EventNewMessage            = "new-message"
	EventIncomingCall          = "incoming-call"
	EventCallAnswered          = "call-answered"
	EventCallDeclined          = "call-declined"
	EventCallEnded             = "call-ended"
	EventCallError             = "call-error"
	EventFriendRequestSent     = "friend-request-sent"
	EventFriendRequestReceived = "receive-friend-request"
	EventFriendStatus          = "friend-status"
	EventError                 = "error"
)

// Event is the single JSON envelope exchanged over the websocket.
// Only the fields relevant to Type are set.
type Event struct {
	Type string `json:"type"`

	// From is stamped by the server with the sender identity on inbound events.
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	RoomID string `json:"room_id,omitempty"`

	Content string       `json:"content,omitempty"`
	Message *RoomMessage `json:"message,omitempty"`

	Partner *Profile `json:"partner,omitempty"`
	Caller  *Profile `json:"caller,omitempty"`
	Online  []string `json:"online,omitempty"`

	// SDP and ICE payloads are opaque to the server and forwarded as received.
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`

	RequestID uint `json:"request_id,omitempty"`
	// AlreadyFriends answers check-if-already-friends; nil on every other event.
	AlreadyFriends *bool `json:"already_friends,omitempty"`

	Code  string `json:"code,omitempty"`
	Error string `json:"error,omitempty"`
}

// RoomMessage is a stored random-chat message as delivered to clients.
type RoomMessage struct {
	ID        uint      `json:"id"`
	RoomID    string    `json:"room_id"`
	SenderID  string    `json:"sender_id"`
	Content   string    `json:"content"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}
