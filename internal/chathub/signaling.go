package chathub

import (
	"context"
	"log"
	"time"

	"qchat/backend/internal/models"

	"github.com/pion/webrtc/v4"
)

type CallState int

const (
	CallIdle CallState = iota
	CallRinging
	CallConnected
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallConnected:
		return "connected"
	default:
		return "idle"
	}
}

// CallSession is the signaling state of one call attempt between two users.
// A pair without a session is Idle.
type CallSession struct {
	Caller    string
	Callee    string
	State     CallState
	StartedAt time.Time
	// Announced is set once the callee has received the offer.
	Announced bool
}

func (s *CallSession) peer(userID string) string {
	if s.Caller == userID {
		return s.Callee
	}
	return s.Caller
}

// SignalingRelay forwards WebRTC negotiation between two identified peers.
// SDP and ICE payloads are never inspected beyond presence checks and never
// buffered: peers that receive candidates early must queue them until their
// remote description is set.
type SignalingRelay struct {
	Hub *ManagerService

	sessions map[string]*CallSession
	byUser   map[string]map[string]*CallSession
}

func NewSignalingRelay(hub *ManagerService) *SignalingRelay {
	return &SignalingRelay{
		Hub:      hub,
		sessions: make(map[string]*CallSession),
		byUser:   make(map[string]map[string]*CallSession),
	}
}

// pairKey identifies the unordered pair {a, b}.
func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func (r *SignalingRelay) add(key string, s *CallSession) {
	r.sessions[key] = s
	for _, id := range []string{s.Caller, s.Callee} {
		if r.byUser[id] == nil {
			r.byUser[id] = make(map[string]*CallSession)
		}
		r.byUser[id][key] = s
	}
}

func (r *SignalingRelay) remove(key string, s *CallSession) {
	if r.sessions[key] != s {
		return
	}
	delete(r.sessions, key)
	for _, id := range []string{s.Caller, s.Callee} {
		delete(r.byUser[id], key)
		if len(r.byUser[id]) == 0 {
			delete(r.byUser, id)
		}
	}
}

// State returns the call state of the pair.
func (r *SignalingRelay) State(a, b string) CallState {
	if s, ok := r.sessions[pairKey(a, b)]; ok {
		return s.State
	}
	return CallIdle
}

func (r *SignalingRelay) initiateCall(from, to string, offer *webrtc.SessionDescription) {
	if to == "" || to == from || offer == nil || offer.SDP == "" || offer.Type != webrtc.SDPTypeOffer {
		r.Hub.reply(from, models.EventCallError, ErrInvalidPayload)
		return
	}
	if !r.Hub.Presence.IsOnline(to) {
		log.Printf("No connection for call target %s (caller %s)", to, from)
		r.Hub.reply(from, models.EventCallError, ErrPeerUnreachable)
		return
	}

	key := pairKey(from, to)
	if s, busy := r.sessions[key]; busy {
		log.Printf("WARNING: %s called %s while the pair is %s", from, to, s.State)
		r.Hub.reply(from, models.EventCallError, ErrInvalidState)
		return
	}

	s := &CallSession{Caller: from, Callee: to, State: CallRinging, StartedAt: r.Hub.now()}
	r.add(key, s)

	store := r.Hub.Storage
	r.Hub.async(func(ctx context.Context) func() {
		profile, err := store.GetProfile(ctx, from)
		return func() { r.announce(key, s, profile, offer, err) }
	}, func(err error) func() {
		return func() { r.announce(key, s, nil, offer, err) }
	})
}

func (r *SignalingRelay) announce(key string, s *CallSession, caller *models.Profile, offer *webrtc.SessionDescription, err error) {
	if r.sessions[key] != s {
		// Ended or replaced while the caller profile was loading.
		return
	}
	if err != nil {
		log.Printf("ERROR: caller profile for %s unavailable: %v", s.Caller, err)
		r.remove(key, s)
		r.Hub.reply(s.Caller, models.EventCallError, ErrUpstream)
		return
	}

	delivered := r.Hub.sendTo(s.Callee, models.Event{
		Type:   models.EventIncomingCall,
		From:   s.Caller,
		Caller: caller,
		Offer:  offer,
	})
	if !delivered {
		r.remove(key, s)
		r.Hub.reply(s.Caller, models.EventCallError, ErrPeerUnreachable)
		return
	}
	s.Announced = true
	log.Printf("Call ringing: %s -> %s", s.Caller, s.Callee)
}

func (r *SignalingRelay) answerCall(from, to string, answer *webrtc.SessionDescription) {
	key := pairKey(from, to)
	s, ok := r.sessions[key]
	if !ok || s.State != CallRinging || s.Callee != from || !s.Announced {
		log.Printf("Ignoring answer from %s to %s: %v", from, to, ErrInvalidState)
		return
	}
	if answer == nil || answer.SDP == "" || answer.Type != webrtc.SDPTypeAnswer {
		r.Hub.reply(from, models.EventCallError, ErrInvalidPayload)
		return
	}

	if !r.Hub.sendTo(s.Caller, models.Event{Type: models.EventCallAnswered, From: from, Answer: answer}) {
		r.remove(key, s)
		r.Hub.sendTo(from, models.Event{Type: models.EventCallEnded, From: s.Caller})
		return
	}
	s.State = CallConnected
	log.Printf("Call connected: %s <-> %s", s.Caller, s.Callee)
}

func (r *SignalingRelay) relayICECandidate(from, to string, candidate *webrtc.ICECandidateInit) {
	if candidate == nil {
		return
	}
	if _, ok := r.sessions[pairKey(from, to)]; !ok {
		return
	}
	r.Hub.sendTo(to, models.Event{Type: models.EventICECandidate, From: from, Candidate: candidate})
}

func (r *SignalingRelay) declineCall(from, to string) {
	key := pairKey(from, to)
	s, ok := r.sessions[key]
	if !ok || s.State != CallRinging || s.Callee != from {
		log.Printf("Ignoring decline from %s to %s: %v", from, to, ErrInvalidState)
		return
	}
	r.remove(key, s)
	r.Hub.sendTo(s.Caller, models.Event{Type: models.EventCallDeclined, From: from})
	log.Printf("Call declined: %s -> %s", s.Caller, s.Callee)
}

// endCall is idempotent: ending an Idle pair does nothing.
func (r *SignalingRelay) endCall(from, to string) {
	key := pairKey(from, to)
	s, ok := r.sessions[key]
	if !ok {
		return
	}
	r.remove(key, s)

	other := s.peer(from)
	if other == s.Callee && !s.Announced {
		return
	}
	r.Hub.sendTo(other, models.Event{Type: models.EventCallEnded, From: from})
	log.Printf("Call ended by %s (%s <-> %s, was %s)", from, s.Caller, s.Callee, s.State)
}

func (r *SignalingRelay) onDisconnect(userID string) {
	var peers []string
	for _, s := range r.byUser[userID] {
		peers = append(peers, s.peer(userID))
	}
	for _, peer := range peers {
		r.endCall(userID, peer)
	}
}
