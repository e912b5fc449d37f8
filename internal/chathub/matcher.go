package chathub

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"qchat/backend/internal/models"

	"github.com/google/uuid"
)

// ChatRoom is a live anonymous chat between exactly two identities.
type ChatRoom struct {
	ID string
	// Members[0] was waiting in the queue, Members[1] made the request that matched.
	Members   [2]string
	CreatedAt time.Time
	// Active is set once both members have been told about the room.
	Active bool

	// waiter is the queue ticket of Members[0], restored if the match falls through.
	waiter Ticket

	// Messages are persisted one at a time so that delivery order matches send order.
	outbox  []*models.ChatHistory
	storing bool
}

func (r *ChatRoom) Has(userID string) bool {
	return r.Members[0] == userID || r.Members[1] == userID
}

// Partner returns the other member.
func (r *ChatRoom) Partner(userID string) string {
	if r.Members[0] == userID {
		return r.Members[1]
	}
	return r.Members[0]
}

// MatcherService відповідає за алгоритм пошуку співрозмовників.
// Its state belongs to the hub loop; methods must only be called from there.
type MatcherService struct {
	Hub     *ManagerService
	Timeout time.Duration

	// queue - черга користувачів, які чекають на з'єднання (FIFO)
	queue  *waitQueue
	rooms  map[string]*ChatRoom
	byUser map[string]*ChatRoom
}

// NewMatcherService створює новий Matcher.
func NewMatcherService(hub *ManagerService, timeout time.Duration) *MatcherService {
	return &MatcherService{
		Hub:     hub,
		Timeout: timeout,
		queue:   newWaitQueue(),
		rooms:   make(map[string]*ChatRoom),
		byUser:  make(map[string]*ChatRoom),
	}
}

// requestChat pairs userID with the oldest live waiter, or queues it.
func (m *MatcherService) requestChat(userID string) {
	if m.queue.Contains(userID) {
		m.Hub.reply(userID, models.EventError, fmt.Errorf("%w: already searching for a partner", ErrInvalidState))
		return
	}
	if _, ok := m.byUser[userID]; ok {
		m.Hub.reply(userID, models.EventError, fmt.Errorf("%w: already in a chat", ErrInvalidState))
		return
	}

	for {
		head, ok := m.queue.Pop()
		if !ok {
			break
		}
		if !m.Hub.Presence.IsOnline(head.UserID) {
			log.Printf("WARNING: discarding ticket of offline user %s", head.UserID)
			continue
		}
		m.pair(head, userID)
		return
	}

	m.queue.Push(Ticket{UserID: userID, EnqueuedAt: m.Hub.now()})
	m.Hub.sendTo(userID, models.Event{Type: models.EventChatWaiting})
	log.Printf("New match request added to queue: %s (waiting: %d)", userID, m.queue.Len())
}

// pair creates the room right away so both members count as Paired, then loads
// the profiles and records the room before anyone is told about it.
func (m *MatcherService) pair(head Ticket, requester string) {
	room := &ChatRoom{
		ID:        uuid.New().String(),
		Members:   [2]string{head.UserID, requester},
		CreatedAt: m.Hub.now(),
		waiter:    head,
	}
	m.rooms[room.ID] = room
	m.byUser[head.UserID] = room
	m.byUser[requester] = room

	members := room.Members
	audit := &models.ChatRoom{
		RoomID:    room.ID,
		User1ID:   members[0],
		User2ID:   members[1],
		IsActive:  true,
		StartedAt: room.CreatedAt,
	}
	store := m.Hub.Storage

	m.Hub.async(func(ctx context.Context) func() {
		var profiles [2]*models.Profile
		var err error
		for i, id := range members {
			if profiles[i], err = store.GetProfile(ctx, id); err != nil {
				break
			}
		}
		if err == nil {
			err = store.SaveRoom(ctx, audit)
		}
		return func() { m.activate(room, profiles, err) }
	}, func(err error) func() {
		return func() { m.activate(room, [2]*models.Profile{}, err) }
	})
}

func (m *MatcherService) activate(room *ChatRoom, profiles [2]*models.Profile, err error) {
	if m.rooms[room.ID] != room {
		// One of the members left while the lookups were running.
		if err == nil {
			m.closeAudit(room.ID)
		}
		return
	}

	if err != nil {
		log.Printf("ERROR: pairing %s with %s failed: %v", room.Members[1], room.Members[0], err)
		m.drop(room)
		m.Hub.reply(room.Members[1], models.EventError, ErrUpstream)
		if m.Hub.Presence.IsOnline(room.waiter.UserID) {
			m.queue.PushFront(room.waiter)
		}
		return
	}

	room.Active = true
	for i, id := range room.Members {
		m.Hub.sendTo(id, models.Event{
			Type:    models.EventChatStarted,
			RoomID:  room.ID,
			Partner: profiles[1-i],
		})
	}
	log.Printf("Match found: %s and %s in room %s", room.Members[0], room.Members[1], room.ID)
}

func (m *MatcherService) endChat(userID string) {
	m.leave(userID, true)
}

func (m *MatcherService) onDisconnect(userID string) {
	m.leave(userID, false)
}

// leave cancels a pending search or closes the room userID is in.
func (m *MatcherService) leave(userID string, ack bool) {
	if m.queue.Remove(userID) {
		log.Printf("Search cancelled: %s", userID)
		if ack {
			m.Hub.sendTo(userID, models.Event{Type: models.EventChatEnded})
		}
		return
	}

	room, ok := m.byUser[userID]
	if !ok {
		return
	}
	m.drop(room)
	partner := room.Partner(userID)

	if !room.Active {
		// Nobody was told about this room yet; the partner keeps searching.
		if ack {
			m.Hub.sendTo(userID, models.Event{Type: models.EventChatEnded})
		}
		m.resume(room, partner)
		return
	}

	ended := models.Event{Type: models.EventChatEnded, RoomID: room.ID}
	m.Hub.sendTo(partner, ended)
	if ack {
		m.Hub.sendTo(userID, ended)
	}
	m.closeAudit(room.ID)
	log.Printf("Room %s closed by %s", room.ID, userID)
}

func (m *MatcherService) resume(room *ChatRoom, survivor string) {
	if !m.Hub.Presence.IsOnline(survivor) {
		return
	}
	if survivor == room.waiter.UserID {
		m.queue.PushFront(room.waiter)
		return
	}
	m.requestChat(survivor)
}

// drop forgets the room. Messages still waiting in its outbox are discarded.
func (m *MatcherService) drop(room *ChatRoom) {
	room.outbox = nil
	delete(m.rooms, room.ID)
	for _, id := range room.Members {
		if m.byUser[id] == room {
			delete(m.byUser, id)
		}
	}
}

func (m *MatcherService) closeAudit(roomID string) {
	store := m.Hub.Storage
	m.Hub.async(func(ctx context.Context) func() {
		if err := store.CloseRoom(ctx, roomID); err != nil {
			log.Printf("ERROR: Failed to close room %s: %v", roomID, err)
		}
		return nil
	}, nil)
}

// relayMessage persists a room message and forwards it to the other member.
func (m *MatcherService) relayMessage(roomID, sender, content string) {
	room, ok := m.rooms[roomID]
	if !ok || !room.Has(sender) {
		log.Printf("WARNING: %s tried to write to room %s", sender, roomID)
		m.Hub.reply(sender, models.EventError, ErrNotRoomMember)
		return
	}
	if !room.Active {
		m.Hub.reply(sender, models.EventError, ErrInvalidState)
		return
	}
	if strings.TrimSpace(content) == "" {
		m.Hub.reply(sender, models.EventError, ErrInvalidPayload)
		return
	}

	room.outbox = append(room.outbox, &models.ChatHistory{
		RoomID:   roomID,
		SenderID: sender,
		Content:  content,
		Type:     "text",
	})
	m.flush(room)
}

func (m *MatcherService) flush(room *ChatRoom) {
	if room.storing || len(room.outbox) == 0 {
		return
	}
	msg := room.outbox[0]
	room.outbox = room.outbox[1:]
	room.storing = true

	store := m.Hub.Storage
	m.Hub.async(func(ctx context.Context) func() {
		err := store.SaveMessage(ctx, msg)
		return func() { m.stored(room, msg, err) }
	}, func(err error) func() {
		return func() { m.stored(room, msg, err) }
	})
}

func (m *MatcherService) stored(room *ChatRoom, msg *models.ChatHistory, err error) {
	room.storing = false
	defer m.flush(room)

	if err != nil {
		log.Printf("ERROR: message from %s in room %s not stored: %v", msg.SenderID, room.ID, err)
		m.Hub.reply(msg.SenderID, models.EventError, ErrUpstream)
		return
	}

	// The room may have closed while the write was in flight; both members
	// have been told it ended by then.
	if m.rooms[room.ID] != room {
		return
	}

	wire := msg.RoomMessage()
	ev := models.Event{
		Type:    models.EventNewMessage,
		From:    msg.SenderID,
		RoomID:  room.ID,
		Message: &wire,
	}
	m.Hub.sendTo(msg.SenderID, ev)
	m.Hub.sendTo(room.Partner(msg.SenderID), ev)
}

// relayTyping forwards a typing indicator to the other member, best effort.
func (m *MatcherService) relayTyping(roomID, sender, eventType string) {
	room, ok := m.rooms[roomID]
	if !ok || !room.Has(sender) {
		m.Hub.reply(sender, models.EventError, ErrNotRoomMember)
		return
	}
	if !room.Active {
		return
	}
	m.Hub.sendTo(room.Partner(sender), models.Event{
		Type:   eventType,
		From:   sender,
		RoomID: roomID,
	})
}

// sweep evicts tickets that waited longer than Timeout.
func (m *MatcherService) sweep(now time.Time) {
	for _, t := range m.queue.Expire(now.Add(-m.Timeout)) {
		log.Printf("No partner found for %s after %s", t.UserID, now.Sub(t.EnqueuedAt).Round(time.Millisecond))
		m.Hub.sendTo(t.UserID, models.Event{Type: models.EventChatNotFound})
	}
}
