package chathub

import (
	"context"
	"fmt"
	"log"
	"time"

	"qchat/backend/internal/models"
	"qchat/backend/internal/presence"
	"qchat/backend/internal/storage"
)

// Options tunes the hub.
type Options struct {
	// MatchTimeout is how long a waiting ticket survives before the sweep evicts it.
	MatchTimeout time.Duration
	// SweepInterval is how often expired tickets are looked for.
	SweepInterval time.Duration
	// StorageTimeout bounds every collaborator call made on behalf of an event.
	StorageTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		MatchTimeout:   5 * time.Second,
		SweepInterval:  time.Second,
		StorageTimeout: 5 * time.Second,
	}
}

// Stats is a point-in-time view of the hub state.
type Stats struct {
	Online  int `json:"online"`
	Waiting int `json:"waiting"`
	Rooms   int `json:"rooms"`
	Calls   int `json:"calls"`
}

// ManagerService is the chat hub. A single goroutine (Run) owns the presence
// registry, the matcher and the signaling relay; everything else talks to it
// through channels.
type ManagerService struct {
	Presence  *presence.Registry
	Matcher   *MatcherService
	Signaling *SignalingRelay
	Storage   storage.Storage

	// Channels
	IncomingCh   chan Inbound
	RegisterCh   chan Client
	UnregisterCh chan Client

	// clients by connection handle
	clients map[string]Client
	// clients whose send buffer overflowed, closed after the current event
	slow map[string]Client

	resumeCh chan func()
	queryCh  chan func()
	done     chan struct{}

	opts Options
	now  func() time.Time
	ctx  context.Context
}

// NewManagerService creates the hub. Call Run to start it.
func NewManagerService(s storage.Storage, opts Options) *ManagerService {
	def := DefaultOptions()
	if opts.MatchTimeout <= 0 {
		opts.MatchTimeout = def.MatchTimeout
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = def.SweepInterval
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = def.StorageTimeout
	}

	m := &ManagerService{
		Presence:     presence.NewRegistry(),
		Storage:      s,
		IncomingCh:   make(chan Inbound),
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		clients:      make(map[string]Client),
		slow:         make(map[string]Client),
		resumeCh:     make(chan func()),
		queryCh:      make(chan func()),
		done:         make(chan struct{}),
		opts:         opts,
		now:          time.Now,
	}
	m.Matcher = NewMatcherService(m, opts.MatchTimeout)
	m.Signaling = NewSignalingRelay(m)
	return m
}

// Done is closed once Run has returned.
func (m *ManagerService) Done() <-chan struct{} {
	return m.done
}

// Run is the event loop. Every state transition happens here, one event at a time.
func (m *ManagerService) Run(ctx context.Context) {
	m.ctx = ctx
	defer close(m.done)

	ticker := time.NewTicker(m.opts.SweepInterval)
	defer ticker.Stop()

	log.Println("Chat hub started.")
	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			log.Println("Chat hub stopped.")
			return

		case client := <-m.RegisterCh:
			m.safely("register", func() { m.register(client) })

		case client := <-m.UnregisterCh:
			m.safely("unregister", func() { m.unregister(client) })

		case in := <-m.IncomingCh:
			m.dispatch(in)

		case next := <-m.resumeCh:
			m.safely("continuation", next)

		case fn := <-m.queryCh:
			fn()

		case now := <-ticker.C:
			m.safely("sweep", func() { m.Matcher.sweep(now) })
		}
		m.reap()
	}
}

// async runs work outside the loop. The closure it returns is executed back on
// the loop, where it must re-validate any state it depends on: other events
// may have been processed in the meantime.
//
// If work panics, failed is asked for the continuation instead, with an error
// wrapping ErrUpstream, so that whatever was set up before the call is unwound
// on the loop. failed may be nil when there is nothing to unwind.
func (m *ManagerService) async(work func(ctx context.Context) func(), failed func(err error) func()) {
	ctx := m.ctx
	timeout := m.opts.StorageTimeout
	go func() {
		next := m.runWork(ctx, timeout, work, failed)
		if next == nil {
			return
		}
		select {
		case m.resumeCh <- next:
		case <-ctx.Done():
		}
	}()
}

func (m *ManagerService) runWork(ctx context.Context, timeout time.Duration, work func(ctx context.Context) func(), failed func(err error) func()) (next func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: panic in background work: %v", r)
			next = nil
			if failed != nil {
				next = failed(fmt.Errorf("%w: %v", ErrUpstream, r))
			}
		}
	}()
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return work(callCtx)
}

func (m *ManagerService) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: panic while handling %s: %v", what, r)
		}
	}()
	fn()
}

func (m *ManagerService) register(c Client) {
	userID, handle := c.GetUserID(), c.GetHandle()
	m.clients[handle] = c

	if replaced := m.Presence.Register(userID, handle); replaced != "" {
		// Only one live connection per identity: the older one is told and closed.
		if old, ok := m.clients[replaced]; ok {
			delete(m.clients, replaced)
			m.deliver(old, models.Event{Type: models.EventSessionReplaced})
			old.Close()
		}
		log.Printf("INFO: %s re-registered on %s, replaced %s", userID, handle, replaced)
	} else {
		log.Printf("Client registered: %s (%s)", userID, handle)
	}

	m.broadcastOnline()
}

func (m *ManagerService) unregister(c Client) {
	handle := c.GetHandle()
	if _, ok := m.clients[handle]; !ok {
		// Already evicted or replaced by a newer connection.
		return
	}
	delete(m.clients, handle)
	c.Close()
	m.disconnect(handle)
}

// disconnect tears down everything the identity behind handle was part of,
// unless a newer connection already took over that identity.
func (m *ManagerService) disconnect(handle string) {
	userID, removed := m.Presence.Unregister(handle)
	if !removed {
		return
	}
	log.Printf("Client disconnected: %s (%s)", userID, handle)

	m.safely("matcher disconnect", func() { m.Matcher.onDisconnect(userID) })
	m.safely("signaling disconnect", func() { m.Signaling.onDisconnect(userID) })
	m.broadcastOnline()
}

// reap closes the clients that could not keep up and treats them as disconnected.
func (m *ManagerService) reap() {
	for len(m.slow) > 0 {
		for handle, c := range m.slow {
			delete(m.slow, handle)
			if _, ok := m.clients[handle]; !ok {
				continue
			}
			log.Printf("WARNING: dropping slow client %s (%s)", c.GetUserID(), handle)
			delete(m.clients, handle)
			c.Close()
			m.disconnect(handle)
		}
	}
}

func (m *ManagerService) shutdown() {
	for handle, c := range m.clients {
		delete(m.clients, handle)
		c.Close()
	}
}

func (m *ManagerService) dispatch(in Inbound) {
	client, ok := m.clients[in.Handle]
	if !ok {
		return
	}
	ev := in.Event
	ev.From = client.GetUserID()

	if in.Err != nil {
		log.Printf("WARNING: undecodable %q frame from %s: %v", ev.Type, ev.From, in.Err)
		m.reply(ev.From, replyTypeFor(ev.Type), fmt.Errorf("%w: %v", ErrInvalidPayload, in.Err))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: panic while handling %s from %s: %v", ev.Type, ev.From, r)
			m.reply(ev.From, models.EventError, ErrInternal)
		}
	}()
	m.route(ev)
}

func (m *ManagerService) route(ev models.Event) {
	switch ev.Type {
	case models.EventStartChat:
		m.Matcher.requestChat(ev.From)
	case models.EventEndChat:
		m.Matcher.endChat(ev.From)
	case models.EventSendMessage:
		m.Matcher.relayMessage(ev.RoomID, ev.From, ev.Content)
	case models.EventTyping, models.EventStopTyping:
		m.forwardTyping(ev)

	case models.EventCallUser:
		m.Signaling.initiateCall(ev.From, ev.To, ev.Offer)
	case models.EventAnswerCall:
		m.Signaling.answerCall(ev.From, ev.To, ev.Answer)
	case models.EventICECandidate:
		m.Signaling.relayICECandidate(ev.From, ev.To, ev.Candidate)
	case models.EventDeclineCall:
		m.Signaling.declineCall(ev.From, ev.To)
	case models.EventEndCall:
		m.Signaling.endCall(ev.From, ev.To)

	case models.EventFriendRequest:
		m.sendFriendRequest(ev.From, ev.To)
	case models.EventCheckFriends:
		m.checkFriendStatus(ev.From, ev.To)

	default:
		log.Printf("WARNING: unknown event %q from %s", ev.Type, ev.From)
		m.reply(ev.From, models.EventError, ErrInvalidPayload)
	}
}

// deliver queues ev on the client without blocking the loop.
func (m *ManagerService) deliver(c Client, ev models.Event) bool {
	select {
	case c.GetSendChannel() <- ev:
		return true
	default:
		m.slow[c.GetHandle()] = c
		return false
	}
}

// sendTo resolves userID through the presence registry and delivers ev.
// It returns false when the user is unreachable.
func (m *ManagerService) sendTo(userID string, ev models.Event) bool {
	handle, ok := m.Presence.Resolve(userID)
	if !ok {
		return false
	}
	c, ok := m.clients[handle]
	if !ok {
		return false
	}
	return m.deliver(c, ev)
}

func (m *ManagerService) broadcastOnline() {
	online := m.Presence.OnlineIdentities()
	for _, c := range m.clients {
		m.deliver(c, models.Event{Type: models.EventOnlineUsers, Online: online})
	}
}

// query runs fn on the loop goroutine and waits for it.
func (m *ManagerService) query(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case m.queryCh <- func() { fn(); close(finished) }:
	case <-m.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Online returns the identities currently registered.
func (m *ManagerService) Online(ctx context.Context) ([]string, error) {
	var online []string
	if err := m.query(ctx, func() { online = m.Presence.OnlineIdentities() }); err != nil {
		return nil, err
	}
	return online, nil
}

// Stats returns counters for the health endpoint and tests.
func (m *ManagerService) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := m.query(ctx, func() {
		st = Stats{
			Online:  m.Presence.Len(),
			Waiting: m.Matcher.queue.Len(),
			Rooms:   len(m.Matcher.rooms),
			Calls:   len(m.Signaling.sessions),
		}
	})
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// WaitingUsers returns the waiting queue, head first.
func (m *ManagerService) WaitingUsers(ctx context.Context) ([]string, error) {
	var ids []string
	if err := m.query(ctx, func() { ids = m.Matcher.queue.UserIDs() }); err != nil {
		return nil, err
	}
	return ids, nil
}
