package chathub_test

import (
	"context"
	"testing"
	"time"

	"qchat/backend/internal/chathub"
	"qchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testOptions() chathub.Options {
	return chathub.Options{
		MatchTimeout:   time.Minute,
		SweepInterval:  time.Hour,
		StorageTimeout: time.Second,
	}
}

// startHub runs a hub over store until the test ends.
func startHub(t *testing.T, store *MockStorage, opts chathub.Options) *chathub.ManagerService {
	t.Helper()
	hub := chathub.NewManagerService(store, opts)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-hub.Done()
	})
	return hub
}

// connect registers a fresh mock connection for userID.
func connect(hub *chathub.ManagerService, userID string) *MockClient {
	c := newMockClient(userID)
	hub.RegisterCh <- c
	return c
}

func stats(t *testing.T, hub *chathub.ManagerService) chathub.Stats {
	t.Helper()
	st, err := hub.Stats(context.Background())
	require.NoError(t, err)
	return st
}

func waiting(t *testing.T, hub *chathub.ManagerService) []string {
	t.Helper()
	ids, err := hub.WaitingUsers(context.Background())
	require.NoError(t, err)
	return ids
}

func online(t *testing.T, hub *chathub.ManagerService) []string {
	t.Helper()
	ids, err := hub.Online(context.Background())
	require.NoError(t, err)
	return ids
}

func TestManager_RegisterBroadcastsOnlineUsers(t *testing.T) {
	hub := startHub(t, new(MockStorage), testOptions())

	alice := connect(hub, "alice")
	ev := expectEvent(t, alice, models.EventOnlineUsers)
	assert.Equal(t, []string{"alice"}, ev.Online)

	bob := connect(hub, "bob")
	assert.Equal(t, []string{"alice", "bob"}, expectEvent(t, alice, models.EventOnlineUsers).Online)
	assert.Equal(t, []string{"alice", "bob"}, expectEvent(t, bob, models.EventOnlineUsers).Online)

	hub.UnregisterCh <- bob
	assert.Equal(t, []string{"alice"}, expectEvent(t, alice, models.EventOnlineUsers).Online)
	assert.True(t, bob.IsClosed())
}

func TestManager_ReRegistrationReplacesSession(t *testing.T) {
	hub := startHub(t, new(MockStorage), testOptions())

	first := connect(hub, "alice")
	second := connect(hub, "alice")

	expectEvent(t, first, models.EventSessionReplaced)
	assert.True(t, first.IsClosed())

	// The superseded connection going away must not take the identity offline.
	hub.UnregisterCh <- first
	assert.Equal(t, []string{"alice"}, online(t, hub))
	assert.False(t, second.IsClosed())
	assert.Equal(t, 1, stats(t, hub).Online)
}

func TestManager_EventsFromUnknownHandleAreDropped(t *testing.T) {
	hub := startHub(t, new(MockStorage), testOptions())
	alice := connect(hub, "alice")

	ghost := newMockClient("ghost")
	send(hub, ghost, models.Event{Type: models.EventStartChat})

	assert.Empty(t, waiting(t, hub))
	expectNoEvent(t, alice)
	expectNoEvent(t, ghost)
}

func TestManager_SenderIdentityIsStamped(t *testing.T) {
	hub := startHub(t, new(MockStorage), testOptions())
	alice := connect(hub, "alice")
	bob := connect(hub, "bob")

	send(hub, alice, models.Event{Type: models.EventTyping, From: "mallory", To: "bob"})

	ev := expectEvent(t, bob, models.EventTyping)
	assert.Equal(t, "alice", ev.From)
}

func TestManager_UnknownEventType(t *testing.T) {
	hub := startHub(t, new(MockStorage), testOptions())
	alice := connect(hub, "alice")

	send(hub, alice, models.Event{Type: "teleport"})

	expectError(t, alice, models.EventError, "invalid_payload")
}

func TestManager_SlowClientIsEvicted(t *testing.T) {
	hub := startHub(t, new(MockStorage), testOptions())

	// Room for exactly one event: its own online-users broadcast.
	slow := newMockClientBuffer("slow", 1)
	hub.RegisterCh <- slow
	connect(hub, "bob")

	require.Eventually(t, slow.IsClosed, eventTimeout, 10*time.Millisecond)
	assert.Equal(t, []string{"bob"}, online(t, hub))
}

func TestManager_QueriesAfterShutdown(t *testing.T) {
	hub := chathub.NewManagerService(new(MockStorage), testOptions())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	alice := newMockClient("alice")
	hub.RegisterCh <- alice

	cancel()
	<-hub.Done()

	assert.True(t, alice.IsClosed())
	_, err := hub.Stats(context.Background())
	assert.ErrorIs(t, err, chathub.ErrHubStopped)
}

func TestManager_PanicInHandlerIsContained(t *testing.T) {
	hub := startHub(t, new(MockStorage), testOptions())
	alice, bob := connect(hub, "alice"), connect(hub, "bob")
	broken := connect(hub, "broken")
	expectEvent(t, broken, models.EventOnlineUsers)
	broken.broken.Store(true)

	send(hub, alice, models.Event{Type: models.EventTyping, To: "broken"})

	expectError(t, alice, models.EventError, "internal_error")
	expectNoEvent(t, bob)

	// The loop keeps serving everybody else.
	send(hub, bob, models.Event{Type: models.EventTyping, To: "alice"})
	assert.Equal(t, "bob", expectEvent(t, alice, models.EventTyping).From)
	assert.Equal(t, 3, stats(t, hub).Online)
}

func TestManager_PanicInStorageUnwindsPairing(t *testing.T) {
	store := new(MockStorage).withProfiles("alice").withRooms()
	store.On("GetProfile", mock.Anything, "bob").Panic("driver bug")
	hub := startHub(t, store, testOptions())
	alice, bob := connect(hub, "alice"), connect(hub, "bob")

	send(hub, alice, models.Event{Type: models.EventStartChat})
	expectEvent(t, alice, models.EventChatWaiting)
	send(hub, bob, models.Event{Type: models.EventStartChat})

	ev := expectError(t, bob, models.EventError, "upstream_failure")
	assert.NotContains(t, ev.Error, "driver bug")
	expectNoEvent(t, alice)

	assert.Zero(t, stats(t, hub).Rooms)
	assert.Equal(t, []string{"alice"}, waiting(t, hub))

	// Neither side is stuck in a room: both can leave or search again.
	send(hub, alice, models.Event{Type: models.EventEndChat})
	expectEvent(t, alice, models.EventChatEnded)
	send(hub, bob, models.Event{Type: models.EventStartChat})
	expectEvent(t, bob, models.EventChatWaiting)
}

func TestManager_PanicInStorageUnwindsCall(t *testing.T) {
	store := new(MockStorage)
	store.On("GetProfile", mock.Anything, "alice").Panic("driver bug")
	hub := startHub(t, store, testOptions())
	alice, bob := connect(hub, "alice"), connect(hub, "bob")

	send(hub, alice, models.Event{Type: models.EventCallUser, To: "bob", Offer: testOffer})
	expectError(t, alice, models.EventCallError, "upstream_failure")
	assert.Zero(t, stats(t, hub).Calls)

	// The pair is Idle again, so a retry is not rejected as a duplicate.
	send(hub, alice, models.Event{Type: models.EventCallUser, To: "bob", Offer: testOffer})
	expectError(t, alice, models.EventCallError, "upstream_failure")
	expectNoEvent(t, bob)
}

func TestManager_PanicInStorageKeepsRoomWritable(t *testing.T) {
	store := new(MockStorage).withProfiles("alice", "bob").withRooms()
	store.On("SaveMessage", mock.Anything, mock.Anything).Panic("driver bug").Once()
	store.On("SaveMessage", mock.Anything, mock.Anything).Return(nil)
	hub := startHub(t, store, testOptions())
	alice, bob := connect(hub, "alice"), connect(hub, "bob")
	roomID := pairUp(t, hub, alice, bob)

	send(hub, alice, models.Event{Type: models.EventSendMessage, RoomID: roomID, Content: "one"})
	expectError(t, alice, models.EventError, "upstream_failure")

	send(hub, alice, models.Event{Type: models.EventSendMessage, RoomID: roomID, Content: "two"})
	assert.Equal(t, "two", expectEvent(t, bob, models.EventNewMessage).Message.Content)
}
