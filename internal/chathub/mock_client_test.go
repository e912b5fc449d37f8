package chathub_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"qchat/backend/internal/chathub"
	"qchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const eventTimeout = time.Second

type MockClient struct {
	userID      string
	handle      string
	RecvChannel chan models.Event

	mu     sync.Mutex
	closed bool

	// broken makes every delivery to this client panic.
	broken atomic.Bool
}

func newMockClient(userID string) *MockClient {
	return newMockClientBuffer(userID, 64)
}

func newMockClientBuffer(userID string, size int) *MockClient {
	return &MockClient{
		userID:      userID,
		handle:      uuid.New().String(),
		RecvChannel: make(chan models.Event, size),
	}
}

func (c *MockClient) GetUserID() string                   { return c.userID }
func (c *MockClient) GetHandle() string                   { return c.handle }

func (c *MockClient) GetSendChannel() chan<- models.Event {
	if c.broken.Load() {
		panic("send channel gone")
	}
	return c.RecvChannel
}

func (c *MockClient) Run() {
	// Not needed for testing
}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// send injects ev as if it had been read from c's connection.
func send(hub *chathub.ManagerService, c *MockClient, ev models.Event) {
	hub.IncomingCh <- chathub.Inbound{Handle: c.GetHandle(), Event: ev}
}

// expectEvent waits for the next event of eventType on c. Presence broadcasts
// are skipped; any other event arriving first fails the test.
func expectEvent(t *testing.T, c *MockClient, eventType string) models.Event {
	t.Helper()
	deadline := time.After(eventTimeout)
	for {
		select {
		case ev := <-c.RecvChannel:
			if ev.Type == models.EventOnlineUsers && eventType != models.EventOnlineUsers {
				continue
			}
			require.Equal(t, eventType, ev.Type, "unexpected event for %s: %+v", c.userID, ev)
			return ev
		case <-deadline:
			require.FailNow(t, "timed out waiting for event", "%s never received %q", c.userID, eventType)
			return models.Event{}
		}
	}
}

// expectError waits for an error-carrying event of eventType and checks its code.
func expectError(t *testing.T, c *MockClient, eventType, code string) models.Event {
	t.Helper()
	ev := expectEvent(t, c, eventType)
	assert.Equal(t, code, ev.Code, "error: %s", ev.Error)
	return ev
}

// expectNoEvent asserts that nothing but presence broadcasts reaches c for a short while.
func expectNoEvent(t *testing.T, c *MockClient) {
	t.Helper()
	deadline := time.After(100 * time.Millisecond)
	for {
		select {
		case ev := <-c.RecvChannel:
			if ev.Type == models.EventOnlineUsers {
				continue
			}
			assert.Fail(t, "unexpected event", "%s received %+v", c.userID, ev)
			return
		case <-deadline:
			return
		}
	}
}
