package chathub

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"qchat/backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	// SDP offers with many candidates easily exceed a few kilobytes.
	maxMessageSize = 64 * 1024
)

// WebSocketClient реалізує інтерфейс chathub.Client
type WebSocketClient struct {
	UserID string
	Handle string
	Conn   *websocket.Conn
	Hub    *ManagerService
	Send   chan models.Event

	closeOnce sync.Once
}

// NewWebSocketClient wraps an upgraded connection for userID under a fresh handle.
func NewWebSocketClient(hub *ManagerService, conn *websocket.Conn, userID string, buffer int) *WebSocketClient {
	if buffer <= 0 {
		buffer = 256
	}
	return &WebSocketClient{
		UserID: userID,
		Handle: uuid.New().String(),
		Conn:   conn,
		Hub:    hub,
		Send:   make(chan models.Event, buffer),
	}
}

func (c *WebSocketClient) GetUserID() string                   { return c.UserID }
func (c *WebSocketClient) GetHandle() string                   { return c.Handle }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

// Run запускає 'pumps' для WebSocket
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close закриває Send канал (що зупинить writePump). Only the hub calls it.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		select {
		case c.Hub.UnregisterCh <- c:
		case <-c.Hub.Done():
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Printf("error reading message from %s: %v", c.UserID, err)
			}
			return
		}

		in := Inbound{Handle: c.Handle}
		if err := json.Unmarshal(message, &in.Event); err != nil {
			log.Printf("Error decoding JSON from client %s: %v", c.UserID, err)
			// The hub answers with invalid_payload; keep the type so the reply fits the request.
			var head struct {
				Type string `json:"type"`
			}
			_ = json.Unmarshal(message, &head)
			in.Event = models.Event{Type: head.Type}
			in.Err = err
		}
		// Never trust a client-supplied sender.
		in.Event.From = c.UserID

		select {
		case c.Hub.IncomingCh <- in:
		case <-c.Hub.Done():
			return
		}
	}
}

// writePump читає події з каналу Send і записує їх у WebSocket, one frame per event.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Канал закрито хабом, закриваємо з'єднання WS
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteJSON(ev); err != nil {
				log.Printf("Error writing to client %s: %v", c.UserID, err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
