package handler

import (
	"log"
	"net/http"
	"strings"

	"qchat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
)

// bearerToken reads the identity token from the query string (browsers cannot set
// headers on websocket requests) or from the Authorization header.
func bearerToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// ServeWebSocket оновлює HTTP-з'єднання до WebSocket
func (h *Handler) ServeWebSocket(c *gin.Context) {
	tokenString := bearerToken(c)
	if tokenString == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return
	}

	userID, err := h.Auth.Identity(tokenString)
	if err != nil {
		log.Printf("WARNING: rejected websocket token: %v", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		log.Printf("WARNING: websocket upgrade failed for %s: %v", userID, err)
		return
	}

	client := chathub.NewWebSocketClient(h.Hub, conn, userID, h.SendBuffer)

	// Реєстрація клієнта в Chat Hub
	select {
	case h.Hub.RegisterCh <- client:
	case <-h.Hub.Done():
		conn.Close()
		return
	}

	// client.Run() сам запустить необхідні goroutines
	client.Run()
}
