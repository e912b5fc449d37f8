package handler

import (
	"net/http"
	"net/url"
	"strings"

	"qchat/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler містить посилання на ChatHub
type Handler struct {
	Hub  *chathub.ManagerService
	Auth *Authenticator

	// SendBuffer is the outbound queue depth of each websocket client.
	SendBuffer int

	upgrader websocket.Upgrader
}

// NewHandler builds the HTTP layer. An empty allowedOrigins accepts any origin.
func NewHandler(hub *chathub.ManagerService, auth *Authenticator, allowedOrigins []string, sendBuffer int) *Handler {
	h := &Handler{Hub: hub, Auth: auth, SendBuffer: sendBuffer}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

// Register mounts all routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api")
	api.GET("/online", h.Online)
	api.GET("/stats", h.Stats)
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(strings.ToLower(o), "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			// Non-browser clients do not send an Origin.
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		_, ok := set[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Online повертає список користувачів онлайн.
func (h *Handler) Online(c *gin.Context) {
	online, err := h.Hub.Online(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if online == nil {
		online = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"online": online})
}

func (h *Handler) Stats(c *gin.Context) {
	st, err := h.Hub.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, st)
}
