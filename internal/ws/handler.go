package ws

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	hub        *Hub
	dispatcher *Dispatcher
	upgrader   websocket.Upgrader
}

// NewHandler builds the websocket endpoint. An empty allowedOrigins list, or
// one containing "*", accepts any origin.
func NewHandler(hub *Hub, dispatcher *Dispatcher, allowedOrigins []string) *Handler {
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws", h.HandleWebSocket)
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Warn("Failed to upgrade connection")
		return
	}

	connID := uuid.NewString()
	logrus.WithFields(logrus.Fields{
		"connection_id": connID,
		"remote_addr":   c.ClientIP(),
	}).Info("Connection opened")

	NewConn(connID, ws, h.hub, h.dispatcher).Start()
}
