package room

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const defaultHistoryLimit = 20

// Connections reports how many client connections are open.
type Connections interface {
	Count() int
}

type Handler struct {
	service     *Service
	connections Connections
}

// NewHandler builds the room routes. connections may be nil, in which case
// the stats endpoint leaves the connection count out.
func NewHandler(service *Service, connections Connections) *Handler {
	return &Handler{service: service, connections: connections}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	rooms := r.Group("/rooms")
	{
		rooms.GET("", h.listRooms)
		rooms.GET("/:id", h.getRoom)
		rooms.GET("/:id/history", h.getHistory)
	}
}

// RegisterAdminRoutes mounts operator endpoints; r is expected to be protected.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/stats", h.stats)
}

func (h *Handler) listRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.service.RoomIDs()})
}

func (h *Handler) getRoom(c *gin.Context) {
	roomID := c.Param("id")
	state, ok := h.service.State(roomID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	c.JSON(http.StatusOK, state)
}

type HistoryRequest struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=100"`
}

func (h *Handler) getHistory(c *gin.Context) {
	roomID := c.Param("id")

	var req HistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Limit == 0 {
		req.Limit = defaultHistoryLimit
	}

	tracks, err := h.service.History(c.Request.Context(), roomID, req.Limit)
	if err != nil {
		logrus.WithError(err).WithField("room_id", roomID).Error("Failed to load play history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"room_id": roomID, "tracks": tracks})
}

func (h *Handler) stats(c *gin.Context) {
	rooms, members := h.service.Stats()
	body := gin.H{
		"rooms":   rooms,
		"members": members,
	}
	if h.connections != nil {
		body["connections"] = h.connections.Count()
	}
	c.JSON(http.StatusOK, body)
}
