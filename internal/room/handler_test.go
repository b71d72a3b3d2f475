package room

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listening-room-server/pkg/models"
)

type fixedConnections int

func (n fixedConnections) Count() int { return int(n) }

func newTestRouter(f *serviceFixture) *gin.Engine {
	return newTestRouterWith(f, nil)
}

func newTestRouterWith(f *serviceFixture, connections Connections) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHandler(f.service, connections)
	h.RegisterRoutes(router.Group("/api/v1"))
	h.RegisterAdminRoutes(router.Group("/api/v1/admin"))
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHandler_Rooms(t *testing.T) {
	f := newServiceFixture()
	router := newTestRouter(f)
	f.service.Join("c1", "R1", "Alice")
	f.service.AddTrack("c1", "R1", track("t1", 10))

	w := get(router, "/api/v1/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":["R1"]}`, w.Body.String())

	w = get(router, "/api/v1/rooms/R1")
	require.Equal(t, http.StatusOK, w.Code)
	var state models.RoomState
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, "R1", state.RoomID)
	require.NotNil(t, state.Current)
	assert.Equal(t, "yt-t1", state.Current.TrackID)

	w = get(router, "/api/v1/rooms/missing")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_History(t *testing.T) {
	f := newServiceFixture()
	router := newTestRouter(f)
	f.service.Join("c1", "R1", "Alice")
	f.service.AddTrack("c1", "R1", track("t1", 10))

	w := get(router, "/api/v1/rooms/R1/history?limit=5")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		RoomID string               `json:"room_id"`
		Tracks []models.PlayedTrack `json:"tracks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "R1", body.RoomID)
	require.Len(t, body.Tracks, 1)
	assert.Equal(t, "yt-t1", body.Tracks[0].TrackID)

	w = get(router, "/api/v1/rooms/R1/history?limit=1000")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_Stats(t *testing.T) {
	f := newServiceFixture()
	router := newTestRouter(f)
	f.service.Join("c1", "R1", "Alice")
	f.service.Join("c2", "R1", "Bob")
	f.service.Join("c3", "R2", "Carol")

	w := get(router, "/api/v1/admin/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":2,"members":3}`, w.Body.String())
}

func TestHandler_StatsWithConnections(t *testing.T) {
	f := newServiceFixture()
	router := newTestRouterWith(f, fixedConnections(4))
	f.service.Join("c1", "R1", "Alice")

	w := get(router, "/api/v1/admin/stats")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"rooms":1,"members":1,"connections":4}`, w.Body.String())
}
