package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listening-room-server/pkg/jwt"
)

func newRouter(apiKey string) (*gin.Engine, *jwt.Manager) {
	gin.SetMode(gin.TestMode)
	tokens := jwt.NewManager("test-secret", time.Hour)

	router := gin.New()
	v1 := router.Group("/api/v1")
	NewHandler(tokens, apiKey).RegisterRoutes(v1)

	admin := v1.Group("/admin", AuthMiddleware(tokens))
	admin.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"operator_id": c.GetString("operator_id")})
	})
	return router, tokens
}

func postToken(router *gin.Engine, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/token", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestHandler_Token(t *testing.T) {
	tests := []struct {
		name       string
		apiKey     string
		body       string
		wantStatus int
	}{
		{name: "valid key", apiKey: "k", body: `{"api_key":"k","operator_id":"ops"}`, wantStatus: http.StatusOK},
		{name: "wrong key", apiKey: "k", body: `{"api_key":"nope"}`, wantStatus: http.StatusUnauthorized},
		{name: "missing key", apiKey: "k", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "issuance disabled", apiKey: "", body: `{"api_key":""}`, wantStatus: http.StatusBadRequest},
		{name: "disabled with any key", apiKey: "", body: `{"api_key":"x"}`, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newRouter(tt.apiKey)
			w := postToken(router, tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	router, _ := newRouter("k")

	w := postToken(router, `{"api_key":"k","operator_id":"ops"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	other, _, err := jwt.NewManager("other-secret", time.Hour).GenerateToken("ops")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{name: "bearer header", header: "Bearer " + resp.Token, wantStatus: http.StatusOK},
		{name: "query param", query: "?token=" + resp.Token, wantStatus: http.StatusOK},
		{name: "no token", wantStatus: http.StatusUnauthorized},
		{name: "malformed header", header: resp.Token, wantStatus: http.StatusUnauthorized},
		{name: "foreign signature", header: "Bearer " + other, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/whoami"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), `"operator_id":"ops"`)
			}
		})
	}
}
