package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/listening-room-server/pkg/jwt"
)

var ErrInvalidKey = errors.New("invalid api key")

// Handler exchanges the operator API key for a short-lived bearer token used
// by the admin endpoints. Listeners never authenticate.
type Handler struct {
	tokens *jwt.Manager
	apiKey string
}

func NewHandler(tokens *jwt.Manager, apiKey string) *Handler {
	return &Handler{
		tokens: tokens,
		apiKey: apiKey,
	}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	auth := r.Group("/auth")
	{
		auth.POST("/token", h.token)
	}
}

type TokenRequest struct {
	APIKey     string `json:"api_key" binding:"required"`
	OperatorID string `json:"operator_id"`
}

// CheckKey reports whether key matches the configured operator key. An empty
// configured key disables token issuance.
func (h *Handler) CheckKey(key string) error {
	if h.apiKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.apiKey)) != 1 {
		return ErrInvalidKey
	}
	return nil
}

func (h *Handler) token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.CheckKey(req.APIKey); err != nil {
		logrus.WithField("client_ip", c.ClientIP()).Warn("Rejected operator token request")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	operatorID := req.OperatorID
	if operatorID == "" {
		operatorID = "operator"
	}

	token, expiresAt, err := h.tokens.GenerateToken(operatorID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt.UTC(),
	})
}
