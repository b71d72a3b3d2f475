package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/listening-room-server/pkg/jwt"
)

// AuthMiddleware admits requests carrying a valid operator token, either as
// "Authorization: Bearer <token>" or as a ?token= query parameter.
func AuthMiddleware(tokens *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
				return
			}
			token = strings.TrimSpace(parts[1])
		} else {
			token = c.Query("token")
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No authorization header"})
			return
		}

		claims, err := tokens.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("operator_id", claims.OperatorID)
		c.Next()
	}
}
