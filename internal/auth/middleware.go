package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/party-jam-system/pkg/jwt"
)

// HostMiddleware guards host-only operations. The session token comes
// from the cookie set at callback, or a bearer header for non-browser
// clients.
func HostMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, _ := c.Cookie("auth_token")
		if tokenString == "" {
			if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
				tokenString = strings.TrimPrefix(header, "Bearer ")
			}
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "host login required"})
			return
		}

		claims, err := jwt.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session token"})
			return
		}

		c.Set("host_id", claims.HostID)
		c.Next()
	}
}
