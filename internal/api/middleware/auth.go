package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwtutil "github.com/rl-arena/rl-arena-matchmaker/pkg/jwt"
)

const (
	playerIDKey = "playerId"
	roleKey     = "role"
)

// PlayerAuth JWT 인증 미들웨어. Stores the token's player ID in the context.
func PlayerAuth(jwtManager *jwtutil.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token := ""

		// "Bearer <token>" 형식 파싱
		if authHeader != "" {
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"error": "Invalid authorization header format",
				})
				return
			}
			token = parts[1]
		} else {
			// browsers cannot set headers on a websocket handshake
			token = c.Query("token")
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header required",
			})
			return
		}

		claims, err := jwtManager.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		c.Set(playerIDKey, claims.PlayerID)
		c.Set(roleKey, claims.Role)
		c.Next()
	}
}

// RequireRole runs after PlayerAuth and rejects tokens without the role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(roleKey) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Insufficient role",
			})
			return
		}
		c.Next()
	}
}

// AuthenticatedPlayer player ID set by PlayerAuth, if any
func AuthenticatedPlayer(c *gin.Context) (string, bool) {
	v, exists := c.Get(playerIDKey)
	if !exists {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}
