// Package middleware provides gin middleware for subscriber and partner auth.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/wanderbite/wanderbite/pkg/logger"
)

// Context keys set by the auth middlewares.
const (
	ContextUserID       = "user_id"
	ContextUserEmail    = "user_email"
	ContextRestaurantID = "restaurant_id"
)

// RequireUser validates the Bearer token and stores the subscriber identity
// on the context. Tokens are HMAC-signed by the auth provider; the subject
// claim is the user ID.
func RequireUser(jwtSecret string, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header format"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(jwtSecret), nil
		})
		if err != nil || !token.Valid {
			log.Debug().Err(err).Msg("Rejected bearer token")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token claims"})
			c.Abort()
			return
		}
		sub, _ := claims["sub"].(string)
		if sub == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token has no subject"})
			c.Abort()
			return
		}

		c.Set(ContextUserID, sub)
		if email, ok := claims["email"].(string); ok {
			c.Set(ContextUserEmail, email)
		}
		c.Next()
	}
}

// UserID returns the authenticated subscriber's ID, or "" outside RequireUser.
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}
