package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wanderbite/wanderbite/internal/session"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// SessionStore resolves partner session cookies.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (string, error)
}

// RequirePartner resolves the partner session cookie and stores the
// restaurant ID on the context.
func RequirePartner(store SessionStore, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		sessionID, err := c.Cookie(session.CookieName)
		if err != nil || sessionID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Partner login required"})
			c.Abort()
			return
		}

		restaurantID, err := store.Get(c.Request.Context(), sessionID)
		if err != nil {
			log.Debug().Err(err).Msg("Rejected partner session")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired, please log in again"})
			c.Abort()
			return
		}

		c.Set(ContextRestaurantID, restaurantID)
		c.Next()
	}
}

// RestaurantID returns the partner's restaurant ID, or "" outside RequirePartner.
func RestaurantID(c *gin.Context) string {
	return c.GetString(ContextRestaurantID)
}
