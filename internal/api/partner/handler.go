// Package partner provides the partner-staff REST API: PIN login, code
// verification and the monthly dashboard.
package partner

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wanderbite/wanderbite/internal/api/middleware"
	"github.com/wanderbite/wanderbite/internal/models"
	"github.com/wanderbite/wanderbite/internal/repository"
	redemptionsvc "github.com/wanderbite/wanderbite/internal/service/redemption"
	"github.com/wanderbite/wanderbite/internal/session"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// RestaurantRepository interface for partner authentication.
type RestaurantRepository interface {
	VerifyPIN(restaurantID, pin string) (*models.Restaurant, error)
	GetByID(id string) (*models.Restaurant, error)
}

// SessionStore interface for partner sessions.
type SessionStore interface {
	Create(ctx context.Context, restaurantID string) (string, error)
	Destroy(ctx context.Context, sessionID string) error
	TTL() time.Duration
}

// RedemptionService interface for verification operations.
type RedemptionService interface {
	Verify(ctx context.Context, restaurantID, code string) (*redemptionsvc.VerifyResult, error)
	MonthlyVerifiedCount(ctx context.Context, restaurantID string) (int64, error)
}

// Handler handles partner API requests.
type Handler struct {
	restaurantRepo    RestaurantRepository
	sessions          SessionStore
	redemptionService RedemptionService
	secureCookies     bool
	log               *logger.Logger
}

// NewHandler creates a new partner handler.
func NewHandler(restaurantRepo *repository.RestaurantRepository, sessions *session.Store, redemptionService *redemptionsvc.Service, secureCookies bool, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(restaurantRepo, sessions, redemptionService, secureCookies, log)
}

// NewHandlerWithInterfaces creates a new partner handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(restaurantRepo RestaurantRepository, sessions SessionStore, redemptionService RedemptionService, secureCookies bool, log *logger.Logger) *Handler {
	return &Handler{
		restaurantRepo:    restaurantRepo,
		sessions:          sessions,
		redemptionService: redemptionService,
		secureCookies:     secureCookies,
		log:               log,
	}
}

type loginRequest struct {
	RestaurantID string `json:"restaurant_id" binding:"required"`
	PIN          string `json:"pin" binding:"required"`
}

// Login authenticates partner staff with their restaurant PIN and sets the
// session cookie.
// POST /api/v1/partner/login.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "restaurant_id and pin are required")
		return
	}

	restaurant, err := h.restaurantRepo.VerifyPIN(req.RestaurantID, req.PIN)
	if err != nil {
		h.log.Error().Err(err).Str("restaurant_id", req.RestaurantID).Msg("PIN verification failed")
		h.errorResponse(c, http.StatusInternalServerError, "Login failed")
		return
	}
	if restaurant == nil {
		// Unknown restaurant and wrong PIN read identically.
		h.errorResponse(c, http.StatusUnauthorized, "Invalid restaurant or PIN")
		return
	}

	sessionID, err := h.sessions.Create(c.Request.Context(), restaurant.ID)
	if err != nil {
		h.log.Error().Err(err).Str("restaurant_id", restaurant.ID).Msg("Failed to create partner session")
		h.errorResponse(c, http.StatusInternalServerError, "Login failed")
		return
	}

	c.SetCookie(session.CookieName, sessionID, int(h.sessions.TTL().Seconds()), "/", "", h.secureCookies, true)
	h.log.Info().Str("restaurant_id", restaurant.ID).Msg("Partner logged in")

	c.JSON(http.StatusOK, gin.H{
		"restaurant_id":   restaurant.ID,
		"restaurant_name": restaurant.Name,
	})
}

// Logout destroys the partner session.
// POST /api/v1/partner/logout.
func (h *Handler) Logout(c *gin.Context) {
	if sessionID, err := c.Cookie(session.CookieName); err == nil && sessionID != "" {
		if err := h.sessions.Destroy(c.Request.Context(), sessionID); err != nil {
			h.log.Warn().Err(err).Msg("Failed to destroy partner session")
		}
	}
	c.SetCookie(session.CookieName, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

type verifyRequest struct {
	Code string `json:"code" binding:"required"`
}

// Verify marks a customer's redemption code as used.
// POST /api/v1/partner/verify.
func (h *Handler) Verify(c *gin.Context) {
	restaurantID := middleware.RestaurantID(c)

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "code is required")
		return
	}

	result, err := h.redemptionService.Verify(c.Request.Context(), restaurantID, req.Code)
	if err != nil {
		var used *redemptionsvc.AlreadyUsedError
		switch {
		case errors.Is(err, redemptionsvc.ErrInvalidCode):
			h.errorResponse(c, http.StatusNotFound, "Invalid code")
		case errors.As(err, &used):
			c.JSON(http.StatusConflict, gin.H{
				"error":       "Code already used",
				"verified_at": used.VerifiedAt,
				"timestamp":   time.Now().UTC(),
			})
		case errors.Is(err, redemptionsvc.ErrTokenExpired):
			h.errorResponse(c, http.StatusGone, "Code has expired")
		default:
			h.log.Error().Err(err).Str("restaurant_id", restaurantID).Msg("Verification failed")
			h.errorResponse(c, http.StatusInternalServerError, "Verification failed")
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

// Dashboard returns the restaurant's verified redemption count for the
// current month.
// GET /api/v1/partner/dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	restaurantID := middleware.RestaurantID(c)

	restaurant, err := h.restaurantRepo.GetByID(restaurantID)
	if err != nil {
		h.log.Error().Err(err).Str("restaurant_id", restaurantID).Msg("Failed to load restaurant")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to load dashboard")
		return
	}

	count, err := h.redemptionService.MonthlyVerifiedCount(c.Request.Context(), restaurantID)
	if err != nil {
		h.log.Error().Err(err).Str("restaurant_id", restaurantID).Msg("Failed to count verified redemptions")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to load dashboard")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"restaurant_id":       restaurant.ID,
		"restaurant_name":     restaurant.Name,
		"verified_this_month": count,
		"generated_at":        time.Now().UTC(),
	})
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
