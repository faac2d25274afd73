// Package challenge provides the subscriber-facing REST API: monthly cycle
// generation, swapping, redemption and progress stats.
package challenge

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wanderbite/wanderbite/internal/api/middleware"
	"github.com/wanderbite/wanderbite/internal/models"
	challengesvc "github.com/wanderbite/wanderbite/internal/service/challenge"
	redemptionsvc "github.com/wanderbite/wanderbite/internal/service/redemption"
	"github.com/wanderbite/wanderbite/internal/service/stats"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// ChallengeService interface for cycle operations.
type ChallengeService interface {
	Generate(ctx context.Context, userID string) (*challengesvc.CycleView, error)
	GetCurrent(ctx context.Context, userID string) (*challengesvc.CycleView, error)
	Swap(ctx context.Context, userID, itemID string) (*challengesvc.CycleView, error)
}

// RedemptionService interface for token issuance.
type RedemptionService interface {
	Redeem(ctx context.Context, userID, itemID string) (*models.Redemption, error)
}

// StatsService interface for progress reports.
type StatsService interface {
	GetSummary(ctx context.Context, userID string) (*stats.Summary, error)
}

// Handler handles subscriber challenge API requests.
type Handler struct {
	challengeService  ChallengeService
	redemptionService RedemptionService
	statsService      StatsService
	log               *logger.Logger
}

// NewHandler creates a new challenge handler.
func NewHandler(challengeService *challengesvc.Service, redemptionService *redemptionsvc.Service, statsService *stats.Service, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(challengeService, redemptionService, statsService, log)
}

// NewHandlerWithInterfaces creates a new challenge handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(challengeService ChallengeService, redemptionService RedemptionService, statsService StatsService, log *logger.Logger) *Handler {
	return &Handler{
		challengeService:  challengeService,
		redemptionService: redemptionService,
		statsService:      statsService,
		log:               log,
	}
}

// Generate creates (or returns) this month's challenge cycle.
// POST /api/v1/challenge/generate.
func (h *Handler) Generate(c *gin.Context) {
	userID := middleware.UserID(c)

	view, err := h.challengeService.Generate(c.Request.Context(), userID)
	if err != nil {
		var inv *challengesvc.InsufficientInventoryError
		switch {
		case errors.Is(err, challengesvc.ErrSubscriptionRequired):
			h.errorResponse(c, http.StatusForbidden, "An active subscription is required")
		case errors.Is(err, challengesvc.ErrProfileIncomplete):
			h.errorResponse(c, http.StatusBadRequest, "Complete onboarding before generating a challenge")
		case errors.Is(err, challengesvc.ErrNoRestaurants):
			h.errorResponse(c, http.StatusConflict, "No eligible restaurants found in your market")
		case errors.As(err, &inv):
			h.errorResponse(c, http.StatusConflict, "Not enough restaurants available in your area this month")
		case errors.Is(err, challengesvc.ErrGenerationInProgress):
			h.errorResponse(c, http.StatusConflict, "Your challenge is being generated, try again in a moment")
		default:
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to generate challenge")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to generate challenge")
		}
		return
	}

	c.JSON(http.StatusOK, view)
}

// GetCurrent returns this month's cycle.
// GET /api/v1/challenge/current.
func (h *Handler) GetCurrent(c *gin.Context) {
	userID := middleware.UserID(c)

	view, err := h.challengeService.GetCurrent(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, challengesvc.ErrNoCycle) {
			h.errorResponse(c, http.StatusNotFound, "No challenge for this month yet")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load current challenge")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to load challenge")
		return
	}

	c.JSON(http.StatusOK, view)
}

// Swap replaces one challenge item with a new restaurant.
// POST /api/v1/challenge/items/:id/swap.
func (h *Handler) Swap(c *gin.Context) {
	userID := middleware.UserID(c)
	itemID := c.Param("id")

	view, err := h.challengeService.Swap(c.Request.Context(), userID, itemID)
	if err != nil {
		switch {
		case errors.Is(err, challengesvc.ErrItemNotFound):
			h.errorResponse(c, http.StatusNotFound, "Challenge item not found")
		case errors.Is(err, challengesvc.ErrNotOwner):
			h.errorResponse(c, http.StatusForbidden, "This item is not yours")
		case errors.Is(err, challengesvc.ErrItemNotSwappable):
			h.errorResponse(c, http.StatusConflict, "This item was already swapped")
		case errors.Is(err, challengesvc.ErrSwapLimitReached):
			h.errorResponse(c, http.StatusConflict, "You already used your swap for this month")
		case errors.Is(err, challengesvc.ErrNoReplacement):
			h.errorResponse(c, http.StatusConflict, "No replacement restaurant is available right now")
		default:
			h.log.Error().Err(err).Str("user_id", userID).Str("item_id", itemID).Msg("Failed to swap item")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to swap item")
		}
		return
	}

	c.JSON(http.StatusOK, view)
}

// Redeem issues the single-use code for an assigned item.
// POST /api/v1/challenge/items/:id/redeem.
func (h *Handler) Redeem(c *gin.Context) {
	userID := middleware.UserID(c)
	itemID := c.Param("id")

	redemption, err := h.redemptionService.Redeem(c.Request.Context(), userID, itemID)
	if err != nil {
		switch {
		case errors.Is(err, redemptionsvc.ErrItemNotFound):
			h.errorResponse(c, http.StatusNotFound, "Challenge item not found")
		case errors.Is(err, redemptionsvc.ErrNotOwner):
			h.errorResponse(c, http.StatusForbidden, "This item is not yours")
		case errors.Is(err, redemptionsvc.ErrAlreadyRedeemed):
			h.errorResponse(c, http.StatusConflict, "This challenge has already been redeemed")
		case errors.Is(err, redemptionsvc.ErrItemNotRedeemable):
			h.errorResponse(c, http.StatusConflict, "This item cannot be redeemed")
		default:
			h.log.Error().Err(err).Str("user_id", userID).Str("item_id", itemID).Msg("Failed to redeem item")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to redeem item")
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":         redemption.Token,
		"restaurant_id": redemption.RestaurantID,
		"status":        redemption.Status,
		"issued_at":     redemption.CreatedAt,
	})
}

// GetStats returns the subscriber's progress report.
// GET /api/v1/me/stats.
func (h *Handler) GetStats(c *gin.Context) {
	userID := middleware.UserID(c)

	summary, err := h.statsService.GetSummary(c.Request.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to build stats summary")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to load stats")
		return
	}

	c.JSON(http.StatusOK, summary)
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
