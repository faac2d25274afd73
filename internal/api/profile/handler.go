// Package profile provides the subscriber profile and onboarding API.
package profile

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wanderbite/wanderbite/internal/api/middleware"
	"github.com/wanderbite/wanderbite/internal/models"
	"github.com/wanderbite/wanderbite/internal/repository"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// ProfileRepository interface for profile operations.
type ProfileRepository interface {
	Create(profile *models.UserProfile) error
	GetByID(userID string) (*models.UserProfile, error)
	Update(profile *models.UserProfile) error
	UpdateOnboarding(userID, username, address string) error
}

// Handler handles profile API requests.
type Handler struct {
	profileRepo ProfileRepository
	log         *logger.Logger
}

// NewHandler creates a new profile handler.
func NewHandler(profileRepo *repository.ProfileRepository, log *logger.Logger) *Handler {
	return NewHandlerWithInterfaces(profileRepo, log)
}

// NewHandlerWithInterfaces creates a new profile handler with interface dependencies (useful for testing).
func NewHandlerWithInterfaces(profileRepo ProfileRepository, log *logger.Logger) *Handler {
	return &Handler{profileRepo: profileRepo, log: log}
}

// GetMe returns the caller's profile, creating an empty one on first access
// so the client never has to race a signup webhook.
// GET /api/v1/me.
func (h *Handler) GetMe(c *gin.Context) {
	userID := middleware.UserID(c)

	profile, err := h.profileRepo.GetByID(userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load profile")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to load profile")
			return
		}
		profile = &models.UserProfile{
			ID:    userID,
			Email: c.GetString(middleware.ContextUserEmail),
		}
		if err := h.profileRepo.Create(profile); err != nil {
			h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to create profile")
			h.errorResponse(c, http.StatusInternalServerError, "Failed to load profile")
			return
		}
	}

	c.JSON(http.StatusOK, profile)
}

type updateRequest struct {
	FullName     string   `json:"full_name"`
	PhoneNumber  string   `json:"phone_number"`
	DietaryFlags []string `json:"dietary_flags"`
	AllergyFlags []string `json:"allergy_flags"`
	DistanceBand string   `json:"distance_band"`
	MarketID     string   `json:"market_id"`
}

// UpdateMe updates preference fields on the caller's profile.
// PUT /api/v1/me.
func (h *Handler) UpdateMe(c *gin.Context) {
	userID := middleware.UserID(c)

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.DistanceBand != "" && !validDistanceBand(req.DistanceBand) {
		h.errorResponse(c, http.StatusBadRequest, "Invalid distance band")
		return
	}

	profile, err := h.profileRepo.GetByID(userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load profile")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	profile.FullName = req.FullName
	profile.PhoneNumber = req.PhoneNumber
	profile.DietaryFlags = req.DietaryFlags
	profile.AllergyFlags = req.AllergyFlags
	if req.DistanceBand != "" {
		profile.DistanceBand = req.DistanceBand
	}
	if req.MarketID != "" {
		profile.MarketID = req.MarketID
	}

	if err := h.profileRepo.Update(profile); err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to update profile")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to update profile")
		return
	}

	c.JSON(http.StatusOK, profile)
}

type onboardingRequest struct {
	Username string `json:"username" binding:"required"`
	Address  string `json:"address" binding:"required"`
}

// Onboarding records the username and address collected after signup.
// POST /api/v1/me/onboarding.
func (h *Handler) Onboarding(c *gin.Context) {
	userID := middleware.UserID(c)

	var req onboardingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, "username and address are required")
		return
	}

	if err := h.profileRepo.UpdateOnboarding(userID, req.Username, req.Address); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			h.errorResponse(c, http.StatusConflict, "Username is already taken")
			return
		}
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to save onboarding")
		h.errorResponse(c, http.StatusInternalServerError, "Failed to save onboarding")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Onboarding complete"})
}

func validDistanceBand(band string) bool {
	for _, b := range models.DistanceBands {
		if b == band {
			return true
		}
	}
	return false
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
