// Package badges awards achievement badges based on verified redemptions.
package badges

import (
	"context"
	"errors"
	"fmt"

	prommetrics "github.com/wanderbite/wanderbite/internal/metrics"
	"github.com/wanderbite/wanderbite/internal/models"
	"github.com/wanderbite/wanderbite/internal/repository"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// BadgeRepository interface for badge operations.
type BadgeRepository interface {
	Create(badge *models.Badge) error
	GetByID(id string) (*models.Badge, error)
	GetAll() ([]models.Badge, error)
	AwardBadge(userID, badgeID string) (bool, error)
	GetUserBadges(userID string) ([]models.UserBadge, error)
}

// Catalog is the fixed badge set keyed to all-time verified redemption
// counts. Hitting a count awards every badge at that breakpoint.
var Catalog = []models.Badge{
	{ID: "first_bite", Name: "First Bite", Description: "Complete your first restaurant visit", Icon: "🍴", Threshold: 1},
	{ID: "hat_trick", Name: "Hat Trick", Description: "Complete three restaurant visits", Icon: "🎩", Threshold: 3},
	{ID: "wanderer", Name: "The Wanderer", Description: "Keep exploring: three visits and counting", Icon: "🧭", Threshold: 3},
	{ID: "high_five", Name: "High Five", Description: "Complete five restaurant visits", Icon: "🖐️", Threshold: 5},
}

// Service evaluates and awards badges.
type Service struct {
	badgeRepo BadgeRepository
	log       *logger.Logger
}

// NewService creates a new badge service.
func NewService(badgeRepo *repository.BadgeRepository, log *logger.Logger) *Service {
	return NewServiceWithInterfaces(badgeRepo, log)
}

// NewServiceWithInterfaces creates a new badge service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(badgeRepo BadgeRepository, log *logger.Logger) *Service {
	return &Service{badgeRepo: badgeRepo, log: log}
}

// EnsureCatalog inserts any catalog badges missing from the database.
// Run at startup; existing rows are left untouched.
func (s *Service) EnsureCatalog(ctx context.Context) error {
	_ = ctx
	for i := range Catalog {
		badge := Catalog[i]
		_, err := s.badgeRepo.GetByID(badge.ID)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("failed to check badge %s: %w", badge.ID, err)
		}
		if err := s.badgeRepo.Create(&badge); err != nil {
			return err
		}
		s.log.Info().Str("badge", badge.ID).Msg("Badge catalog entry created")
	}
	return nil
}

// AwardForVerifiedCount awards every badge whose threshold the user's
// all-time verified redemption count has reached. Awarding is idempotent;
// only newly earned badges are returned.
func (s *Service) AwardForVerifiedCount(ctx context.Context, userID string, verifiedCount int) ([]models.Badge, error) {
	_ = ctx
	catalog, err := s.badgeRepo.GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to load badge catalog: %w", err)
	}

	var newlyEarned []models.Badge
	for _, badge := range catalog {
		if verifiedCount < badge.Threshold {
			continue
		}
		awarded, err := s.badgeRepo.AwardBadge(userID, badge.ID)
		if err != nil {
			s.log.Error().
				Err(err).
				Str("user_id", userID).
				Str("badge", badge.ID).
				Msg("Failed to award badge")
			continue
		}
		if !awarded {
			continue
		}

		newlyEarned = append(newlyEarned, badge)
		prommetrics.RecordBadgeAwarded(badge.ID)
		s.log.Info().
			Str("user_id", userID).
			Str("badge", badge.ID).
			Int("verified_count", verifiedCount).
			Msg("Badge awarded")
	}
	return newlyEarned, nil
}

// GetUserBadges retrieves all badges earned by a user.
func (s *Service) GetUserBadges(ctx context.Context, userID string) ([]models.UserBadge, error) {
	_ = ctx
	return s.badgeRepo.GetUserBadges(userID)
}
