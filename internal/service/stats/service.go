// Package stats assembles subscriber progress: XP, level and visit history.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/wanderbite/wanderbite/internal/models"
	"github.com/wanderbite/wanderbite/internal/repository"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// XPPerVisit is the experience earned per verified redemption.
const XPPerVisit = 100

// Level is one rung of the progression ladder.
type Level struct {
	Name  string `json:"name"`
	MinXP int    `json:"min_xp"`
}

// Levels in ascending MinXP order.
var Levels = []Level{
	{Name: "The Explorer", MinXP: 0},
	{Name: "The Tastemaker", MinXP: 500},
	{Name: "The Connoisseur", MinXP: 1500},
	{Name: "The Local Legend", MinXP: 3000},
}

// LevelForXP returns the highest level reached and, unless the ladder is
// topped out, the next one.
func LevelForXP(xp int) (Level, *Level) {
	current := Levels[0]
	for i, level := range Levels {
		if xp >= level.MinXP {
			current = level
			continue
		}
		next := Levels[i]
		return current, &next
	}
	return current, nil
}

// Visit is one verified redemption in the user's history.
type Visit struct {
	RestaurantID   string    `json:"restaurant_id"`
	RestaurantName string    `json:"restaurant_name"`
	VerifiedAt     time.Time `json:"verified_at"`
}

// Summary is the user-facing progress report.
type Summary struct {
	XP         int                `json:"xp"`
	Level      string             `json:"level"`
	NextLevel  string             `json:"next_level,omitempty"`
	XPToNext   int                `json:"xp_to_next,omitempty"`
	VisitCount int                `json:"visit_count"`
	Visits     []Visit            `json:"visits"`
	Badges     []models.UserBadge `json:"badges"`
}

// RedemptionRepository interface for redemption history lookups.
type RedemptionRepository interface {
	ListVerifiedByUser(userID string) ([]models.Redemption, error)
}

// RestaurantRepository interface for restaurant lookups.
type RestaurantRepository interface {
	GetByID(id string) (*models.Restaurant, error)
}

// BadgeRepository interface for earned badge lookups.
type BadgeRepository interface {
	GetUserBadges(userID string) ([]models.UserBadge, error)
}

// Service computes subscriber progression.
type Service struct {
	redemptionRepo RedemptionRepository
	restaurantRepo RestaurantRepository
	badgeRepo      BadgeRepository
	log            *logger.Logger
}

// NewService creates a new stats service.
func NewService(
	redemptionRepo *repository.RedemptionRepository,
	restaurantRepo *repository.RestaurantRepository,
	badgeRepo *repository.BadgeRepository,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(redemptionRepo, restaurantRepo, badgeRepo, log)
}

// NewServiceWithInterfaces creates a new stats service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	redemptionRepo RedemptionRepository,
	restaurantRepo RestaurantRepository,
	badgeRepo BadgeRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		redemptionRepo: redemptionRepo,
		restaurantRepo: restaurantRepo,
		badgeRepo:      badgeRepo,
		log:            log,
	}
}

// GetSummary builds the full progress report for a user.
func (s *Service) GetSummary(ctx context.Context, userID string) (*Summary, error) {
	_ = ctx
	verified, err := s.redemptionRepo.ListVerifiedByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load verified redemptions: %w", err)
	}

	xp := len(verified) * XPPerVisit
	current, next := LevelForXP(xp)

	summary := &Summary{
		XP:         xp,
		Level:      current.Name,
		VisitCount: len(verified),
		Visits:     make([]Visit, 0, len(verified)),
	}
	if next != nil {
		summary.NextLevel = next.Name
		summary.XPToNext = next.MinXP - xp
	}

	for _, red := range verified {
		visit := Visit{
			RestaurantID: red.RestaurantID,
			VerifiedAt:   red.EffectiveVerifiedAt(),
		}
		restaurant, err := s.restaurantRepo.GetByID(red.RestaurantID)
		if err != nil {
			// A delisted restaurant still counts; show the visit without a name.
			s.log.Warn().Err(err).Str("restaurant_id", red.RestaurantID).Msg("Restaurant missing for visit history")
		} else {
			visit.RestaurantName = restaurant.Name
		}
		summary.Visits = append(summary.Visits, visit)
	}

	badges, err := s.badgeRepo.GetUserBadges(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load badges: %w", err)
	}
	summary.Badges = badges

	return summary, nil
}
