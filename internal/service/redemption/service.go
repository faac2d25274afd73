// Package redemption issues redemption tokens and verifies them for partners.
package redemption

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	prommetrics "github.com/wanderbite/wanderbite/internal/metrics"
	"github.com/wanderbite/wanderbite/internal/models"
	"github.com/wanderbite/wanderbite/internal/repository"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// Typed errors surfaced to the API layer.
var (
	ErrItemNotFound      = errors.New("challenge item not found")
	ErrNotOwner          = errors.New("challenge item belongs to another user")
	ErrAlreadyRedeemed   = errors.New("challenge item was already redeemed")
	ErrItemNotRedeemable = errors.New("item is not available for redemption")
	// ErrInvalidCode covers both unknown tokens and tokens issued for a
	// different restaurant. Partners get one generic failure either way.
	ErrInvalidCode  = errors.New("invalid redemption code")
	ErrTokenExpired = errors.New("redemption code has expired")
)

// AlreadyUsedError is returned when a partner submits a code that was
// verified before, citing when that happened.
type AlreadyUsedError struct {
	VerifiedAt time.Time
}

func (e *AlreadyUsedError) Error() string {
	return fmt.Sprintf("code already used on %s", e.VerifiedAt.Format("2006-01-02"))
}

// RedemptionRepository interface for redemption operations.
type RedemptionRepository interface {
	CreateWithItemUpdate(redemption *models.Redemption) error
	GetByToken(token string) (*models.Redemption, error)
	MarkVerified(id string, verifiedAt time.Time) error
	CountVerifiedByUser(userID string) (int64, error)
	CountVerifiedByRestaurantSince(restaurantID string, since time.Time) (int64, error)
}

// ChallengeRepository interface for item ownership checks.
type ChallengeRepository interface {
	GetItemByID(id string) (*models.ChallengeItem, error)
	GetCycleByID(id string) (*models.ChallengeCycle, error)
}

// ProfileRepository interface for profile lookups.
type ProfileRepository interface {
	GetByID(userID string) (*models.UserProfile, error)
}

// RestaurantRepository interface for restaurant lookups.
type RestaurantRepository interface {
	GetByID(id string) (*models.Restaurant, error)
}

// BadgeAwarder awards badges after a successful verification.
type BadgeAwarder interface {
	AwardForVerifiedCount(ctx context.Context, userID string, verifiedCount int) ([]models.Badge, error)
}

// VerifyResult is what partner staff see after a successful verification.
type VerifyResult struct {
	UserEmail      string         `json:"user_email"`
	RestaurantName string         `json:"restaurant_name"`
	VerifiedAt     time.Time      `json:"verified_at"`
	NewBadges      []models.Badge `json:"new_badges,omitempty"`
}

// Service issues and verifies redemption tokens.
type Service struct {
	redemptionRepo RedemptionRepository
	challengeRepo  ChallengeRepository
	profileRepo    ProfileRepository
	restaurantRepo RestaurantRepository
	badges         BadgeAwarder
	log            *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewService creates a new redemption service.
func NewService(
	redemptionRepo *repository.RedemptionRepository,
	challengeRepo *repository.ChallengeRepository,
	profileRepo *repository.ProfileRepository,
	restaurantRepo *repository.RestaurantRepository,
	badges BadgeAwarder,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(redemptionRepo, challengeRepo, profileRepo, restaurantRepo, badges, log)
}

// NewServiceWithInterfaces creates a new redemption service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	redemptionRepo RedemptionRepository,
	challengeRepo ChallengeRepository,
	profileRepo ProfileRepository,
	restaurantRepo RestaurantRepository,
	badges BadgeAwarder,
	log *logger.Logger,
) *Service {
	return &Service{
		redemptionRepo: redemptionRepo,
		challengeRepo:  challengeRepo,
		profileRepo:    profileRepo,
		restaurantRepo: restaurantRepo,
		badges:         badges,
		log:            log,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Redeem issues a single-use token for an assigned challenge item. Only
// assigned items are redeemable; a repeat attempt fails with
// ErrAlreadyRedeemed rather than re-issuing or echoing the existing token.
func (s *Service) Redeem(ctx context.Context, userID, itemID string) (*models.Redemption, error) {
	_ = ctx
	item, err := s.challengeRepo.GetItemByID(itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	cycle, err := s.challengeRepo.GetCycleByID(item.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle.UserID != userID {
		return nil, ErrNotOwner
	}

	switch item.Status {
	case models.ItemStatusAssigned:
	case models.ItemStatusRedeemed:
		return nil, ErrAlreadyRedeemed
	default:
		return nil, ErrItemNotRedeemable
	}

	token, err := s.freshToken()
	if err != nil {
		return nil, err
	}

	redemption := &models.Redemption{
		UserID:          userID,
		RestaurantID:    item.RestaurantID,
		ChallengeItemID: item.ID,
		Token:           token,
		Status:          models.RedemptionStatusIssued,
	}
	if err := s.redemptionRepo.CreateWithItemUpdate(redemption); err != nil {
		if errors.Is(err, repository.ErrAlreadyVerified) {
			// A concurrent redeem won the item
			return nil, ErrAlreadyRedeemed
		}
		return nil, err
	}

	prommetrics.RedemptionsIssuedTotal.Inc()
	s.log.Info().
		Str("user_id", userID).
		Str("item_id", item.ID).
		Str("restaurant_id", item.RestaurantID).
		Msg("Redemption token issued")

	return redemption, nil
}

// Verify marks a code as used on behalf of partner staff. The lookup is
// case-insensitive and scoped to the verifying restaurant; codes from other
// restaurants read as invalid rather than leaking their existence.
func (s *Service) Verify(ctx context.Context, restaurantID, code string) (*VerifyResult, error) {
	redemption, err := s.redemptionRepo.GetByToken(code)
	if err != nil {
		return nil, err
	}
	if redemption == nil || redemption.RestaurantID != restaurantID {
		prommetrics.RecordVerification(prommetrics.OutcomeInvalid)
		return nil, ErrInvalidCode
	}

	switch redemption.Status {
	case models.RedemptionStatusVerified:
		prommetrics.RecordVerification(prommetrics.OutcomeAlreadyUsed)
		return nil, &AlreadyUsedError{VerifiedAt: redemption.EffectiveVerifiedAt()}
	case models.RedemptionStatusExpired:
		prommetrics.RecordVerification(prommetrics.OutcomeExpired)
		return nil, ErrTokenExpired
	}

	verifiedAt := s.now()
	if err := s.redemptionRepo.MarkVerified(redemption.ID, verifiedAt); err != nil {
		if errors.Is(err, repository.ErrAlreadyVerified) {
			prommetrics.RecordVerification(prommetrics.OutcomeAlreadyUsed)
			used, readErr := s.redemptionRepo.GetByToken(code)
			if readErr == nil && used != nil {
				return nil, &AlreadyUsedError{VerifiedAt: used.EffectiveVerifiedAt()}
			}
			return nil, &AlreadyUsedError{VerifiedAt: verifiedAt}
		}
		return nil, err
	}

	result := &VerifyResult{VerifiedAt: verifiedAt}
	if profile, err := s.profileRepo.GetByID(redemption.UserID); err == nil {
		result.UserEmail = profile.Email
	}
	if restaurant, err := s.restaurantRepo.GetByID(redemption.RestaurantID); err == nil {
		result.RestaurantName = restaurant.Name
	}

	count, err := s.redemptionRepo.CountVerifiedByUser(redemption.UserID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", redemption.UserID).Msg("Failed to count verified redemptions")
	} else {
		newBadges, badgeErr := s.badges.AwardForVerifiedCount(ctx, redemption.UserID, int(count))
		if badgeErr != nil {
			s.log.Error().Err(badgeErr).Str("user_id", redemption.UserID).Msg("Badge awarding failed after verification")
		} else {
			result.NewBadges = newBadges
		}
	}

	prommetrics.RecordVerification(prommetrics.OutcomeVerified)
	s.log.Info().
		Str("redemption_id", redemption.ID).
		Str("restaurant_id", restaurantID).
		Str("user_id", redemption.UserID).
		Msg("Redemption verified")

	return result, nil
}

// MonthlyVerifiedCount returns a restaurant's verified redemptions so far
// this calendar month, for the partner dashboard.
func (s *Service) MonthlyVerifiedCount(ctx context.Context, restaurantID string) (int64, error) {
	_ = ctx
	now := s.now()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return s.redemptionRepo.CountVerifiedByRestaurantSince(restaurantID, start)
}

// freshToken draws codes until one is unused. Collisions are rare with a
// 32^5 space but cheap to rule out entirely.
func (s *Service) freshToken() (string, error) {
	for attempt := 0; attempt < 5; attempt++ {
		s.mu.Lock()
		token := NewToken(s.rng)
		s.mu.Unlock()

		existing, err := s.redemptionRepo.GetByToken(token)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return token, nil
		}
	}
	return "", errors.New("failed to generate a unique redemption code")
}
