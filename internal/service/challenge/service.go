// Package challenge generates and maintains monthly restaurant challenges.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/wanderbite/wanderbite/internal/cache"
	prommetrics "github.com/wanderbite/wanderbite/internal/metrics"
	"github.com/wanderbite/wanderbite/internal/models"
	"github.com/wanderbite/wanderbite/internal/repository"
	"github.com/wanderbite/wanderbite/internal/service/eligibility"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// Typed errors surfaced to the API layer.
var (
	ErrSubscriptionRequired = errors.New("active subscription required")
	ErrProfileIncomplete    = errors.New("profile has no market assigned")
	ErrNoCycle              = errors.New("no active cycle for this month")
	ErrItemNotFound         = errors.New("challenge item not found")
	ErrNotOwner             = errors.New("challenge item belongs to another user")
	ErrItemNotSwappable     = errors.New("item was already swapped out")
	ErrSwapLimitReached     = errors.New("swap already used for this cycle")
	ErrNoReplacement        = errors.New("no eligible replacement restaurant available")
	ErrNoRestaurants        = errors.New("no active restaurants in this market")
	ErrGenerationInProgress = errors.New("challenge generation already in progress")
)

// InsufficientInventoryError is returned when even the relaxed rule set
// leaves fewer restaurants than a cycle needs. The cycle is not created.
type InsufficientInventoryError struct {
	Required int
	Eligible int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("not enough eligible restaurants: need %d, found %d", e.Required, e.Eligible)
}

// ChallengeRepository interface for cycle and item operations.
type ChallengeRepository interface {
	GetActiveCycle(userID string, cycleMonth time.Time) (*models.ChallengeCycle, error)
	GetCycleByID(id string) (*models.ChallengeCycle, error)
	GetItemByID(id string) (*models.ChallengeItem, error)
	ListItemsByCycle(cycleID string) ([]models.ChallengeItem, error)
	SwappedOutRestaurantIDs(userID string, since time.Time) ([]string, error)
	CycleRestaurantIDsSince(userID string, sinceMonth time.Time) ([]string, error)
	RestaurantCycleCounts(userID string, sinceMonth time.Time) (map[string]int, error)
	RestaurantIDsForMonth(userID string, cycleMonth time.Time) ([]string, error)
	CreateCycleWithItems(cycle *models.ChallengeCycle, items []models.ChallengeItem) error
	SwapItem(oldItem *models.ChallengeItem, replacement *models.ChallengeItem) error
}

// RestaurantRepository interface for restaurant pool operations.
type RestaurantRepository interface {
	GetByID(id string) (*models.Restaurant, error)
	ListActiveByMarket(marketID string) ([]models.Restaurant, error)
	GetActiveOffers(restaurantIDs []string) (map[string]models.RestaurantOffer, error)
}

// ProfileRepository interface for profile lookups.
type ProfileRepository interface {
	GetByID(userID string) (*models.UserProfile, error)
}

// RedemptionRepository interface for redemption history lookups.
type RedemptionRepository interface {
	ListVerifiedByUser(userID string) ([]models.Redemption, error)
	MonthlyCountsByRestaurant(monthStart, monthEnd time.Time) (map[string]int, error)
	IssuedTokensByItem(itemIDs []string) (map[string]string, error)
}

// Locker interface for the short-lived generation lock.
type Locker interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// ItemView is one challenge slot denormalized for API responses.
type ItemView struct {
	ItemID       string   `json:"item_id"`
	SlotNumber   int      `json:"slot_number"`
	Status       string   `json:"status"`
	RestaurantID string   `json:"restaurant_id"`
	Name         string   `json:"name"`
	CuisineTags  []string `json:"cuisine_tags"`
	Address      string   `json:"address"`
	// Offer terms at display time; zero when the restaurant's offer was
	// deactivated after assignment.
	DiscountAmountCents int `json:"discount_amount_cents"`
	MinSpendCents       int `json:"min_spend_cents"`
	// Token carries the outstanding redemption code for redeemed items and
	// is empty otherwise.
	Token string `json:"token,omitempty"`
}

// CycleView is the user-facing shape of a monthly cycle. Swapped-out items
// are omitted; each slot shows its current occupant.
type CycleView struct {
	CycleID        string     `json:"cycle_id"`
	CycleMonth     time.Time  `json:"cycle_month"`
	Status         string     `json:"status"`
	SwapsRemaining int        `json:"swaps_remaining"`
	Items          []ItemView `json:"items"`
}

// Service generates monthly cycles and handles the one-per-cycle swap.
type Service struct {
	challengeRepo  ChallengeRepository
	restaurantRepo RestaurantRepository
	profileRepo    ProfileRepository
	redemptionRepo RedemptionRepository
	locker         Locker
	itemsPerMonth  int
	log            *logger.Logger

	mu  sync.Mutex
	rng *rand.Rand
	now func() time.Time
}

// NewService creates a new challenge service.
func NewService(
	challengeRepo *repository.ChallengeRepository,
	restaurantRepo *repository.RestaurantRepository,
	profileRepo *repository.ProfileRepository,
	redemptionRepo *repository.RedemptionRepository,
	locker *cache.Cache,
	itemsPerMonth int,
	log *logger.Logger,
) *Service {
	return NewServiceWithInterfaces(challengeRepo, restaurantRepo, profileRepo, redemptionRepo, locker, itemsPerMonth, log)
}

// NewServiceWithInterfaces creates a new challenge service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	challengeRepo ChallengeRepository,
	restaurantRepo RestaurantRepository,
	profileRepo ProfileRepository,
	redemptionRepo RedemptionRepository,
	locker Locker,
	itemsPerMonth int,
	log *logger.Logger,
) *Service {
	return &Service{
		challengeRepo:  challengeRepo,
		restaurantRepo: restaurantRepo,
		profileRepo:    profileRepo,
		redemptionRepo: redemptionRepo,
		locker:         locker,
		itemsPerMonth:  itemsPerMonth,
		log:            log,
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Generate creates the user's challenge cycle for the current calendar month.
// Generation is idempotent: if a cycle already exists for the month it is
// returned unchanged, whether the repeat call raced this one or not.
func (s *Service) Generate(ctx context.Context, userID string) (*CycleView, error) {
	profile, err := s.profileRepo.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	if !profile.HasActiveSubscription() {
		return nil, ErrSubscriptionRequired
	}
	if profile.MarketID == "" {
		return nil, ErrProfileIncomplete
	}

	now := s.now()
	month := monthStart(now)

	existing, err := s.challengeRepo.GetActiveCycle(userID, month)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.buildView(existing)
	}

	lockKey := fmt.Sprintf("lock:challenge:generate:%s", userID)
	acquired, lockErr := s.locker.SetNX(ctx, lockKey, "1", 10*time.Second)
	if lockErr != nil {
		// The DB unique index still guarantees a single cycle; the lock
		// only spares the loser the wasted filtering work.
		s.log.Warn().Err(lockErr).Str("user_id", userID).Msg("Generation lock unavailable, continuing without it")
		acquired = true
	} else if !acquired {
		existing, err = s.challengeRepo.GetActiveCycle(userID, month)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.buildView(existing)
		}
		return nil, ErrGenerationInProgress
	} else {
		defer func() {
			if delErr := s.locker.Del(ctx, lockKey); delErr != nil {
				s.log.Warn().Err(delErr).Str("user_id", userID).Msg("Failed to release generation lock")
			}
		}()
	}

	eligible, err := s.eligiblePool(profile, userID, month, now, nil, true)
	if err != nil {
		if errors.Is(err, ErrNoRestaurants) {
			prommetrics.RecordGeneration(profile.MarketID, "empty_market")
			s.log.Warn().
				Str("user_id", userID).
				Str("market_id", profile.MarketID).
				Msg("No active restaurants in market")
		}
		return nil, err
	}
	prommetrics.EligiblePoolSize.Observe(float64(len(eligible)))

	if len(eligible) < s.itemsPerMonth {
		prommetrics.RecordGeneration(profile.MarketID, "shortfall")
		s.log.Warn().
			Str("user_id", userID).
			Str("market_id", profile.MarketID).
			Int("eligible", len(eligible)).
			Int("required", s.itemsPerMonth).
			Msg("Not enough eligible restaurants for cycle")
		return nil, &InsufficientInventoryError{Required: s.itemsPerMonth, Eligible: len(eligible)}
	}

	s.mu.Lock()
	picks := PickK(s.rng, eligible, s.itemsPerMonth)
	s.mu.Unlock()

	cycle := &models.ChallengeCycle{
		UserID:     userID,
		CycleMonth: month,
		Status:     models.CycleStatusActive,
	}
	items := make([]models.ChallengeItem, 0, len(picks))
	for i, pick := range picks {
		items = append(items, models.ChallengeItem{
			RestaurantID: pick.ID,
			SlotNumber:   i + 1,
			Status:       models.ItemStatusAssigned,
		})
	}

	if err := s.challengeRepo.CreateCycleWithItems(cycle, items); err != nil {
		if errors.Is(err, repository.ErrDuplicateCycle) {
			existing, readErr := s.challengeRepo.GetActiveCycle(userID, month)
			if readErr != nil {
				return nil, readErr
			}
			if existing != nil {
				return s.buildView(existing)
			}
		}
		return nil, err
	}

	prommetrics.RecordGeneration(profile.MarketID, "generated")
	s.log.Info().
		Str("user_id", userID).
		Str("cycle_id", cycle.ID).
		Str("market_id", profile.MarketID).
		Time("cycle_month", month).
		Int("pool_size", len(eligible)).
		Msg("Challenge cycle generated")

	return s.buildView(cycle)
}

// GetCurrent returns the user's cycle for the current month, or ErrNoCycle.
func (s *Service) GetCurrent(ctx context.Context, userID string) (*CycleView, error) {
	_ = ctx
	cycle, err := s.challengeRepo.GetActiveCycle(userID, monthStart(s.now()))
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, ErrNoCycle
	}
	return s.buildView(cycle)
}

// Swap replaces one item with a fresh eligible restaurant. Any item still
// occupying its slot qualifies, redeemed or not; only swapped-out items are
// refused. Each cycle allows exactly one swap; the replacement inherits the
// slot and the outgoing restaurant enters the 3-month swap cooldown.
func (s *Service) Swap(ctx context.Context, userID, itemID string) (*CycleView, error) {
	_ = ctx
	item, err := s.challengeRepo.GetItemByID(itemID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrItemNotFound
		}
		return nil, err
	}

	// Checked in order: a swapped-out item reports as such even when the
	// caller does not own it. Redeemed items remain swappable.
	if item.Status == models.ItemStatusSwappedOut {
		return nil, ErrItemNotSwappable
	}

	cycle, err := s.challengeRepo.GetCycleByID(item.CycleID)
	if err != nil {
		return nil, err
	}
	if cycle.UserID != userID {
		return nil, ErrNotOwner
	}
	if cycle.Status != models.CycleStatusActive {
		return nil, ErrItemNotSwappable
	}
	if cycle.SwapCountUsed >= 1 {
		return nil, ErrSwapLimitReached
	}

	profile, err := s.profileRepo.GetByID(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	// Restaurants already in the cycle, swapped out or not, are never
	// offered as replacements.
	cycleItems, err := s.challengeRepo.ListItemsByCycle(cycle.ID)
	if err != nil {
		return nil, err
	}
	inCycle := make(map[string]bool, len(cycleItems))
	for _, ci := range cycleItems {
		inCycle[ci.RestaurantID] = true
	}

	now := s.now()
	// Replacements come from the full-strength rules only. A swap is a
	// correction, not a guarantee, so it gets no relaxed fallback.
	eligible, err := s.eligiblePool(profile, userID, cycle.CycleMonth, now, inCycle, false)
	if err != nil {
		if errors.Is(err, ErrNoRestaurants) {
			prommetrics.RecordSwap("no_replacement")
			return nil, ErrNoReplacement
		}
		return nil, err
	}
	if len(eligible) == 0 {
		prommetrics.RecordSwap("no_replacement")
		return nil, ErrNoReplacement
	}

	s.mu.Lock()
	pick := PickOne(s.rng, eligible)
	s.mu.Unlock()

	replacement := &models.ChallengeItem{
		CycleID:           cycle.ID,
		RestaurantID:      pick.ID,
		SlotNumber:        item.SlotNumber,
		Status:            models.ItemStatusAssigned,
		SwappedFromItemID: &item.ID,
	}
	if err := s.challengeRepo.SwapItem(item, replacement); err != nil {
		if errors.Is(err, repository.ErrSwapConflict) {
			prommetrics.RecordSwap("conflict")
			return nil, ErrSwapLimitReached
		}
		return nil, err
	}

	prommetrics.RecordSwap("swapped")
	s.log.Info().
		Str("user_id", userID).
		Str("cycle_id", cycle.ID).
		Str("old_restaurant_id", item.RestaurantID).
		Str("new_restaurant_id", pick.ID).
		Msg("Challenge item swapped")

	updated, err := s.challengeRepo.GetCycleByID(cycle.ID)
	if err != nil {
		return nil, err
	}
	return s.buildView(updated)
}

// eligiblePool loads the market pool and the user's history, then applies the
// exclusion rules. When allowRelaxed is set and the full-strength result
// cannot fill a cycle, the relaxed rule set is applied instead. Restaurants
// in the exclude set are removed after filtering.
func (s *Service) eligiblePool(profile *models.UserProfile, userID string, month, now time.Time, exclude map[string]bool, allowRelaxed bool) ([]models.Restaurant, error) {
	pool, err := s.restaurantRepo.ListActiveByMarket(profile.MarketID)
	if err != nil {
		return nil, err
	}
	// An empty catalog is reported before filtering; a shortfall after
	// filtering reads differently to the caller.
	if len(pool) == 0 {
		return nil, ErrNoRestaurants
	}

	ids := make([]string, 0, len(pool))
	for _, r := range pool {
		ids = append(ids, r.ID)
	}
	offers, err := s.restaurantRepo.GetActiveOffers(ids)
	if err != nil {
		return nil, err
	}

	hist, err := s.buildHistory(userID, month, now)
	if err != nil {
		return nil, err
	}
	prefs := eligibility.Preferences{
		DietaryFlags: profile.DietaryFlags,
		AllergyFlags: profile.AllergyFlags,
	}

	eligible, _ := eligibility.Filter(pool, offers, prefs, hist)
	eligible = without(eligible, exclude)
	if !allowRelaxed || len(eligible) >= s.itemsPerMonth {
		return eligible, nil
	}

	relaxed, _ := eligibility.FilterRelaxed(pool, offers, prefs, hist)
	relaxed = without(relaxed, exclude)
	s.log.Debug().
		Str("user_id", userID).
		Int("strict", len(eligible)).
		Int("relaxed", len(relaxed)).
		Msg("Falling back to relaxed eligibility rules")
	return relaxed, nil
}

func (s *Service) buildHistory(userID string, month, now time.Time) (eligibility.History, error) {
	swapped, err := s.challengeRepo.SwappedOutRestaurantIDs(userID, now.AddDate(0, -3, 0))
	if err != nil {
		return eligibility.History{}, err
	}
	received6, err := s.challengeRepo.CycleRestaurantIDsSince(userID, month.AddDate(0, -6, 0))
	if err != nil {
		return eligibility.History{}, err
	}
	counts12, err := s.challengeRepo.RestaurantCycleCounts(userID, month.AddDate(-1, 0, 0))
	if err != nil {
		return eligibility.History{}, err
	}
	lastMonth, err := s.challengeRepo.RestaurantIDsForMonth(userID, month.AddDate(0, -1, 0))
	if err != nil {
		return eligibility.History{}, err
	}
	monthly, err := s.redemptionRepo.MonthlyCountsByRestaurant(month, month.AddDate(0, 1, 0))
	if err != nil {
		return eligibility.History{}, err
	}
	verified, err := s.redemptionRepo.ListVerifiedByUser(userID)
	if err != nil {
		return eligibility.History{}, err
	}

	return eligibility.History{
		VerifiedRedemptions:     verified,
		SwappedOut:              toSet(swapped),
		ReceivedLast6Months:     toSet(received6),
		CycleCounts12Months:     counts12,
		LastMonthRestaurants:    toSet(lastMonth),
		MonthlyRedemptionCounts: monthly,
		Now:                     now,
	}, nil
}

func (s *Service) buildView(cycle *models.ChallengeCycle) (*CycleView, error) {
	items, err := s.challengeRepo.ListItemsByCycle(cycle.ID)
	if err != nil {
		return nil, err
	}

	redeemedIDs := make([]string, 0, len(items))
	restaurantIDs := make([]string, 0, len(items))
	for _, item := range items {
		if item.Status == models.ItemStatusRedeemed {
			redeemedIDs = append(redeemedIDs, item.ID)
		}
		if item.IsActive() {
			restaurantIDs = append(restaurantIDs, item.RestaurantID)
		}
	}
	tokens, err := s.redemptionRepo.IssuedTokensByItem(redeemedIDs)
	if err != nil {
		return nil, err
	}
	offers, err := s.restaurantRepo.GetActiveOffers(restaurantIDs)
	if err != nil {
		return nil, err
	}

	view := &CycleView{
		CycleID:        cycle.ID,
		CycleMonth:     cycle.CycleMonth,
		Status:         cycle.Status,
		SwapsRemaining: 1 - cycle.SwapCountUsed,
		Items:          make([]ItemView, 0, len(items)),
	}
	for _, item := range items {
		if !item.IsActive() {
			continue
		}
		restaurant, err := s.restaurantRepo.GetByID(item.RestaurantID)
		if err != nil {
			return nil, err
		}
		offer := offers[item.RestaurantID]
		view.Items = append(view.Items, ItemView{
			ItemID:              item.ID,
			SlotNumber:          item.SlotNumber,
			Status:              item.Status,
			RestaurantID:        restaurant.ID,
			Name:                restaurant.Name,
			CuisineTags:         restaurant.CuisineTags,
			Address:             restaurant.Address,
			DiscountAmountCents: offer.DiscountAmountCents,
			MinSpendCents:       offer.MinSpendCents,
			Token:               tokens[item.ID],
		})
	}
	return view, nil
}

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func toSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func without(pool []models.Restaurant, exclude map[string]bool) []models.Restaurant {
	if len(exclude) == 0 {
		return pool
	}
	kept := pool[:0]
	for _, r := range pool {
		if !exclude[r.ID] {
			kept = append(kept, r)
		}
	}
	return kept
}
