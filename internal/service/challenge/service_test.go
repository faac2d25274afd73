package challenge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/wanderbite/wanderbite/internal/models"
	"github.com/wanderbite/wanderbite/internal/repository"
	"github.com/wanderbite/wanderbite/pkg/logger"
)

// Mock repositories for testing
type mockChallengeRepository struct {
	cycles map[string]*models.ChallengeCycle
	items  map[string][]models.ChallengeItem // cycleID -> items

	swappedOut []string
	received6  []string
	counts12   map[string]int
	lastMonth  []string

	createCalls   int
	createErr     error
	conflictCycle *models.ChallengeCycle
	nextID        int
}

func newMockChallengeRepository() *mockChallengeRepository {
	return &mockChallengeRepository{
		cycles:   make(map[string]*models.ChallengeCycle),
		items:    make(map[string][]models.ChallengeItem),
		counts12: make(map[string]int),
		nextID:   1,
	}
}

func (m *mockChallengeRepository) addCycle(cycle *models.ChallengeCycle, items ...models.ChallengeItem) {
	m.cycles[cycle.ID] = cycle
	m.items[cycle.ID] = items
}

func (m *mockChallengeRepository) GetActiveCycle(userID string, cycleMonth time.Time) (*models.ChallengeCycle, error) {
	for _, c := range m.cycles {
		if c.UserID == userID && c.CycleMonth.Equal(cycleMonth) && c.Status == models.CycleStatusActive {
			return c, nil
		}
	}
	return nil, nil
}

func (m *mockChallengeRepository) GetCycleByID(id string) (*models.ChallengeCycle, error) {
	if c, ok := m.cycles[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("failed to get cycle %s: %w", id, repository.ErrNotFound)
}

func (m *mockChallengeRepository) GetItemByID(id string) (*models.ChallengeItem, error) {
	for _, items := range m.items {
		for i := range items {
			if items[i].ID == id {
				item := items[i]
				return &item, nil
			}
		}
	}
	return nil, fmt.Errorf("failed to get challenge item %s: %w", id, repository.ErrNotFound)
}

func (m *mockChallengeRepository) ListItemsByCycle(cycleID string) ([]models.ChallengeItem, error) {
	return m.items[cycleID], nil
}

func (m *mockChallengeRepository) SwappedOutRestaurantIDs(string, time.Time) ([]string, error) {
	return m.swappedOut, nil
}

func (m *mockChallengeRepository) CycleRestaurantIDsSince(string, time.Time) ([]string, error) {
	return m.received6, nil
}

func (m *mockChallengeRepository) RestaurantCycleCounts(string, time.Time) (map[string]int, error) {
	return m.counts12, nil
}

func (m *mockChallengeRepository) RestaurantIDsForMonth(string, time.Time) ([]string, error) {
	return m.lastMonth, nil
}

func (m *mockChallengeRepository) CreateCycleWithItems(cycle *models.ChallengeCycle, items []models.ChallengeItem) error {
	m.createCalls++
	if m.createErr != nil {
		if m.conflictCycle != nil {
			m.cycles[m.conflictCycle.ID] = m.conflictCycle
		}
		return m.createErr
	}

	cycle.ID = fmt.Sprintf("cycle-%d", m.nextID)
	m.nextID++
	for i := range items {
		items[i].ID = fmt.Sprintf("item-%d", m.nextID)
		m.nextID++
		items[i].CycleID = cycle.ID
	}
	m.cycles[cycle.ID] = cycle
	m.items[cycle.ID] = items
	return nil
}

func (m *mockChallengeRepository) SwapItem(oldItem *models.ChallengeItem, replacement *models.ChallengeItem) error {
	cycle, ok := m.cycles[oldItem.CycleID]
	if !ok || cycle.SwapCountUsed != 0 {
		return repository.ErrSwapConflict
	}
	cycle.SwapCountUsed = 1

	items := m.items[oldItem.CycleID]
	for i := range items {
		if items[i].ID == oldItem.ID {
			items[i].Status = models.ItemStatusSwappedOut
		}
	}
	replacement.ID = fmt.Sprintf("item-%d", m.nextID)
	m.nextID++
	m.items[oldItem.CycleID] = append(items, *replacement)
	return nil
}

type mockRestaurantRepository struct {
	restaurants []models.Restaurant
	offers      map[string]models.RestaurantOffer
}

func newMockRestaurantRepository() *mockRestaurantRepository {
	return &mockRestaurantRepository{offers: make(map[string]models.RestaurantOffer)}
}

func (m *mockRestaurantRepository) add(id, name string, tags ...string) {
	m.restaurants = append(m.restaurants, models.Restaurant{
		ID:          id,
		Name:        name,
		CuisineTags: tags,
		Status:      models.RestaurantStatusActive,
		MarketID:    "market-1",
	})
	m.offers[id] = models.RestaurantOffer{
		RestaurantID:           id,
		DiscountAmountCents:    1500,
		MinSpendCents:          3000,
		MaxRedemptionsPerMonth: 10,
		Active:                 true,
	}
}

func (m *mockRestaurantRepository) GetByID(id string) (*models.Restaurant, error) {
	for i := range m.restaurants {
		if m.restaurants[i].ID == id {
			r := m.restaurants[i]
			return &r, nil
		}
	}
	return nil, fmt.Errorf("failed to get restaurant %s: %w", id, repository.ErrNotFound)
}

func (m *mockRestaurantRepository) ListActiveByMarket(marketID string) ([]models.Restaurant, error) {
	var out []models.Restaurant
	for _, r := range m.restaurants {
		if r.MarketID == marketID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *mockRestaurantRepository) GetActiveOffers(ids []string) (map[string]models.RestaurantOffer, error) {
	out := make(map[string]models.RestaurantOffer)
	for _, id := range ids {
		if o, ok := m.offers[id]; ok {
			out[id] = o
		}
	}
	return out, nil
}

type mockProfileRepository struct {
	profiles map[string]*models.UserProfile
}

func (m *mockProfileRepository) GetByID(userID string) (*models.UserProfile, error) {
	if p, ok := m.profiles[userID]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("failed to get profile %s: %w", userID, repository.ErrNotFound)
}

type mockRedemptionRepository struct {
	verified []models.Redemption
	monthly  map[string]int
	tokens   map[string]string
}

func (m *mockRedemptionRepository) ListVerifiedByUser(string) ([]models.Redemption, error) {
	return m.verified, nil
}

func (m *mockRedemptionRepository) MonthlyCountsByRestaurant(time.Time, time.Time) (map[string]int, error) {
	if m.monthly == nil {
		return map[string]int{}, nil
	}
	return m.monthly, nil
}

func (m *mockRedemptionRepository) IssuedTokensByItem(itemIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range itemIDs {
		if tok, ok := m.tokens[id]; ok {
			out[id] = tok
		}
	}
	return out, nil
}

type mockLocker struct {
	held     bool
	setCalls int
	delCalls int
}

func (m *mockLocker) SetNX(_ context.Context, _ string, _ interface{}, _ time.Duration) (bool, error) {
	m.setCalls++
	return !m.held, nil
}

func (m *mockLocker) Del(_ context.Context, _ ...string) error {
	m.delCalls++
	return nil
}

// Test setup helper
func setupTestService() (*Service, *mockChallengeRepository, *mockRestaurantRepository, *mockProfileRepository, *mockLocker) {
	challengeRepo := newMockChallengeRepository()
	restaurantRepo := newMockRestaurantRepository()
	profileRepo := &mockProfileRepository{profiles: map[string]*models.UserProfile{
		"user-1": {
			ID:                 "user-1",
			MarketID:           "market-1",
			SubscriptionStatus: models.SubscriptionStatusActive,
		},
	}}
	redemptionRepo := &mockRedemptionRepository{}
	locker := &mockLocker{}
	log := logger.New("debug", "text", "stdout")

	service := NewServiceWithInterfaces(challengeRepo, restaurantRepo, profileRepo, redemptionRepo, locker, 2, log)

	return service, challengeRepo, restaurantRepo, profileRepo, locker
}

func TestGenerateCreatesCycle(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, locker := setupTestService()
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")
	restaurantRepo.add("r2", "Golden Wok", "chinese")
	restaurantRepo.add("r3", "Pasta Fresca", "italian")

	view, err := service.Generate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if len(view.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(view.Items))
	}
	if view.Items[0].RestaurantID == view.Items[1].RestaurantID {
		t.Error("expected two distinct restaurants")
	}
	for i, item := range view.Items {
		if item.SlotNumber != i+1 {
			t.Errorf("item %d slot = %d, want %d", i, item.SlotNumber, i+1)
		}
		if item.Status != models.ItemStatusAssigned {
			t.Errorf("item %d status = %s, want assigned", i, item.Status)
		}
		if item.DiscountAmountCents != 1500 || item.MinSpendCents != 3000 {
			t.Errorf("item %d offer terms = %d/%d, want 1500/3000",
				i, item.DiscountAmountCents, item.MinSpendCents)
		}
	}
	if view.SwapsRemaining != 1 {
		t.Errorf("SwapsRemaining = %d, want 1", view.SwapsRemaining)
	}
	if challengeRepo.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", challengeRepo.createCalls)
	}
	if locker.delCalls != 1 {
		t.Errorf("lock release calls = %d, want 1", locker.delCalls)
	}
}

func TestGenerateIsIdempotent(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")
	restaurantRepo.add("r2", "Golden Wok", "chinese")

	first, err := service.Generate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("first Generate() error = %v", err)
	}
	second, err := service.Generate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("second Generate() error = %v", err)
	}

	if first.CycleID != second.CycleID {
		t.Errorf("cycle IDs differ: %s vs %s", first.CycleID, second.CycleID)
	}
	if challengeRepo.createCalls != 1 {
		t.Errorf("createCalls = %d, want 1", challengeRepo.createCalls)
	}
}

func TestGenerateRequiresActiveSubscription(t *testing.T) {
	service, _, restaurantRepo, profileRepo, _ := setupTestService()
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")
	restaurantRepo.add("r2", "Golden Wok", "chinese")
	profileRepo.profiles["user-1"].SubscriptionStatus = models.SubscriptionStatusCanceled

	_, err := service.Generate(context.Background(), "user-1")
	if !errors.Is(err, ErrSubscriptionRequired) {
		t.Errorf("Generate() error = %v, want ErrSubscriptionRequired", err)
	}
}

func TestGenerateInsufficientInventory(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")

	_, err := service.Generate(context.Background(), "user-1")

	var invErr *InsufficientInventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("Generate() error = %v, want InsufficientInventoryError", err)
	}
	if invErr.Required != 2 || invErr.Eligible != 1 {
		t.Errorf("InsufficientInventoryError = %+v, want Required=2 Eligible=1", invErr)
	}
	if challengeRepo.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0", challengeRepo.createCalls)
	}
}

func TestGenerateEmptyMarket(t *testing.T) {
	service, challengeRepo, _, _, _ := setupTestService()

	_, err := service.Generate(context.Background(), "user-1")
	if !errors.Is(err, ErrNoRestaurants) {
		t.Fatalf("Generate() error = %v, want ErrNoRestaurants", err)
	}
	if challengeRepo.createCalls != 0 {
		t.Errorf("createCalls = %d, want 0", challengeRepo.createCalls)
	}
}

func TestGenerateRelaxedFallback(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")
	restaurantRepo.add("r2", "Golden Wok", "chinese")
	// r2 was assigned four months ago, so the strict 6-month repeat rule
	// leaves only one restaurant. The relaxed rules drop that block.
	challengeRepo.received6 = []string{"r2"}

	view, err := service.Generate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(view.Items) != 2 {
		t.Errorf("expected 2 items under relaxed rules, got %d", len(view.Items))
	}
}

func TestGenerateRelaxedStillExcludesLastMonth(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")
	restaurantRepo.add("r2", "Golden Wok", "chinese")
	challengeRepo.received6 = []string{"r2"}
	challengeRepo.lastMonth = []string{"r2"}

	_, err := service.Generate(context.Background(), "user-1")

	var invErr *InsufficientInventoryError
	if !errors.As(err, &invErr) {
		t.Fatalf("Generate() error = %v, want InsufficientInventoryError", err)
	}
}

func TestGenerateLockContention(t *testing.T) {
	service, _, restaurantRepo, _, locker := setupTestService()
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")
	restaurantRepo.add("r2", "Golden Wok", "chinese")
	locker.held = true

	_, err := service.Generate(context.Background(), "user-1")
	if !errors.Is(err, ErrGenerationInProgress) {
		t.Errorf("Generate() error = %v, want ErrGenerationInProgress", err)
	}
}

func TestGenerateDuplicateRaceReturnsExisting(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")
	restaurantRepo.add("r2", "Golden Wok", "chinese")

	month := monthStart(time.Now().UTC())
	winner := &models.ChallengeCycle{
		ID:         "cycle-winner",
		UserID:     "user-1",
		CycleMonth: month,
		Status:     models.CycleStatusActive,
	}
	challengeRepo.createErr = repository.ErrDuplicateCycle
	challengeRepo.conflictCycle = winner

	view, err := service.Generate(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if view.CycleID != "cycle-winner" {
		t.Errorf("CycleID = %s, want cycle-winner", view.CycleID)
	}
}

func TestGetCurrentNoCycle(t *testing.T) {
	service, _, _, _, _ := setupTestService()

	_, err := service.GetCurrent(context.Background(), "user-1")
	if !errors.Is(err, ErrNoCycle) {
		t.Errorf("GetCurrent() error = %v, want ErrNoCycle", err)
	}
}

func swapFixture(challengeRepo *mockChallengeRepository, restaurantRepo *mockRestaurantRepository) *models.ChallengeCycle {
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")
	restaurantRepo.add("r2", "Golden Wok", "chinese")
	restaurantRepo.add("r3", "Pasta Fresca", "italian")

	cycle := &models.ChallengeCycle{
		ID:         "cycle-1",
		UserID:     "user-1",
		CycleMonth: monthStart(time.Now().UTC()),
		Status:     models.CycleStatusActive,
	}
	challengeRepo.addCycle(cycle,
		models.ChallengeItem{ID: "item-1", CycleID: "cycle-1", RestaurantID: "r1", SlotNumber: 1, Status: models.ItemStatusAssigned},
		models.ChallengeItem{ID: "item-2", CycleID: "cycle-1", RestaurantID: "r2", SlotNumber: 2, Status: models.ItemStatusAssigned},
	)
	return cycle
}

func TestSwapReplacesItem(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	swapFixture(challengeRepo, restaurantRepo)

	view, err := service.Swap(context.Background(), "user-1", "item-1")
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}

	if view.SwapsRemaining != 0 {
		t.Errorf("SwapsRemaining = %d, want 0", view.SwapsRemaining)
	}
	if len(view.Items) != 2 {
		t.Fatalf("expected 2 active items, got %d", len(view.Items))
	}
	var replacement *ItemView
	for i := range view.Items {
		if view.Items[i].SlotNumber == 1 {
			replacement = &view.Items[i]
		}
	}
	if replacement == nil {
		t.Fatal("slot 1 is empty after swap")
	}
	// r1 was swapped out, r2 occupies slot 2; only r3 can fill slot 1.
	if replacement.RestaurantID != "r3" {
		t.Errorf("replacement restaurant = %s, want r3", replacement.RestaurantID)
	}
}

func TestSwapLimitReached(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	cycle := swapFixture(challengeRepo, restaurantRepo)
	cycle.SwapCountUsed = 1

	_, err := service.Swap(context.Background(), "user-1", "item-1")
	if !errors.Is(err, ErrSwapLimitReached) {
		t.Errorf("Swap() error = %v, want ErrSwapLimitReached", err)
	}
}

func TestSwapRejectsOtherUsersItem(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	swapFixture(challengeRepo, restaurantRepo)

	_, err := service.Swap(context.Background(), "user-2", "item-1")
	if !errors.Is(err, ErrNotOwner) {
		t.Errorf("Swap() error = %v, want ErrNotOwner", err)
	}
}

func TestSwapAllowsRedeemedItem(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	swapFixture(challengeRepo, restaurantRepo)
	challengeRepo.items["cycle-1"][0].Status = models.ItemStatusRedeemed

	view, err := service.Swap(context.Background(), "user-1", "item-1")
	if err != nil {
		t.Fatalf("Swap() error = %v", err)
	}
	for i := range view.Items {
		if view.Items[i].SlotNumber == 1 && view.Items[i].RestaurantID != "r3" {
			t.Errorf("slot 1 restaurant = %s, want r3", view.Items[i].RestaurantID)
		}
	}
}

func TestSwapRejectsSwappedOutItem(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	swapFixture(challengeRepo, restaurantRepo)
	challengeRepo.items["cycle-1"][0].Status = models.ItemStatusSwappedOut

	_, err := service.Swap(context.Background(), "user-1", "item-1")
	if !errors.Is(err, ErrItemNotSwappable) {
		t.Errorf("Swap() error = %v, want ErrItemNotSwappable", err)
	}
}

func TestSwapSwappedOutItemCheckedBeforeOwnership(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	swapFixture(challengeRepo, restaurantRepo)
	challengeRepo.items["cycle-1"][0].Status = models.ItemStatusSwappedOut

	_, err := service.Swap(context.Background(), "user-2", "item-1")
	if !errors.Is(err, ErrItemNotSwappable) {
		t.Errorf("Swap() error = %v, want ErrItemNotSwappable", err)
	}
}

func TestSwapNoReplacementAvailable(t *testing.T) {
	service, challengeRepo, restaurantRepo, _, _ := setupTestService()
	restaurantRepo.add("r1", "Taqueria Norte", "mexican")
	restaurantRepo.add("r2", "Golden Wok", "chinese")

	cycle := &models.ChallengeCycle{
		ID:         "cycle-1",
		UserID:     "user-1",
		CycleMonth: monthStart(time.Now().UTC()),
		Status:     models.CycleStatusActive,
	}
	challengeRepo.addCycle(cycle,
		models.ChallengeItem{ID: "item-1", CycleID: "cycle-1", RestaurantID: "r1", SlotNumber: 1, Status: models.ItemStatusAssigned},
		models.ChallengeItem{ID: "item-2", CycleID: "cycle-1", RestaurantID: "r2", SlotNumber: 2, Status: models.ItemStatusAssigned},
	)

	_, err := service.Swap(context.Background(), "user-1", "item-1")
	if !errors.Is(err, ErrNoReplacement) {
		t.Errorf("Swap() error = %v, want ErrNoReplacement", err)
	}
}

func TestSwapEmptyMarketNoReplacement(t *testing.T) {
	service, challengeRepo, _, _, _ := setupTestService()
	cycle := &models.ChallengeCycle{
		ID:         "cycle-1",
		UserID:     "user-1",
		CycleMonth: monthStart(time.Now().UTC()),
		Status:     models.CycleStatusActive,
	}
	challengeRepo.addCycle(cycle,
		models.ChallengeItem{ID: "item-1", CycleID: "cycle-1", RestaurantID: "r1", SlotNumber: 1, Status: models.ItemStatusAssigned},
	)

	_, err := service.Swap(context.Background(), "user-1", "item-1")
	if !errors.Is(err, ErrNoReplacement) {
		t.Errorf("Swap() error = %v, want ErrNoReplacement", err)
	}
}

func TestSwapItemNotFound(t *testing.T) {
	service, _, _, _, _ := setupTestService()

	_, err := service.Swap(context.Background(), "user-1", "nope")
	if !errors.Is(err, ErrItemNotFound) {
		t.Errorf("Swap() error = %v, want ErrItemNotFound", err)
	}
}
