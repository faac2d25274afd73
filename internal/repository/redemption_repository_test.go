package repository

import (
	"errors"
	"testing"
	"time"

	"github.com/wanderbite/wanderbite/internal/models"
)

// createTestRedemption creates an issued redemption for an item.
func createTestRedemption(t *testing.T, db *DB, userID, restaurantID, itemID, token string) *models.Redemption {
	t.Helper()

	redemption := &models.Redemption{
		UserID:          userID,
		RestaurantID:    restaurantID,
		ChallengeItemID: itemID,
		Token:           token,
		Status:          models.RedemptionStatusIssued,
	}
	if err := db.Create(redemption).Error; err != nil {
		t.Fatalf("Failed to create test redemption: %v", err)
	}
	return redemption
}

func TestRedemptionRepository_CreateWithItemUpdate(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRedemptionRepository(db)
	challengeRepo := NewChallengeRepository(db)

	createTestProfile(t, db, "user-1", "market-1")
	r1 := createTestRestaurant(t, db, "Thai Basil", "market-1", "thai")
	cycle := createTestCycle(t, db, "user-1", monthOf(2025, time.March), r1.ID)
	items, _ := challengeRepo.ListItemsByCycle(cycle.ID)

	redemption := &models.Redemption{
		UserID:          "user-1",
		RestaurantID:    r1.ID,
		ChallengeItemID: items[0].ID,
		Token:           "WB-ABCDE",
		Status:          models.RedemptionStatusIssued,
	}
	if err := repo.CreateWithItemUpdate(redemption); err != nil {
		t.Fatalf("CreateWithItemUpdate failed: %v", err)
	}

	item, err := challengeRepo.GetItemByID(items[0].ID)
	if err != nil {
		t.Fatalf("GetItemByID failed: %v", err)
	}
	if item.Status != models.ItemStatusRedeemed {
		t.Errorf("Expected item redeemed, got %s", item.Status)
	}
}

func TestRedemptionRepository_CreateWithItemUpdateNotAssigned(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRedemptionRepository(db)
	challengeRepo := NewChallengeRepository(db)

	createTestProfile(t, db, "user-1", "market-1")
	r1 := createTestRestaurant(t, db, "Thai Basil", "market-1", "thai")
	cycle := createTestCycle(t, db, "user-1", monthOf(2025, time.March), r1.ID)
	items, _ := challengeRepo.ListItemsByCycle(cycle.ID)

	first := &models.Redemption{
		UserID:          "user-1",
		RestaurantID:    r1.ID,
		ChallengeItemID: items[0].ID,
		Token:           "WB-ABCDE",
		Status:          models.RedemptionStatusIssued,
	}
	if err := repo.CreateWithItemUpdate(first); err != nil {
		t.Fatalf("First CreateWithItemUpdate failed: %v", err)
	}

	second := &models.Redemption{
		UserID:          "user-1",
		RestaurantID:    r1.ID,
		ChallengeItemID: items[0].ID,
		Token:           "WB-FGHJK",
		Status:          models.RedemptionStatusIssued,
	}
	err := repo.CreateWithItemUpdate(second)
	if !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("Expected ErrAlreadyVerified for non-assigned item, got %v", err)
	}

	// Only the first token exists
	var count int64
	db.Model(&models.Redemption{}).Count(&count)
	if count != 1 {
		t.Errorf("Expected 1 redemption after rollback, got %d", count)
	}
}

func TestRedemptionRepository_GetByToken(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRedemptionRepository(db)

	createTestProfile(t, db, "user-1", "market-1")
	r1 := createTestRestaurant(t, db, "Thai Basil", "market-1", "thai")
	created := createTestRedemption(t, db, "user-1", r1.ID, "item-1", "WB-ABCDE")

	// Lookup is case-insensitive
	redemption, err := repo.GetByToken("wb-abcde")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if redemption == nil {
		t.Fatal("Expected a redemption, got nil")
	}
	if redemption.ID != created.ID {
		t.Errorf("Expected redemption %s, got %s", created.ID, redemption.ID)
	}

	redemption, err = repo.GetByToken("WB-ZZZZZ")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if redemption != nil {
		t.Errorf("Expected nil for unknown token, got %+v", redemption)
	}
}

func TestRedemptionRepository_MarkVerified(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRedemptionRepository(db)

	createTestProfile(t, db, "user-1", "market-1")
	r1 := createTestRestaurant(t, db, "Thai Basil", "market-1", "thai")
	redemption := createTestRedemption(t, db, "user-1", r1.ID, "item-1", "WB-ABCDE")

	verifiedAt := time.Now().UTC().Truncate(time.Second)
	if err := repo.MarkVerified(redemption.ID, verifiedAt); err != nil {
		t.Fatalf("MarkVerified failed: %v", err)
	}

	stored, err := repo.GetByToken("WB-ABCDE")
	if err != nil {
		t.Fatalf("GetByToken failed: %v", err)
	}
	if stored.Status != models.RedemptionStatusVerified {
		t.Errorf("Expected status verified, got %s", stored.Status)
	}
	if stored.VerifiedAt == nil {
		t.Error("Expected verified_at to be set")
	}

	// A second verification of the same row must not succeed
	err = repo.MarkVerified(redemption.ID, time.Now())
	if !errors.Is(err, ErrAlreadyVerified) {
		t.Errorf("Expected ErrAlreadyVerified on repeat, got %v", err)
	}
}

func TestRedemptionRepository_MonthlyCountsByRestaurant(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRedemptionRepository(db)

	createTestProfile(t, db, "user-1", "market-1")
	r1 := createTestRestaurant(t, db, "Thai Basil", "market-1", "thai")
	r2 := createTestRestaurant(t, db, "La Cocina", "market-1", "mexican")
	createTestRedemption(t, db, "user-1", r1.ID, "item-1", "WB-AAAAA")
	createTestRedemption(t, db, "user-1", r1.ID, "item-2", "WB-BBBBB")
	createTestRedemption(t, db, "user-1", r2.ID, "item-3", "WB-CCCCC")

	// An expired redemption does not consume capacity
	expired := createTestRedemption(t, db, "user-1", r2.ID, "item-4", "WB-DDDDD")
	db.Model(expired).Update("status", models.RedemptionStatusExpired)

	monthStart := time.Now().UTC().Add(-time.Hour)
	monthEnd := monthStart.Add(2 * time.Hour)
	counts, err := repo.MonthlyCountsByRestaurant(monthStart, monthEnd)
	if err != nil {
		t.Fatalf("MonthlyCountsByRestaurant failed: %v", err)
	}
	if counts[r1.ID] != 2 {
		t.Errorf("Expected 2 redemptions for %s, got %d", r1.ID, counts[r1.ID])
	}
	if counts[r2.ID] != 1 {
		t.Errorf("Expected 1 redemption for %s, got %d", r2.ID, counts[r2.ID])
	}
}

func TestRedemptionRepository_IssuedTokensByItem(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRedemptionRepository(db)

	createTestProfile(t, db, "user-1", "market-1")
	r1 := createTestRestaurant(t, db, "Thai Basil", "market-1", "thai")
	createTestRedemption(t, db, "user-1", r1.ID, "item-1", "WB-AAAAA")

	verified := createTestRedemption(t, db, "user-1", r1.ID, "item-2", "WB-BBBBB")
	now := time.Now()
	db.Model(verified).Updates(map[string]interface{}{
		"status":      models.RedemptionStatusVerified,
		"verified_at": now,
	})

	tokens, err := repo.IssuedTokensByItem([]string{"item-1", "item-2"})
	if err != nil {
		t.Fatalf("IssuedTokensByItem failed: %v", err)
	}
	if tokens["item-1"] != "WB-AAAAA" {
		t.Errorf("Expected WB-AAAAA for item-1, got %q", tokens["item-1"])
	}
	if _, ok := tokens["item-2"]; ok {
		t.Error("Expected no token for a verified item")
	}
}

func TestRedemptionRepository_CountVerifiedByUser(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRedemptionRepository(db)

	createTestProfile(t, db, "user-1", "market-1")
	r1 := createTestRestaurant(t, db, "Thai Basil", "market-1", "thai")

	for i, token := range []string{"WB-AAAAA", "WB-BBBBB", "WB-CCCCC"} {
		redemption := createTestRedemption(t, db, "user-1", r1.ID, "item-"+token, token)
		if i < 2 {
			repo.MarkVerified(redemption.ID, time.Now())
		}
	}

	count, err := repo.CountVerifiedByUser("user-1")
	if err != nil {
		t.Fatalf("CountVerifiedByUser failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 verified redemptions, got %d", count)
	}
}

func TestRedemptionRepository_CountVerifiedByRestaurantSince(t *testing.T) {
	db := setupTestDB(t)
	repo := NewRedemptionRepository(db)

	createTestProfile(t, db, "user-1", "market-1")
	r1 := createTestRestaurant(t, db, "Thai Basil", "market-1", "thai")

	old := createTestRedemption(t, db, "user-1", r1.ID, "item-1", "WB-AAAAA")
	repo.MarkVerified(old.ID, time.Now().AddDate(0, -2, 0))

	recent := createTestRedemption(t, db, "user-1", r1.ID, "item-2", "WB-BBBBB")
	repo.MarkVerified(recent.ID, time.Now())

	count, err := repo.CountVerifiedByRestaurantSince(r1.ID, time.Now().AddDate(0, -1, 0))
	if err != nil {
		t.Fatalf("CountVerifiedByRestaurantSince failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 verification in the window, got %d", count)
	}
}
