package repository

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/wanderbite/wanderbite/internal/models"
)

// setupTestDB creates an in-memory SQLite database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	// Enable foreign key constraints (SQLite default is off)
	db.Exec("PRAGMA foreign_keys = ON")

	err = db.AutoMigrate(
		&models.UserProfile{},
		&models.Restaurant{},
		&models.RestaurantOffer{},
		&models.ChallengeCycle{},
		&models.ChallengeItem{},
		&models.Redemption{},
		&models.Badge{},
		&models.UserBadge{},
	)
	if err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

// createTestRestaurant creates a restaurant with an active offer.
func createTestRestaurant(t *testing.T, db *DB, name, marketID string, tags ...string) *models.Restaurant {
	t.Helper()

	restaurant := &models.Restaurant{
		Name:        name,
		CuisineTags: tags,
		Status:      models.RestaurantStatusActive,
		MarketID:    marketID,
		PIN:         "4321",
	}
	if err := db.Create(restaurant).Error; err != nil {
		t.Fatalf("Failed to create test restaurant: %v", err)
	}

	offer := &models.RestaurantOffer{
		RestaurantID:           restaurant.ID,
		DiscountAmountCents:    1500,
		MinSpendCents:          3000,
		MaxRedemptionsPerMonth: 10,
		Active:                 true,
	}
	if err := db.Create(offer).Error; err != nil {
		t.Fatalf("Failed to create test offer: %v", err)
	}

	return restaurant
}

// createTestProfile creates a subscriber profile.
func createTestProfile(t *testing.T, db *DB, id, marketID string) *models.UserProfile {
	t.Helper()

	profile := &models.UserProfile{
		ID:                 id,
		Email:              id + "@example.com",
		MarketID:           marketID,
		SubscriptionStatus: models.SubscriptionStatusActive,
	}
	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("Failed to create test profile: %v", err)
	}
	return profile
}

// monthOf returns the first day of a month, UTC.
func monthOf(year int, month time.Month) time.Time {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
}
