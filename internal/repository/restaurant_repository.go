package repository

import (
	"fmt"

	"github.com/wanderbite/wanderbite/internal/models"
)

// RestaurantRepository handles restaurant and offer database operations.
type RestaurantRepository struct {
	db *DB
}

// NewRestaurantRepository creates a new restaurant repository.
func NewRestaurantRepository(db *DB) *RestaurantRepository {
	return &RestaurantRepository{db: db}
}

// Create creates a new restaurant.
func (r *RestaurantRepository) Create(restaurant *models.Restaurant) error {
	if err := r.db.Create(restaurant).Error; err != nil {
		return fmt.Errorf("failed to create restaurant: %w", err)
	}
	return nil
}

// GetByID retrieves a restaurant by ID.
func (r *RestaurantRepository) GetByID(id string) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	if err := r.db.First(&restaurant, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get restaurant %s: %w", id, err)
	}
	return &restaurant, nil
}

// ListActiveByMarket retrieves all active restaurants in a market.
func (r *RestaurantRepository) ListActiveByMarket(marketID string) ([]models.Restaurant, error) {
	var restaurants []models.Restaurant
	err := r.db.
		Where("market_id = ? AND status = ?", marketID, models.RestaurantStatusActive).
		Find(&restaurants).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list restaurants for market %s: %w", marketID, err)
	}
	return restaurants, nil
}

// ListAll retrieves every restaurant, active or not.
func (r *RestaurantRepository) ListAll() ([]models.Restaurant, error) {
	var restaurants []models.Restaurant
	if err := r.db.Order("name ASC").Find(&restaurants).Error; err != nil {
		return nil, fmt.Errorf("failed to list restaurants: %w", err)
	}
	return restaurants, nil
}

// GetActiveOffers retrieves the active offer for each of the given restaurants,
// keyed by restaurant ID.
func (r *RestaurantRepository) GetActiveOffers(restaurantIDs []string) (map[string]models.RestaurantOffer, error) {
	offers := make(map[string]models.RestaurantOffer, len(restaurantIDs))
	if len(restaurantIDs) == 0 {
		return offers, nil
	}

	var rows []models.RestaurantOffer
	err := r.db.
		Where("restaurant_id IN ? AND active = ?", restaurantIDs, true).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get active offers: %w", err)
	}
	for _, o := range rows {
		offers[o.RestaurantID] = o
	}
	return offers, nil
}

// CreateOffer creates an offer for a restaurant.
func (r *RestaurantRepository) CreateOffer(offer *models.RestaurantOffer) error {
	if err := r.db.Create(offer).Error; err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	return nil
}

// VerifyPIN checks a restaurant's partner PIN and returns the restaurant on
// success. A wrong PIN and an unknown restaurant both return (nil, nil) so
// callers present a single generic failure.
func (r *RestaurantRepository) VerifyPIN(restaurantID, pin string) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	err := r.db.First(&restaurant, "id = ?", restaurantID).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load restaurant %s: %w", restaurantID, err)
	}
	if restaurant.PIN == "" || restaurant.PIN != pin {
		return nil, nil
	}
	return &restaurant, nil
}
