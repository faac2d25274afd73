package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wanderbite/wanderbite/internal/models"
)

// ErrAlreadyVerified is returned by MarkVerified when the redemption left the
// issued state before the conditional update ran.
var ErrAlreadyVerified = errors.New("redemption is no longer issued")

// RedemptionRepository handles redemption database operations.
type RedemptionRepository struct {
	db *DB
}

// NewRedemptionRepository creates a new redemption repository.
func NewRedemptionRepository(db *DB) *RedemptionRepository {
	return &RedemptionRepository{db: db}
}

// ListByUser retrieves all redemptions for a user.
func (r *RedemptionRepository) ListByUser(userID string) ([]models.Redemption, error) {
	var redemptions []models.Redemption
	if err := r.db.Where("user_id = ?", userID).Find(&redemptions).Error; err != nil {
		return nil, fmt.Errorf("failed to list redemptions for user %s: %w", userID, err)
	}
	return redemptions, nil
}

// ListVerifiedByUser retrieves the user's verified redemptions, newest first.
func (r *RedemptionRepository) ListVerifiedByUser(userID string) ([]models.Redemption, error) {
	var redemptions []models.Redemption
	err := r.db.
		Where("user_id = ? AND status = ?", userID, models.RedemptionStatusVerified).
		Order("verified_at DESC").
		Find(&redemptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list verified redemptions for user %s: %w", userID, err)
	}
	return redemptions, nil
}

// MonthlyCountsByRestaurant returns the number of issued+verified redemptions
// per restaurant created within [monthStart, monthEnd). This feeds the
// monthly capacity rule.
func (r *RedemptionRepository) MonthlyCountsByRestaurant(monthStart, monthEnd time.Time) (map[string]int, error) {
	var rows []struct {
		RestaurantID string
		Total        int
	}
	err := r.db.Model(&models.Redemption{}).
		Select("restaurant_id, COUNT(*) AS total").
		Where("status IN ?", []string{models.RedemptionStatusIssued, models.RedemptionStatusVerified}).
		Where("created_at >= ? AND created_at < ?", monthStart, monthEnd).
		Group("restaurant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count monthly redemptions: %w", err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.RestaurantID] = row.Total
	}
	return counts, nil
}

// Create inserts a redemption record.
func (r *RedemptionRepository) Create(redemption *models.Redemption) error {
	if err := r.db.Create(redemption).Error; err != nil {
		return fmt.Errorf("failed to create redemption: %w", err)
	}
	return nil
}

// CreateWithItemUpdate inserts the redemption and flips the item from
// assigned to redeemed in one transaction. The item update is conditional so
// a concurrent redeem cannot issue two tokens for one item.
func (r *RedemptionRepository) CreateWithItemUpdate(redemption *models.Redemption) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ChallengeItem{}).
			Where("id = ? AND status = ?", redemption.ChallengeItemID, models.ItemStatusAssigned).
			Update("status", models.ItemStatusRedeemed)
		if res.Error != nil {
			return fmt.Errorf("failed to mark item redeemed: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyVerified
		}
		if err := tx.Create(redemption).Error; err != nil {
			return fmt.Errorf("failed to create redemption: %w", err)
		}
		return nil
	})
}

// GetByToken looks up a redemption by token, case-insensitively.
// Returns (nil, nil) when no redemption carries the token.
func (r *RedemptionRepository) GetByToken(token string) (*models.Redemption, error) {
	var redemption models.Redemption
	err := r.db.
		Where("LOWER(token) = LOWER(?)", token).
		First(&redemption).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}
	return &redemption, nil
}

// IssuedTokensByItem returns the issued token for each of the given items,
// newest first per item.
func (r *RedemptionRepository) IssuedTokensByItem(itemIDs []string) (map[string]string, error) {
	tokens := make(map[string]string, len(itemIDs))
	if len(itemIDs) == 0 {
		return tokens, nil
	}

	var redemptions []models.Redemption
	err := r.db.
		Where("challenge_item_id IN ? AND status = ?", itemIDs, models.RedemptionStatusIssued).
		Order("created_at DESC").
		Find(&redemptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load issued tokens: %w", err)
	}
	for _, red := range redemptions {
		if _, ok := tokens[red.ChallengeItemID]; !ok {
			tokens[red.ChallengeItemID] = red.Token
		}
	}
	return tokens, nil
}

// MarkVerified transitions a redemption from issued to verified with an
// atomic conditional update. ErrAlreadyVerified is returned when the row was
// no longer issued, so two partner submissions of the same code cannot both
// succeed.
func (r *RedemptionRepository) MarkVerified(id string, verifiedAt time.Time) error {
	res := r.db.Model(&models.Redemption{}).
		Where("id = ? AND status = ?", id, models.RedemptionStatusIssued).
		Updates(map[string]interface{}{
			"status":      models.RedemptionStatusVerified,
			"verified_at": verifiedAt,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to verify redemption %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrAlreadyVerified
	}
	return nil
}

// CountVerifiedByUser returns the user's all-time verified redemption count.
func (r *RedemptionRepository) CountVerifiedByUser(userID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.Redemption{}).
		Where("user_id = ? AND status = ?", userID, models.RedemptionStatusVerified).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count verified redemptions for user %s: %w", userID, err)
	}
	return count, nil
}

// CountVerifiedByRestaurantSince returns a restaurant's verified redemption
// count with verified_at on or after the given time. Partner dashboards use
// this for the current month.
func (r *RedemptionRepository) CountVerifiedByRestaurantSince(restaurantID string, since time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.Redemption{}).
		Where("restaurant_id = ? AND status = ?", restaurantID, models.RedemptionStatusVerified).
		Where("verified_at >= ?", since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count verified redemptions for restaurant %s: %w", restaurantID, err)
	}
	return count, nil
}
