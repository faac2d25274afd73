package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/wanderbite/wanderbite/internal/models"
)

// ErrSwapConflict is returned when a concurrent swap consumed the cycle's
// swap allowance between validation and write.
var ErrSwapConflict = errors.New("swap already used for this cycle")

// ErrDuplicateCycle is returned when a cycle already exists for the
// (user, month) pair. Concurrent generation resolves to this.
var ErrDuplicateCycle = errors.New("cycle already exists for this month")

// ChallengeRepository handles challenge cycle and item database operations.
type ChallengeRepository struct {
	db *DB
}

// NewChallengeRepository creates a new challenge repository.
func NewChallengeRepository(db *DB) *ChallengeRepository {
	return &ChallengeRepository{db: db}
}

// GetActiveCycle retrieves the user's active cycle for a calendar month.
// Returns (nil, nil) when no such cycle exists.
func (r *ChallengeRepository) GetActiveCycle(userID string, cycleMonth time.Time) (*models.ChallengeCycle, error) {
	var cycle models.ChallengeCycle
	err := r.db.
		Where("user_id = ? AND cycle_month = ? AND status = ?", userID, cycleMonth, models.CycleStatusActive).
		First(&cycle).Error
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active cycle for user %s: %w", userID, err)
	}
	return &cycle, nil
}

// GetCycleByID retrieves a cycle by ID.
func (r *ChallengeRepository) GetCycleByID(id string) (*models.ChallengeCycle, error) {
	var cycle models.ChallengeCycle
	if err := r.db.First(&cycle, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get cycle %s: %w", id, err)
	}
	return &cycle, nil
}

// GetItemByID retrieves a challenge item by ID.
func (r *ChallengeRepository) GetItemByID(id string) (*models.ChallengeItem, error) {
	var item models.ChallengeItem
	if err := r.db.First(&item, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get challenge item %s: %w", id, err)
	}
	return &item, nil
}

// ListItemsByCycle retrieves a cycle's items in slot order.
func (r *ChallengeRepository) ListItemsByCycle(cycleID string) ([]models.ChallengeItem, error) {
	var items []models.ChallengeItem
	err := r.db.
		Where("cycle_id = ?", cycleID).
		Order("slot_number ASC, created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list items for cycle %s: %w", cycleID, err)
	}
	return items, nil
}

// SwappedOutRestaurantIDs returns the restaurants swapped out of any of the
// user's cycles since the given time.
func (r *ChallengeRepository) SwappedOutRestaurantIDs(userID string, since time.Time) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.ChallengeItem{}).
		Joins("JOIN challenge_cycles ON challenge_cycles.id = challenge_items.cycle_id").
		Where("challenge_cycles.user_id = ?", userID).
		Where("challenge_items.status = ?", models.ItemStatusSwappedOut).
		Where("challenge_items.created_at >= ?", since).
		Distinct().
		Pluck("challenge_items.restaurant_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get swapped-out restaurants for user %s: %w", userID, err)
	}
	return ids, nil
}

// CycleRestaurantIDsSince returns the restaurants that appeared in any of the
// user's cycles whose cycle_month is on or after sinceMonth.
func (r *ChallengeRepository) CycleRestaurantIDsSince(userID string, sinceMonth time.Time) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.ChallengeItem{}).
		Joins("JOIN challenge_cycles ON challenge_cycles.id = challenge_items.cycle_id").
		Where("challenge_cycles.user_id = ?", userID).
		Where("challenge_cycles.cycle_month >= ?", sinceMonth).
		Distinct().
		Pluck("challenge_items.restaurant_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get cycle restaurants for user %s: %w", userID, err)
	}
	return ids, nil
}

// RestaurantCycleCounts returns, per restaurant, the number of distinct
// cycles of this user that included it, for cycles on or after sinceMonth.
func (r *ChallengeRepository) RestaurantCycleCounts(userID string, sinceMonth time.Time) (map[string]int, error) {
	var rows []struct {
		RestaurantID string
		CycleCount   int
	}
	err := r.db.Model(&models.ChallengeItem{}).
		Select("challenge_items.restaurant_id AS restaurant_id, COUNT(DISTINCT challenge_items.cycle_id) AS cycle_count").
		Joins("JOIN challenge_cycles ON challenge_cycles.id = challenge_items.cycle_id").
		Where("challenge_cycles.user_id = ?", userID).
		Where("challenge_cycles.cycle_month >= ?", sinceMonth).
		Group("challenge_items.restaurant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count restaurant cycles for user %s: %w", userID, err)
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.RestaurantID] = row.CycleCount
	}
	return counts, nil
}

// RestaurantIDsForMonth returns the restaurants assigned in the user's cycle
// for one specific calendar month, if any.
func (r *ChallengeRepository) RestaurantIDsForMonth(userID string, cycleMonth time.Time) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.ChallengeItem{}).
		Joins("JOIN challenge_cycles ON challenge_cycles.id = challenge_items.cycle_id").
		Where("challenge_cycles.user_id = ? AND challenge_cycles.cycle_month = ?", userID, cycleMonth).
		Distinct().
		Pluck("challenge_items.restaurant_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get month restaurants for user %s: %w", userID, err)
	}
	return ids, nil
}

// CreateCycleWithItems inserts a cycle and its items in one transaction.
// The unique index on (user_id, cycle_month) makes concurrent generation
// collapse to a single cycle.
func (r *ChallengeRepository) CreateCycleWithItems(cycle *models.ChallengeCycle, items []models.ChallengeItem) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(cycle).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].CycleID = cycle.ID
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateCycle
		}
		return fmt.Errorf("failed to create cycle with items: %w", err)
	}
	return nil
}

// SwapItem performs the swap transition atomically: the old item is marked
// swapped_out, the replacement is inserted in the same slot with a
// back-reference, and the cycle's swap counter is consumed. The counter
// update is guarded so two concurrent swaps cannot both succeed.
func (r *ChallengeRepository) SwapItem(oldItem *models.ChallengeItem, replacement *models.ChallengeItem) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.ChallengeCycle{}).
			Where("id = ? AND swap_count_used = 0", oldItem.CycleID).
			Update("swap_count_used", 1)
		if res.Error != nil {
			return fmt.Errorf("failed to consume swap allowance: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSwapConflict
		}

		res = tx.Model(&models.ChallengeItem{}).
			Where("id = ? AND status != ?", oldItem.ID, models.ItemStatusSwappedOut).
			Update("status", models.ItemStatusSwappedOut)
		if res.Error != nil {
			return fmt.Errorf("failed to mark item swapped out: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrSwapConflict
		}

		if err := tx.Create(replacement).Error; err != nil {
			return fmt.Errorf("failed to create replacement item: %w", err)
		}
		return nil
	})
}
