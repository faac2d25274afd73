package repository

import (
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/wanderbite/wanderbite/internal/models"
)

// BadgeRepository handles badge-related database operations.
type BadgeRepository struct {
	db *DB
}

// NewBadgeRepository creates a new badge repository.
func NewBadgeRepository(db *DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// Create creates a new badge in the catalog.
func (r *BadgeRepository) Create(badge *models.Badge) error {
	if err := r.db.Create(badge).Error; err != nil {
		return fmt.Errorf("failed to create badge: %w", err)
	}
	return nil
}

// GetByID retrieves a badge by its slug ID.
func (r *BadgeRepository) GetByID(id string) (*models.Badge, error) {
	var badge models.Badge
	if err := r.db.First(&badge, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("failed to get badge %s: %w", id, err)
	}
	return &badge, nil
}

// GetAll retrieves the full badge catalog in threshold order.
func (r *BadgeRepository) GetAll() ([]models.Badge, error) {
	var badges []models.Badge
	err := r.db.Order("threshold ASC, id ASC").Find(&badges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list badges: %w", err)
	}
	return badges, nil
}

// AwardBadge awards a badge to a user. The insert is conflict-ignoring on
// (user_id, badge_id), so re-awarding is a no-op, never an error. Returns
// true if the badge was newly awarded.
func (r *BadgeRepository) AwardBadge(userID, badgeID string) (bool, error) {
	userBadge := &models.UserBadge{
		UserID:    userID,
		BadgeID:   badgeID,
		AwardedAt: time.Now().UTC(),
	}
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "badge_id"}},
		DoNothing: true,
	}).Create(userBadge)
	if res.Error != nil {
		return false, fmt.Errorf("failed to award badge %s to user %s: %w", badgeID, userID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetUserBadges retrieves all badges earned by a user with details preloaded.
func (r *BadgeRepository) GetUserBadges(userID string) ([]models.UserBadge, error) {
	var userBadges []models.UserBadge
	err := r.db.
		Where("user_id = ?", userID).
		Preload("Badge").
		Order("awarded_at DESC").
		Find(&userBadges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get badges for user %s: %w", userID, err)
	}
	return userBadges, nil
}

// HasUserEarnedBadge checks if a user has earned a specific badge.
func (r *BadgeRepository) HasUserEarnedBadge(userID, badgeID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.UserBadge{}).
		Where("user_id = ? AND badge_id = ?", userID, badgeID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check badge %s for user %s: %w", badgeID, userID, err)
	}
	return count > 0, nil
}
