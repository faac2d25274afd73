package models

import (
	"time"
)

// Badge represents an achievement that can be earned by subscribers.
// The ID is a stable slug referenced by the threshold table.
type Badge struct {
	ID          string    `gorm:"primaryKey;size:50" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Icon        string    `gorm:"size:50" json:"icon"`
	Threshold   int       `gorm:"not null" json:"threshold"` // all-time verified redemptions required
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for Badge model.
func (Badge) TableName() string {
	return "badges"
}

// UserBadge represents a badge earned by a user. Write-once per
// (user, badge) pair; re-awarding is a no-op.
type UserBadge struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"size:36;not null;uniqueIndex:idx_user_badge" json:"user_id"`
	BadgeID   string    `gorm:"size:50;not null;uniqueIndex:idx_user_badge" json:"badge_id"`
	Badge     Badge     `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	AwardedAt time.Time `gorm:"not null" json:"awarded_at"`
}

// TableName specifies the table name for UserBadge model.
func (UserBadge) TableName() string {
	return "user_badges"
}
