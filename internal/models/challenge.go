package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChallengeCycle is one user's monthly container of challenge items.
// At most one active cycle exists per (user, calendar month); the unique
// index is the idempotency boundary for generation.
type ChallengeCycle struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"size:36;not null;uniqueIndex:idx_cycle_user_month" json:"user_id"`
	CycleMonth    time.Time `gorm:"type:date;not null;uniqueIndex:idx_cycle_user_month" json:"cycle_month"`
	Status        string    `gorm:"size:50;not null;index" json:"status"` // 'active'
	SwapCountUsed int       `gorm:"not null;default:0" json:"swap_count_used"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	Items []ChallengeItem `gorm:"foreignKey:CycleID" json:"items,omitempty"`
}

// TableName specifies the table name for ChallengeCycle model.
func (ChallengeCycle) TableName() string {
	return "challenge_cycles"
}

// BeforeCreate assigns a UUID if none was provided.
func (c *ChallengeCycle) BeforeCreate(_ *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

// ChallengeItem is one restaurant assignment slot within a cycle.
type ChallengeItem struct {
	ID                string     `gorm:"primaryKey;size:36" json:"id"`
	CycleID           string     `gorm:"size:36;not null;index" json:"cycle_id"`
	RestaurantID      string     `gorm:"size:36;not null;index" json:"restaurant_id"`
	SlotNumber        int        `gorm:"not null" json:"slot_number"`
	Status            string     `gorm:"size:50;not null;index" json:"status"` // 'assigned', 'redeemed', 'swapped_out'
	SwappedFromItemID *string    `gorm:"size:36" json:"swapped_from_item_id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Restaurant        Restaurant `gorm:"foreignKey:RestaurantID" json:"restaurant,omitempty"`
}

// TableName specifies the table name for ChallengeItem model.
func (ChallengeItem) TableName() string {
	return "challenge_items"
}

// BeforeCreate assigns a UUID if none was provided.
func (i *ChallengeItem) BeforeCreate(_ *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.NewString()
	}
	return nil
}

// IsActive reports whether the item still occupies its slot
// (assigned or redeemed, not swapped out).
func (i *ChallengeItem) IsActive() bool {
	return i.Status == ItemStatusAssigned || i.Status == ItemStatusRedeemed
}

// Cycle status constants.
const (
	CycleStatusActive = "active"
)

// Challenge item status constants.
const (
	ItemStatusAssigned   = "assigned"
	ItemStatusRedeemed   = "redeemed"
	ItemStatusSwappedOut = "swapped_out"
)
