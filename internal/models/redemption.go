package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Redemption is the token-based proof-of-use record created when a user
// redeems a challenge item. It outlives its item for audit history.
type Redemption struct {
	ID              string     `gorm:"primaryKey;size:36" json:"id"`
	UserID          string     `gorm:"size:36;not null;index" json:"user_id"`
	RestaurantID    string     `gorm:"size:36;not null;index" json:"restaurant_id"`
	ChallengeItemID string     `gorm:"size:36;not null;index" json:"challenge_item_id"`
	Token           string     `gorm:"size:20;not null;index" json:"token"`
	Status          string     `gorm:"size:50;not null;index" json:"status"` // 'issued', 'verified', 'expired'
	VerifiedAt      *time.Time `json:"verified_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName specifies the table name for Redemption model.
func (Redemption) TableName() string {
	return "redemptions"
}

// BeforeCreate assigns a UUID if none was provided.
func (r *Redemption) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// EffectiveVerifiedAt returns the verification time, falling back to the
// creation time when verified_at was never stamped.
func (r *Redemption) EffectiveVerifiedAt() time.Time {
	if r.VerifiedAt != nil {
		return *r.VerifiedAt
	}
	return r.CreatedAt
}

// Redemption status constants.
const (
	RedemptionStatusIssued   = "issued"
	RedemptionStatusVerified = "verified"
	RedemptionStatusExpired  = "expired"
)
