package models

import (
	"time"
)

// UserProfile represents a subscriber profile. The ID is the auth provider's
// user identity and is supplied externally, never generated here.
type UserProfile struct {
	ID                 string     `gorm:"primaryKey;size:36" json:"id"`
	Email              string     `gorm:"size:255" json:"email"`
	Username           *string    `gorm:"uniqueIndex;size:100" json:"username"`
	FullName           string     `gorm:"size:255" json:"full_name"`
	PhoneNumber        string     `gorm:"size:50" json:"phone_number"`
	Address            string     `gorm:"type:text" json:"address"`
	DietaryFlags       []string   `gorm:"serializer:json" json:"dietary_flags"`
	AllergyFlags       []string   `gorm:"serializer:json" json:"allergy_flags"`
	DistanceBand       string     `gorm:"size:20" json:"distance_band"`
	MarketID           string     `gorm:"size:36;index" json:"market_id"`
	Role               string     `gorm:"size:50;default:subscriber" json:"role"`
	SubscriptionStatus string     `gorm:"size:50;index" json:"subscription_status"` // 'active', 'canceled', ''
	StripeCustomerID   *string    `gorm:"size:255" json:"stripe_customer_id"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// TableName specifies the table name for UserProfile model.
func (UserProfile) TableName() string {
	return "user_profiles"
}

// HasActiveSubscription reports whether the user can receive monthly challenges.
func (u *UserProfile) HasActiveSubscription() bool {
	return u.SubscriptionStatus == SubscriptionStatusActive
}

// Subscription status constants.
const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusCanceled = "canceled"
)

// Distance band values accepted during onboarding.
var DistanceBands = []string{"5_mi", "15_mi", "25_mi", "40_mi"}
