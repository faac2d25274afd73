// Package models defines domain models for the dining rewards system.
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Restaurant represents a partner restaurant in a market.
type Restaurant struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Name        string    `gorm:"not null;size:255" json:"name"`
	CuisineTags []string  `gorm:"serializer:json" json:"cuisine_tags"`
	Address     string    `gorm:"type:text" json:"address"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
	Status      string    `gorm:"size:50;index" json:"status"` // 'active', 'inactive'
	MarketID    string    `gorm:"size:36;not null;index" json:"market_id"`
	OrgID       string    `gorm:"size:36" json:"org_id"`
	PIN         string    `gorm:"column:pin;size:50" json:"-"` // partner login PIN, never serialized
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Offers []RestaurantOffer `gorm:"foreignKey:RestaurantID" json:"offers,omitempty"`
}

// TableName specifies the table name for Restaurant model.
func (Restaurant) TableName() string {
	return "restaurants"
}

// BeforeCreate assigns a UUID if none was provided.
func (r *Restaurant) BeforeCreate(_ *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// RestaurantOffer holds the discount terms attached to a restaurant.
// Only restaurants with an active offer are assignable.
type RestaurantOffer struct {
	ID                     string    `gorm:"primaryKey;size:36" json:"id"`
	RestaurantID           string    `gorm:"size:36;not null;index" json:"restaurant_id"`
	DiscountAmountCents    int       `gorm:"not null" json:"discount_amount_cents"`
	MinSpendCents          int       `gorm:"not null" json:"min_spend_cents"`
	MaxRedemptionsPerMonth int       `gorm:"not null;default:10" json:"max_redemptions_per_month"`
	Active                 bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// TableName specifies the table name for RestaurantOffer model.
func (RestaurantOffer) TableName() string {
	return "restaurant_offers"
}

// BeforeCreate assigns a UUID if none was provided.
func (o *RestaurantOffer) BeforeCreate(_ *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	return nil
}

// Restaurant status constants.
const (
	RestaurantStatusActive   = "active"
	RestaurantStatusInactive = "inactive"
)
