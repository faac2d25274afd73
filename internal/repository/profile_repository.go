package repository

import (
	"fmt"
	"time"

	"github.com/wanderbite/wanderbite/internal/models"
)

// ProfileRepository handles user profile database operations.
type ProfileRepository struct {
	db *DB
}

// NewProfileRepository creates a new profile repository.
func NewProfileRepository(db *DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create creates a new user profile. The ID must be the auth identity.
func (r *ProfileRepository) Create(profile *models.UserProfile) error {
	if err := r.db.Create(profile).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByID retrieves a profile by user ID.
func (r *ProfileRepository) GetByID(userID string) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.db.First(&profile, "id = ?", userID).Error; err != nil {
		return nil, fmt.Errorf("failed to get profile %s: %w", userID, err)
	}
	return &profile, nil
}

// Update saves a full profile.
func (r *ProfileRepository) Update(profile *models.UserProfile) error {
	if err := r.db.Save(profile).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return nil
}

// UpdateOnboarding sets the username and address collected by the
// onboarding flow.
func (r *ProfileRepository) UpdateOnboarding(userID, username, address string) error {
	err := r.db.Model(&models.UserProfile{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"username": username,
			"address":  address,
		}).Error
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to update onboarding fields for %s: %w", userID, err)
	}
	return nil
}

// SetSubscriptionActive records a completed checkout from the payment provider.
func (r *ProfileRepository) SetSubscriptionActive(userID, customerID string, periodEnd *time.Time) error {
	err := r.db.Model(&models.UserProfile{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"subscription_status": models.SubscriptionStatusActive,
			"stripe_customer_id":  customerID,
			"current_period_end":  periodEnd,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to activate subscription for %s: %w", userID, err)
	}
	return nil
}

// SetSubscriptionCanceledByCustomer marks the subscription canceled, keyed by
// the payment provider's customer ID as delivered in webhook payloads.
func (r *ProfileRepository) SetSubscriptionCanceledByCustomer(customerID string) error {
	err := r.db.Model(&models.UserProfile{}).
		Where("stripe_customer_id = ?", customerID).
		Update("subscription_status", models.SubscriptionStatusCanceled).Error
	if err != nil {
		return fmt.Errorf("failed to cancel subscription for customer %s: %w", customerID, err)
	}
	return nil
}
