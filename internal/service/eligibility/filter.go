// Package eligibility implements the rule set that narrows a market's
// restaurant pool down to the restaurants a user may be assigned. The filter
// is a pure function of its inputs and performs no I/O.
package eligibility

import (
	"time"

	"github.com/wanderbite/wanderbite/internal/models"
)

// Preferences carries the user's safety-relevant profile fields.
type Preferences struct {
	DietaryFlags []string
	AllergyFlags []string
}

// History carries everything about the user's and market's past that the
// exclusion rules consult. All sets and counts are precomputed by the caller
// so the filter itself stays free of I/O.
type History struct {
	// VerifiedRedemptions are the user's verified redemptions, any age.
	VerifiedRedemptions []models.Redemption
	// SwappedOut holds restaurants swapped out of the user's cycles in the
	// last 3 months.
	SwappedOut map[string]bool
	// ReceivedLast6Months holds restaurants in any of the user's cycles in
	// the last 6 months, keyed by cycle_month.
	ReceivedLast6Months map[string]bool
	// CycleCounts12Months maps restaurant ID to the number of distinct
	// cycles of this user that included it in the last 12 months.
	CycleCounts12Months map[string]int
	// LastMonthRestaurants holds only last calendar month's assignments,
	// used by the relaxed fallback.
	LastMonthRestaurants map[string]bool
	// MonthlyRedemptionCounts maps restaurant ID to its issued+verified
	// redemption count for the current month, across all users.
	MonthlyRedemptionCounts map[string]int
	// Now anchors the 6- and 12-month redemption windows.
	Now time.Time
}

// Reason identifies which exclusion rule removed a restaurant.
type Reason string

// Exclusion reasons, one per rule.
const (
	ReasonDietaryConflict  Reason = "dietary_conflict"
	ReasonAllergyConflict  Reason = "allergy_conflict"
	ReasonSwapCooldown     Reason = "swap_cooldown"
	ReasonCapacityReached  Reason = "capacity_reached"
	ReasonSixMonthRepeat   Reason = "six_month_repeat"
	ReasonYearlyCycleCap   Reason = "yearly_cycle_cap"
	ReasonRedeemedRecently Reason = "redeemed_recently"
	ReasonYearlyRedeemCap  Reason = "yearly_redeem_cap"
	ReasonLastMonthRepeat  Reason = "last_month_repeat"
)

// Exclusion records one filtered-out restaurant for diagnostics.
type Exclusion struct {
	RestaurantID string
	Reason       Reason
	// DietaryFlag is set when Reason is ReasonDietaryConflict: the first
	// matching flag.
	DietaryFlag string
}

// Filter applies the full-strength rule set. A restaurant survives only if
// no rule fires. Restaurants without an entry in offers are skipped; an
// active offer is a precondition for assignability.
func Filter(pool []models.Restaurant, offers map[string]models.RestaurantOffer, prefs Preferences, hist History) ([]models.Restaurant, []Exclusion) {
	return run(pool, offers, prefs, hist, false)
}

// FilterRelaxed applies the fallback rule set used when the full filter
// leaves fewer restaurants than a cycle needs: the 6-month repeat block and
// the 12-month cycle cap are dropped, and only last calendar month's
// assignments are excluded. Safety, cooldown, capacity and the
// redemption-based rules stay at full strength.
func FilterRelaxed(pool []models.Restaurant, offers map[string]models.RestaurantOffer, prefs Preferences, hist History) ([]models.Restaurant, []Exclusion) {
	return run(pool, offers, prefs, hist, true)
}

func run(pool []models.Restaurant, offers map[string]models.RestaurantOffer, prefs Preferences, hist History, relaxed bool) ([]models.Restaurant, []Exclusion) {
	var eligible []models.Restaurant
	var exclusions []Exclusion

	for _, restaurant := range pool {
		offer, hasOffer := offers[restaurant.ID]
		if !hasOffer {
			continue
		}
		if reason, flag := exclude(restaurant, offer, prefs, hist, relaxed); reason != "" {
			exclusions = append(exclusions, Exclusion{
				RestaurantID: restaurant.ID,
				Reason:       reason,
				DietaryFlag:  flag,
			})
			continue
		}
		eligible = append(eligible, restaurant)
	}
	return eligible, exclusions
}

func exclude(restaurant models.Restaurant, offer models.RestaurantOffer, prefs Preferences, hist History, relaxed bool) (Reason, string) {
	if conflict := FindDietaryConflict(restaurant.CuisineTags, prefs.DietaryFlags); conflict != nil {
		return ReasonDietaryConflict, conflict.Flag
	}
	if HasAllergyConflict(restaurant.CuisineTags, prefs.AllergyFlags) {
		return ReasonAllergyConflict, ""
	}
	if hist.SwappedOut[restaurant.ID] {
		return ReasonSwapCooldown, ""
	}
	if hist.MonthlyRedemptionCounts[restaurant.ID] >= offer.MaxRedemptionsPerMonth {
		return ReasonCapacityReached, ""
	}

	sixMonthsAgo := hist.Now.AddDate(0, -6, 0)
	twelveMonthsAgo := hist.Now.AddDate(-1, 0, 0)
	recentVerified := 0
	inCooldown := false
	for _, red := range hist.VerifiedRedemptions {
		if red.RestaurantID != restaurant.ID {
			continue
		}
		at := red.EffectiveVerifiedAt()
		if !at.Before(sixMonthsAgo) {
			inCooldown = true
		}
		if !at.Before(twelveMonthsAgo) {
			recentVerified++
		}
	}
	if inCooldown {
		return ReasonRedeemedRecently, ""
	}
	if recentVerified >= 2 {
		return ReasonYearlyRedeemCap, ""
	}

	if relaxed {
		if hist.LastMonthRestaurants[restaurant.ID] {
			return ReasonLastMonthRepeat, ""
		}
		return "", ""
	}

	if hist.ReceivedLast6Months[restaurant.ID] {
		return ReasonSixMonthRepeat, ""
	}
	if hist.CycleCounts12Months[restaurant.ID] >= 2 {
		return ReasonYearlyCycleCap, ""
	}
	return "", ""
}
