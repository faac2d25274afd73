package eligibility

import (
	"strings"
)

// incompatibleTags maps a dietary flag to the cuisine tags that disqualify a
// restaurant for users carrying that flag. Matching is case-insensitive
// exact tag membership.
var incompatibleTags = map[string][]string{
	"vegetarian": {"bbq", "steakhouse", "meat", "burgers"},
	"vegan":      {"bbq", "steakhouse", "meat", "burgers", "cheese", "eggs", "dairy"},
	"halal":      {"pork", "beer", "wine", "bar"},
}

// DietaryConflict describes why a restaurant was rejected on dietary grounds.
type DietaryConflict struct {
	Flag            string
	ConflictingTags []string
}

// FindDietaryConflict returns the first dietary flag that conflicts with the
// restaurant's cuisine tags, or nil if there is no conflict.
func FindDietaryConflict(cuisineTags, dietaryFlags []string) *DietaryConflict {
	if len(dietaryFlags) == 0 || len(cuisineTags) == 0 {
		return nil
	}

	for _, flag := range dietaryFlags {
		forbidden := incompatibleTags[strings.ToLower(flag)]
		if len(forbidden) == 0 {
			continue
		}

		var conflicts []string
		for _, tag := range cuisineTags {
			lowerTag := strings.ToLower(tag)
			for _, f := range forbidden {
				if lowerTag == f {
					conflicts = append(conflicts, lowerTag)
					break
				}
			}
		}
		if len(conflicts) > 0 {
			return &DietaryConflict{Flag: flag, ConflictingTags: conflicts}
		}
	}
	return nil
}

// HasAllergyConflict reports whether any allergy flag matches any cuisine tag
// by case-insensitive substring in either direction. Looser than the dietary
// check: tags stand in as a coarse proxy for ingredient risk.
func HasAllergyConflict(cuisineTags, allergyFlags []string) bool {
	if len(allergyFlags) == 0 {
		return false
	}
	for _, tag := range cuisineTags {
		lowerTag := strings.ToLower(tag)
		for _, allergy := range allergyFlags {
			lowerAllergy := strings.ToLower(allergy)
			if strings.Contains(lowerTag, lowerAllergy) || strings.Contains(lowerAllergy, lowerTag) {
				return true
			}
		}
	}
	return false
}
