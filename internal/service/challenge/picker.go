package challenge

import (
	"math/rand"

	"github.com/wanderbite/wanderbite/internal/models"
)

// PickK selects k restaurants uniformly at random from the pool without
// replacement. The pool itself is not mutated. When the pool holds fewer
// than k restaurants, all of them are returned.
func PickK(rng *rand.Rand, pool []models.Restaurant, k int) []models.Restaurant {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	if k > len(pool) {
		k = len(pool)
	}

	shuffled := make([]models.Restaurant, len(pool))
	copy(shuffled, pool)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:k]
}

// PickOne selects a single restaurant uniformly at random from the pool.
func PickOne(rng *rand.Rand, pool []models.Restaurant) *models.Restaurant {
	if len(pool) == 0 {
		return nil
	}
	r := pool[rng.Intn(len(pool))]
	return &r
}
