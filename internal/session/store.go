// Package session stores partner dashboard sessions in Redis.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CookieName is the partner session cookie.
const CookieName = "wb_partner_session"

// ErrNotFound is returned for unknown or expired session IDs.
var ErrNotFound = errors.New("session not found")

const keyPrefix = "partner:session:"

// Cacher is the slice of the cache the store needs.
type Cacher interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Store issues opaque session IDs mapped to restaurant IDs. The cookie only
// ever carries the session ID; the restaurant identity stays server-side.
type Store struct {
	cache Cacher
	ttl   time.Duration
}

// NewStore creates a session store. Sessions expire after ttl.
func NewStore(cache Cacher, ttl time.Duration) *Store {
	return &Store{cache: cache, ttl: ttl}
}

// TTL returns the session lifetime, for cookie Max-Age.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create opens a session for a restaurant and returns its ID.
func (s *Store) Create(ctx context.Context, restaurantID string) (string, error) {
	sessionID := uuid.NewString()
	if err := s.cache.Set(ctx, keyPrefix+sessionID, restaurantID, s.ttl); err != nil {
		return "", err
	}
	return sessionID, nil
}

// Get resolves a session ID to its restaurant ID.
func (s *Store) Get(ctx context.Context, sessionID string) (string, error) {
	restaurantID, err := s.cache.Get(ctx, keyPrefix+sessionID)
	if err != nil {
		return "", err
	}
	if restaurantID == "" {
		return "", ErrNotFound
	}
	return restaurantID, nil
}

// Destroy removes a session. Destroying an unknown session is a no-op.
func (s *Store) Destroy(ctx context.Context, sessionID string) error {
	return s.cache.Del(ctx, keyPrefix+sessionID)
}
