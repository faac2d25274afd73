package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a point lookup matches no row.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicateUsername is returned when a profile write violates the
// username unique index.
var ErrDuplicateUsername = errors.New("username already taken")

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// isUniqueViolation detects unique-constraint failures across the postgres
// driver (SQLSTATE 23505) and the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key")
}
