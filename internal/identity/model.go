package identity

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned when no user matches a lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when a phone number is already registered.
	ErrUserExists = errors.New("user exists")
	// ErrInvalidPhone is returned when a phone number cannot be normalized.
	ErrInvalidPhone = errors.New("invalid phone number")
)

// User represents an account identified by its phone number.
type User struct {
	ID          string
	Phone       string
	DisplayName *string
	CreatedAt   time.Time
	LastLoginAt time.Time
}
