// Package store persists user accounts and learning progress.
package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a user id does not exist.
var ErrNotFound = errors.New("user not found")

// User is one account row. IDs are assigned by the database and never reused.
type User struct {
	ID        int
	Name      string
	PIN       string
	Points    int
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Progress is one per-content progress row for a user.
type Progress struct {
	ContentKey      string
	Completed       bool
	CorrectAttempts int
	TotalAttempts   int
	LastAttemptAt   time.Time
}

// UserUpdate carries the mutable account fields; nil means leave unchanged.
type UserUpdate struct {
	Name *string
	PIN  *string
}
