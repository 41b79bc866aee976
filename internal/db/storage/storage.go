// Package storage declares the user repository contract implemented by the
// memory, JSON file and PostgreSQL backends.
package storage

import (
	"context"
	"errors"

	"github.com/patric-chuzhbe/favsync/internal/user"
)

// ErrUserNotFound is returned by GetUser for an unknown email.
var ErrUserNotFound = errors.New("user not found")

// Storage is a key-value style user repository keyed by email.
// Implementations return and store copies; callers never alias stored state.
type Storage interface {
	GetUser(ctx context.Context, email string) (*user.User, error)

	PutUser(ctx context.Context, usr *user.User) error

	Ping(ctx context.Context) error

	Close() error
}
