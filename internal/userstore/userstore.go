// Package userstore owns user identities, credential checks and the
// authoritative favorites list of every user.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/favsync/internal/db/storage"
	"github.com/patric-chuzhbe/favsync/internal/logger"
	"github.com/patric-chuzhbe/favsync/internal/models"
	"github.com/patric-chuzhbe/favsync/internal/password"
	"github.com/patric-chuzhbe/favsync/internal/user"
)

type repository interface {
	GetUser(ctx context.Context, email string) (*user.User, error)

	PutUser(ctx context.Context, usr *user.User) error
}

// UserStore is safe for concurrent use. Writes to the same user are serialized.
type UserStore struct {
	repo   repository
	hasher password.Hasher
	locks  *keyedMutex

	dummyOnce sync.Once
	dummyHash string
}

func New(repo repository, hasher password.Hasher) *UserStore {
	return &UserStore{
		repo:   repo,
		hasher: hasher,
		locks:  newKeyedMutex(),
	}
}

// Authenticate checks the credential of identity. An unknown identity and a
// wrong credential both yield models.ErrInvalidCredentials; a hash comparison
// runs in either case so timing does not reveal which one happened.
func (s *UserStore) Authenticate(ctx context.Context, identity, credential string) (*user.User, error) {
	usr, err := s.repo.GetUser(ctx, identity)
	if errors.Is(err, storage.ErrUserNotFound) {
		s.hasher.Verify(s.getDummyHash(), credential)
		return nil, models.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("in internal/userstore/userstore.go/Authenticate(): error while `s.repo.GetUser()` calling: %w", err)
	}

	if !s.hasher.Verify(usr.PasswordHash, credential) {
		return nil, models.ErrInvalidCredentials
	}

	return usr, nil
}

// GetFavorites returns the stored list, empty (never nil) when never set.
func (s *UserStore) GetFavorites(ctx context.Context, identity string) ([]string, error) {
	usr, err := s.repo.GetUser(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("in internal/userstore/userstore.go/GetFavorites(): error while `s.repo.GetUser()` calling: %w", err)
	}

	return user.CopyFavorites(usr.Favorites), nil
}

// SetFavorites replaces the stored list wholesale.
func (s *UserStore) SetFavorites(ctx context.Context, identity string, favorites []string) error {
	unlock := s.locks.Lock(identity)
	defer unlock()

	usr, err := s.repo.GetUser(ctx, identity)
	if err != nil {
		return fmt.Errorf("in internal/userstore/userstore.go/SetFavorites(): error while `s.repo.GetUser()` calling: %w", err)
	}

	usr.Favorites = user.CopyFavorites(favorites)
	if err := s.repo.PutUser(ctx, usr); err != nil {
		return fmt.Errorf("in internal/userstore/userstore.go/SetFavorites(): error while `s.repo.PutUser()` calling: %w", err)
	}

	return nil
}

// UserExists reports whether identity resolves to a stored user.
func (s *UserStore) UserExists(ctx context.Context, identity string) (bool, error) {
	_, err := s.repo.GetUser(ctx, identity)
	if errors.Is(err, storage.ErrUserNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("in internal/userstore/userstore.go/UserExists(): error while `s.repo.GetUser()` calling: %w", err)
	}

	return true, nil
}

// EnsureUser creates the user when the email is not yet known. An existing
// user, including their favorites, is left untouched.
func (s *UserStore) EnsureUser(ctx context.Context, email, name, plainPassword string, favorites []string) (bool, error) {
	unlock := s.locks.Lock(email)
	defer unlock()

	_, err := s.repo.GetUser(ctx, email)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, storage.ErrUserNotFound) {
		return false, fmt.Errorf("in internal/userstore/userstore.go/EnsureUser(): error while `s.repo.GetUser()` calling: %w", err)
	}

	hash, err := s.hasher.Hash(plainPassword)
	if err != nil {
		return false, fmt.Errorf("in internal/userstore/userstore.go/EnsureUser(): error while `s.hasher.Hash()` calling: %w", err)
	}

	err = s.repo.PutUser(ctx, &user.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Favorites:    user.CopyFavorites(favorites),
	})
	if err != nil {
		return false, fmt.Errorf("in internal/userstore/userstore.go/EnsureUser(): error while `s.repo.PutUser()` calling: %w", err)
	}

	return true, nil
}

func (s *UserStore) getDummyHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("dummy-password-for-timing")
		if err != nil {
			logger.Log.Debugw("Failed to build the dummy credential hash", zap.Error(err))
			return
		}
		s.dummyHash = hash
	})

	return s.dummyHash
}
