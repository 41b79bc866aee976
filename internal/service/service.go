// Package service implements the favorites operations exposed by the HTTP
// router: login, token liveness and read/replace of the favorites list.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/patric-chuzhbe/favsync/internal/auth"
	"github.com/patric-chuzhbe/favsync/internal/models"
	"github.com/patric-chuzhbe/favsync/internal/user"
)

type authenticator interface {
	Authenticate(ctx context.Context, identity, credential string) (*user.User, error)
}

type favoritesKeeper interface {
	GetFavorites(ctx context.Context, identity string) ([]string, error)

	SetFavorites(ctx context.Context, identity string, favorites []string) error
}

type userStore interface {
	authenticator
	favoritesKeeper
}

type tokenIssuer interface {
	Issue(subject string, ttl time.Duration) (string, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	users    userStore
	tokens   tokenIssuer
	db       pinger
	tokenTTL time.Duration
}

type InitOption func(*Service)

// WithTokenTTL overrides the session lifetime. Non-positive values are ignored.
func WithTokenTTL(ttl time.Duration) InitOption {
	return func(s *Service) {
		if ttl > 0 {
			s.tokenTTL = ttl
		}
	}
}

func New(
	users userStore,
	tokens tokenIssuer,
	db pinger,
	optionsProto ...InitOption,
) *Service {
	s := &Service{
		users:    users,
		tokens:   tokens,
		db:       db,
		tokenTTL: auth.DefaultTokenTTL,
	}
	for _, protoOption := range optionsProto {
		protoOption(s)
	}

	return s
}

// Login checks the credential and issues a session token for the identity.
// Any credential mismatch is reported as models.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, identity, credential string) (string, error) {
	usr, err := s.users.Authenticate(ctx, identity, credential)
	if errors.Is(err, models.ErrInvalidCredentials) {
		return "", models.ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("in internal/service/service.go/Login(): error while `s.users.Authenticate()` calling: %w", err)
	}

	token, err := s.tokens.Issue(usr.Email, s.tokenTTL)
	if err != nil {
		return "", fmt.Errorf("in internal/service/service.go/Login(): error while `s.tokens.Issue()` calling: %w", err)
	}

	return token, nil
}

// GetFavorites returns the list of the authenticated user, never nil.
func (s *Service) GetFavorites(ctx context.Context, userID string) ([]string, error) {
	favorites, err := s.users.GetFavorites(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/GetFavorites(): error while `s.users.GetFavorites()` calling: %w", err)
	}
	if favorites == nil {
		favorites = []string{}
	}

	return favorites, nil
}

// SetFavorites replaces the list of the authenticated user. Entries are
// stored as given, duplicates included.
func (s *Service) SetFavorites(ctx context.Context, userID string, favorites []string) error {
	if favorites == nil {
		favorites = []string{}
	}
	if err := s.users.SetFavorites(ctx, userID, favorites); err != nil {
		return fmt.Errorf("in internal/service/service.go/SetFavorites(): error while `s.users.SetFavorites()` calling: %w", err)
	}

	return nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}
