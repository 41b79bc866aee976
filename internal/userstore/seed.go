package userstore

import (
	"context"
	"fmt"

	"github.com/patric-chuzhbe/favsync/internal/logger"
)

// SeedUser describes a user created on first start.
type SeedUser struct {
	Email     string
	Name      string
	Password  string
	Favorites []string
}

// DemoUsers are the accounts available out of the box.
var DemoUsers = []SeedUser{
	{
		Email:     "user1@miuandes.cl",
		Name:      "Juan",
		Password:  "password1",
		Favorites: []string{"Talca", "Arica", "Calama"},
	},
	{
		Email:     "user2@miuandes.cl",
		Name:      "Pedro",
		Password:  "password2",
		Favorites: []string{"Temuco", "Valdivia", "Coyhaique"},
	},
}

// Seed makes sure every seed user exists. Existing users are not modified.
func (s *UserStore) Seed(ctx context.Context, users []SeedUser) error {
	for _, seed := range users {
		created, err := s.EnsureUser(ctx, seed.Email, seed.Name, seed.Password, seed.Favorites)
		if err != nil {
			return fmt.Errorf("in internal/userstore/seed.go/Seed(): error while `s.EnsureUser()` calling: %w", err)
		}
		if created {
			logger.Log.Infow("Seed user created", "email", seed.Email)
		}
	}

	return nil
}
