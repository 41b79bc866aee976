// Package models holds the wire types of the favorites HTTP API and the
// error taxonomy shared by the server and the client.
package models

import "errors"

// LoginRequest is the body of POST /login. It is also accepted as form values.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries the issued session token.
type LoginResponse struct {
	Token string `json:"token"`
}

// FavoritesResponse is the body of GET /favorites.
type FavoritesResponse struct {
	Favorites []string `json:"favorites"`
}

// SetFavoritesRequest is the body of POST /favorites.
type SetFavoritesRequest struct {
	Favorites []string `json:"favorites"`
}

const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeFile
	StorageTypeMemory
)

var (
	// ErrInvalidCredentials is returned by login for an unknown identity and
	// for a wrong credential alike.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrUnauthenticated covers an absent, malformed, expired or badly signed token.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrUnauthorized is reserved for a valid token used on a forbidden operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNetworkFailure is a transport-level failure seen by the client.
	ErrNetworkFailure = errors.New("network failure")
)
