// Package auth provides the session token service and the HTTP middleware
// that guards protected favorites operations with a bearer token.
package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/favsync/internal/logger"
)

// AccessDeniedBody is the response body of every rejected protected request.
// It is deliberately identical for all token failure reasons.
const AccessDeniedBody = "Access Denied"

type tokenVerifier interface {
	Verify(tokenString string) (*Claims, error)
}

type userKeeper interface {
	UserExists(ctx context.Context, identity string) (bool, error)
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserIDKey is the context key holding the authenticated user's email.
const UserIDKey ContextKey = "userID"

// Auth gates protected handlers behind a valid session token whose subject
// resolves to an existing user.
type Auth struct {
	tokens tokenVerifier
	users  userKeeper
}

// New creates the middleware provider.
func New(tokens tokenVerifier, users userKeeper) *Auth {
	return &Auth{
		tokens: tokens,
		users:  users,
	}
}

// AuthenticateUser rejects the request with 401 unless it carries a valid
// token. On success the subject is stored in the request context.
func (a *Auth) AuthenticateUser(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		claims, err := a.tokens.Verify(BearerToken(request.Header.Get("Authorization")))
		if err != nil {
			logger.Log.Debugw("token rejected", zap.Error(err))
			deny(response)
			return
		}

		exists, err := a.users.UserExists(request.Context(), claims.Subject)
		if err != nil {
			logger.Log.Errorw("Error calling the `a.users.UserExists()`", zap.Error(err))
			response.WriteHeader(http.StatusInternalServerError)
			return
		}
		if !exists {
			logger.Log.Debugw("token subject does not resolve to a user", "subject", claims.Subject)
			deny(response)
			return
		}

		ctx := context.WithValue(request.Context(), UserIDKey, claims.Subject)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

// UserIDFromContext returns the authenticated subject placed by AuthenticateUser.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// BearerToken extracts the token from an Authorization header value. Both
// "Bearer <token>" and a bare token are accepted.
func BearerToken(header string) string {
	parts := strings.Fields(header)
	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		if strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	return ""
}

func deny(response http.ResponseWriter) {
	response.Header().Set("Content-Type", "text/plain; charset=utf-8")
	response.WriteHeader(http.StatusUnauthorized)
	_, _ = response.Write([]byte(AccessDeniedBody))
}
