package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/favsync/internal/models"
)

// DefaultTokenTTL is the lifetime of a session token.
const DefaultTokenTTL = time.Hour

var (
	// ErrMalformedToken is returned when the token cannot be parsed or lacks required claims.
	ErrMalformedToken = fmt.Errorf("%w: malformed token", models.ErrUnauthenticated)

	// ErrExpiredToken is returned when the token's exp is not in the future.
	ErrExpiredToken = fmt.Errorf("%w: token expired", models.ErrUnauthenticated)

	// ErrInvalidSignature is returned when the signature does not match.
	ErrInvalidSignature = fmt.Errorf("%w: invalid token signature", models.ErrUnauthenticated)
)

// ErrEmptySigningKey is returned by NewTokenService without a secret.
var ErrEmptySigningKey = errors.New("token signing key is empty")

// Claims represents the JWT claims of a session token: sub is the user
// email, exp the absolute expiry.
type Claims struct {
	jwt.RegisteredClaims
}

// TokenService issues and verifies stateless HS256 session tokens.
type TokenService struct {
	signingKey []byte
	now        func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		s.now = now
	}
}

// NewTokenService creates a TokenService signing with the given symmetric key.
func NewTokenService(signingKey []byte, optionsProto ...TokenOption) (*TokenService, error) {
	if len(signingKey) == 0 {
		return nil, ErrEmptySigningKey
	}

	s := &TokenService{
		signingKey: signingKey,
		now:        time.Now,
	}
	for _, protoOption := range optionsProto {
		protoOption(s)
	}

	return s, nil
}

// Issue produces a signed token for subject expiring ttl from now.
func (s *TokenService) Issue(subject string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("in internal/auth/tokens.go/Issue(): error while `token.SignedString()` calling: %w", err)
	}

	return tokenString, nil
}

// Verify checks the signature and expiry of tokenString and returns its
// claims. Every failure wraps models.ErrUnauthenticated.
func (s *TokenService) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMalformedToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return s.signingKey, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return nil, ErrInvalidSignature
	case err != nil:
		return nil, ErrMalformedToken
	}

	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrMalformedToken
	}
	if !claims.VerifyExpiresAt(s.now(), true) {
		return nil, ErrExpiredToken
	}

	return claims, nil
}
