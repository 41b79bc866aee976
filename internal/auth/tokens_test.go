package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/favsync/internal/models"
)

var testSigningKey = []byte("test-signing-key-for-favorites")

func newTestTokenService(t *testing.T, optionsProto ...TokenOption) *TokenService {
	t.Helper()
	s, err := NewTokenService(testSigningKey, optionsProto...)
	require.NoError(t, err)
	return s
}

func TestIssueEncodesSubjectAndExpiry(t *testing.T) {
	s := newTestTokenService(t)

	before := time.Now()
	token, err := s.Issue("user1@miuandes.cl", DefaultTokenTTL)
	require.NoError(t, err)

	claims, err := s.Verify(token)
	require.NoError(t, err)

	assert.Equal(t, "user1@miuandes.cl", claims.Subject)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, before.Add(3600*time.Second), claims.ExpiresAt.Time, 5*time.Second)
}

func TestNewTokenServiceRequiresKey(t *testing.T) {
	_, err := NewTokenService(nil)
	assert.ErrorIs(t, err, ErrEmptySigningKey)
}

func TestVerifyRejectsMutatedSignature(t *testing.T) {
	s := newTestTokenService(t)
	token, err := s.Issue("user1@miuandes.cl", DefaultTokenTTL)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	mutated := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = s.Verify(mutated)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestVerifyRejectsForeignKey(t *testing.T) {
	other, err := NewTokenService([]byte("another-key"))
	require.NoError(t, err)
	token, err := other.Issue("user1@miuandes.cl", DefaultTokenTTL)
	require.NoError(t, err)

	_, err = newTestTokenService(t).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	past := time.Now().Add(-2 * time.Hour)
	issuer := newTestTokenService(t, WithClock(func() time.Time { return past }))
	token, err := issuer.Issue("user1@miuandes.cl", DefaultTokenTTL)
	require.NoError(t, err)

	_, err = newTestTokenService(t).Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}

func TestVerifyHasNoGraceWindow(t *testing.T) {
	now := time.Now()
	s := newTestTokenService(t, WithClock(func() time.Time { return now }))
	token, err := s.Issue("user1@miuandes.cl", 0)
	require.NoError(t, err)

	_, err = s.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyRejectsMalformedTokens(t *testing.T) {
	s := newTestTokenService(t)

	noSubject := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	noSubjectString, err := noSubject.SignedString(testSigningKey)
	require.NoError(t, err)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user1@miuandes.cl"})
	noExpiryString, err := noExpiry.SignedString(testSigningKey)
	require.NoError(t, err)

	testCases := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "garbage", token: "not-a-token"},
		{name: "two segments", token: "abc.def"},
		{name: "no subject", token: noSubjectString},
		{name: "no expiry", token: noExpiryString},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			_, err := s.Verify(testCase.token)
			assert.ErrorIs(t, err, ErrMalformedToken)
			assert.ErrorIs(t, err, models.ErrUnauthenticated)
		})
	}
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	s := newTestTokenService(t)
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
		Subject:   "user1@miuandes.cl",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	tokenString, err := token.SignedString(testSigningKey)
	require.NoError(t, err)

	_, err = s.Verify(tokenString)
	assert.ErrorIs(t, err, models.ErrUnauthenticated)
}
