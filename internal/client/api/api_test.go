package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/favsync/internal/models"
)

const testToken = "header.payload.signature"

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(server.URL, 2*time.Second)
}

func TestLogin(t *testing.T) {
	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/login", r.URL.Path)
		var credentials models.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&credentials))

		if credentials.Email != "user1@miuandes.cl" || credentials.Password != "password1" {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"` + testToken + `"}`))
	})

	token, err := client.Login(context.Background(), "user1@miuandes.cl", "password1")
	require.NoError(t, err)
	assert.Equal(t, testToken, token)

	_, err = client.Login(context.Background(), "user1@miuandes.cl", "bad")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"ok", http.StatusOK, nil},
		{"unauthorized", http.StatusUnauthorized, models.ErrUnauthenticated},
		{"forbidden", http.StatusForbidden, models.ErrUnauthorized},
		{"throttled", http.StatusTooManyRequests, models.ErrNetworkFailure},
		{"server error", http.StatusBadGateway, models.ErrNetworkFailure},
		{"unexpected", http.StatusTeapot, ErrUnexpectedResponse},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
				w.WriteHeader(test.status)
			})

			err := client.VerifyToken(context.Background(), testToken)
			if test.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, test.wantErr)
		})
	}
}

func TestTransportFailureIsNetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := New(url, time.Second)

	err := client.VerifyToken(context.Background(), testToken)
	assert.ErrorIs(t, err, models.ErrNetworkFailure)

	_, err = client.GetFavorites(context.Background(), testToken)
	assert.ErrorIs(t, err, models.ErrNetworkFailure)

	err = client.SetFavorites(context.Background(), testToken, []string{"Arica"})
	assert.ErrorIs(t, err, models.ErrNetworkFailure)

	_, err = client.Login(context.Background(), "a", "b")
	assert.ErrorIs(t, err, models.ErrNetworkFailure)
}

func TestFavorites(t *testing.T) {
	var stored atomic.Value
	stored.Store(`{"favorites":null}`)

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/favorites", r.URL.Path)
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(stored.Load().(string)))
		case http.MethodPost:
			body, err := io.ReadAll(r.Body)
			require.NoError(t, err)
			stored.Store(string(body))
		}
	})

	favorites, err := client.GetFavorites(context.Background(), testToken)
	require.NoError(t, err)
	assert.NotNil(t, favorites)
	assert.Empty(t, favorites)

	require.NoError(t, client.SetFavorites(context.Background(), testToken, []string{"Talca", "Arica"}))
	assert.JSONEq(t, `{"favorites":["Talca","Arica"]}`, stored.Load().(string))

	favorites, err = client.GetFavorites(context.Background(), testToken)
	require.NoError(t, err)
	assert.Equal(t, []string{"Talca", "Arica"}, favorites)

	require.NoError(t, client.SetFavorites(context.Background(), testToken, nil))
	assert.JSONEq(t, `{"favorites":[]}`, stored.Load().(string))
}

func TestWithRetries(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	client := New(server.URL, time.Second, WithRetries(3, time.Millisecond))

	require.NoError(t, client.VerifyToken(context.Background(), testToken))
	assert.Equal(t, int32(3), calls.Load())
}
