// Package api is the HTTP client of the favorites server. Responses are
// mapped onto the shared error taxonomy in internal/models.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/patric-chuzhbe/favsync/internal/models"
)

// ErrUnexpectedResponse is returned for a status the protocol does not define.
var ErrUnexpectedResponse = errors.New("unexpected server response")

// Client talks to one favorites server.
type Client struct {
	http *resty.Client
}

type Option func(*resty.Client)

// WithRetries retries transport failures and 5xx answers count times,
// waiting at most wait between attempts.
func WithRetries(count int, wait time.Duration) Option {
	return func(rc *resty.Client) {
		rc.SetRetryCount(count).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(wait).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				return err != nil || resp.StatusCode() >= http.StatusInternalServerError
			})
	}
}

// New returns a client for baseURL. Every request is bounded by timeout.
func New(baseURL string, timeout time.Duration, optionsProto ...Option) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	for _, protoOption := range optionsProto {
		protoOption(rc)
	}

	return &Client{http: rc}
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, identity, credential string) (string, error) {
	var result models.LoginResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(models.LoginRequest{Email: identity, Password: credential}).
		SetResult(&result).
		Post("/login")
	if err != nil {
		return "", networkFailure(err)
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		if result.Token == "" {
			return "", fmt.Errorf("%w: empty token", ErrUnexpectedResponse)
		}
		return result.Token, nil
	case http.StatusUnauthorized:
		return "", models.ErrInvalidCredentials
	}

	return "", statusError(resp)
}

// VerifyToken succeeds when the server still accepts token.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		Get("/verify-token")
	if err != nil {
		return networkFailure(err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}

	return statusError(resp)
}

// GetFavorites downloads the server copy of the list, never nil.
func (c *Client) GetFavorites(ctx context.Context, token string) ([]string, error) {
	var result models.FavoritesResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&result).
		Get("/favorites")
	if err != nil {
		return nil, networkFailure(err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, statusError(resp)
	}
	if result.Favorites == nil {
		result.Favorites = []string{}
	}

	return result.Favorites, nil
}

// SetFavorites replaces the server copy with favorites.
func (c *Client) SetFavorites(ctx context.Context, token string, favorites []string) error {
	if favorites == nil {
		favorites = []string{}
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetBody(models.SetFavoritesRequest{Favorites: favorites}).
		Post("/favorites")
	if err != nil {
		return networkFailure(err)
	}
	if resp.StatusCode() == http.StatusOK {
		return nil
	}

	return statusError(resp)
}

func networkFailure(err error) error {
	return fmt.Errorf("%w: %v", models.ErrNetworkFailure, err)
}

func statusError(resp *resty.Response) error {
	switch status := resp.StatusCode(); {
	case status == http.StatusUnauthorized:
		return models.ErrUnauthenticated
	case status == http.StatusForbidden:
		return models.ErrUnauthorized
	case status == http.StatusTooManyRequests, status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: server answered %d", models.ErrNetworkFailure, status)
	default:
		return fmt.Errorf("%w: status %d", ErrUnexpectedResponse, status)
	}
}
