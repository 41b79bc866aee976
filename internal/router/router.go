// Package router wires the favorites HTTP API: login, token liveness,
// read/replace of the favorites list and a storage health check.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/favsync/internal/auth"
	"github.com/patric-chuzhbe/favsync/internal/gzippedhttp"
	"github.com/patric-chuzhbe/favsync/internal/logger"
	"github.com/patric-chuzhbe/favsync/internal/models"
)

// InvalidCredentialsBody is the body of every failed login.
const InvalidCredentialsBody = "Invalid credentials"

const maxRequestBodySize = 1 << 20

type favoritesService interface {
	Login(ctx context.Context, identity, credential string) (string, error)

	GetFavorites(ctx context.Context, userID string) ([]string, error)

	SetFavorites(ctx context.Context, userID string, favorites []string) error

	Ping(ctx context.Context) error
}

type authenticator interface {
	AuthenticateUser(h http.Handler) http.Handler
}

type rateLimiter interface {
	Allow(key string) bool
}

type clientIPResolver interface {
	GetClientIP(request *http.Request) (net.IP, error)
}

// Router holds the handlers of the favorites API.
type Router struct {
	service        favoritesService
	auth           authenticator
	loginLimiter   rateLimiter
	ipResolver     clientIPResolver
	allowedOrigins []string
	validate       *validator.Validate
}

type InitOption func(*Router)

// WithLoginRateLimiter throttles POST /login per client address.
func WithLoginRateLimiter(limiter rateLimiter, ipResolver clientIPResolver) InitOption {
	return func(r *Router) {
		r.loginLimiter = limiter
		r.ipResolver = ipResolver
	}
}

// WithAllowedOrigins restricts CORS. An empty list allows every origin.
func WithAllowedOrigins(origins []string) InitOption {
	return func(r *Router) {
		if len(origins) > 0 {
			r.allowedOrigins = origins
		}
	}
}

// New builds the chi handler tree.
func New(
	service favoritesService,
	theAuth authenticator,
	optionsProto ...InitOption,
) *chi.Mux {
	myRouter := &Router{
		service:        service,
		auth:           theAuth,
		allowedOrigins: []string{"*"},
		validate:       validator.New(),
	}
	for _, protoOption := range optionsProto {
		protoOption(myRouter)
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.Recoverer,
		logger.WithLoggingHTTPMiddleware,
		cors.Handler(cors.Options{
			AllowedOrigins: myRouter.allowedOrigins,
			AllowedMethods: []string{
				http.MethodHead,
				http.MethodGet,
				http.MethodPost,
				http.MethodPut,
				http.MethodPatch,
				http.MethodDelete,
				http.MethodOptions,
			},
			AllowedHeaders: []string{"Authorization", "Content-Type", "Accept"},
			MaxAge:         300,
		}),
		gzippedhttp.UngzipRequest,
		gzippedhttp.GzipResponse,
	)

	router.Post(`/login`, myRouter.PostLogin)
	router.Get(`/ping`, myRouter.GetPing)

	router.Group(func(protected chi.Router) {
		protected.Use(myRouter.auth.AuthenticateUser)
		protected.Get(`/verify-token`, myRouter.GetVerifyToken)
		protected.Get(`/favorites`, myRouter.GetFavorites)
		protected.Post(`/favorites`, myRouter.PostFavorites)
	})

	return router
}

// PostLogin handles POST /login with a JSON or form encoded body.
func (router *Router) PostLogin(response http.ResponseWriter, request *http.Request) {
	if !router.allowLogin(request) {
		http.Error(response, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		return
	}

	request.Body = http.MaxBytesReader(response, request.Body, maxRequestBodySize)

	credentials, err := parseLoginRequest(request)
	if err != nil {
		logger.Log.Debugw("Unparseable login request", zap.Error(err))
		http.Error(response, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := router.validate.Struct(credentials); err != nil {
		http.Error(response, InvalidCredentialsBody, http.StatusUnauthorized)
		return
	}

	token, err := router.service.Login(request.Context(), credentials.Email, credentials.Password)
	if errors.Is(err, models.ErrInvalidCredentials) {
		http.Error(response, InvalidCredentialsBody, http.StatusUnauthorized)
		return
	}
	if err != nil {
		logger.Log.Errorw("Error calling the `router.service.Login()`", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(response, http.StatusOK, models.LoginResponse{Token: token})
}

// GetVerifyToken answers 200 with an empty body; the auth middleware
// rejects invalid tokens before this handler runs.
func (router *Router) GetVerifyToken(response http.ResponseWriter, request *http.Request) {
	response.WriteHeader(http.StatusOK)
}

// GetFavorites handles GET /favorites.
func (router *Router) GetFavorites(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusUnauthorized)
		return
	}

	favorites, err := router.service.GetFavorites(request.Context(), userID)
	if err != nil {
		logger.Log.Errorw("Error calling the `router.service.GetFavorites()`", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	writeJSON(response, http.StatusOK, models.FavoritesResponse{Favorites: favorites})
}

// PostFavorites handles POST /favorites. A body that cannot be decoded is
// treated as an empty list.
func (router *Router) PostFavorites(response http.ResponseWriter, request *http.Request) {
	userID, ok := auth.UserIDFromContext(request.Context())
	if !ok {
		response.WriteHeader(http.StatusUnauthorized)
		return
	}

	request.Body = http.MaxBytesReader(response, request.Body, maxRequestBodySize)

	var payload models.SetFavoritesRequest
	if err := json.NewDecoder(request.Body).Decode(&payload); err != nil {
		logger.Log.Debugw("Malformed favorites body, storing an empty list", "user", userID, zap.Error(err))
		payload.Favorites = []string{}
	}

	if err := router.service.SetFavorites(request.Context(), userID, payload.Favorites); err != nil {
		logger.Log.Errorw("Error calling the `router.service.SetFavorites()`", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

// GetPing reports whether the storage backend is reachable.
func (router *Router) GetPing(response http.ResponseWriter, request *http.Request) {
	if err := router.service.Ping(request.Context()); err != nil {
		logger.Log.Errorw("Error calling the `router.service.Ping()`", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.WriteHeader(http.StatusOK)
}

func (router *Router) allowLogin(request *http.Request) bool {
	if router.loginLimiter == nil {
		return true
	}

	key := request.RemoteAddr
	if router.ipResolver != nil {
		ip, err := router.ipResolver.GetClientIP(request)
		if err != nil {
			logger.Log.Debugw("Cannot resolve the client address", zap.Error(err))
		} else {
			key = ip.String()
		}
	}

	return router.loginLimiter.Allow(key)
}

func parseLoginRequest(request *http.Request) (*models.LoginRequest, error) {
	mediaType, _, _ := mime.ParseMediaType(request.Header.Get("Content-Type"))

	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := request.ParseMultipartForm(maxRequestBodySize); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return nil, err
		}

		return &models.LoginRequest{
			Email:    strings.TrimSpace(request.PostForm.Get("email")),
			Password: request.PostForm.Get("password"),
		}, nil
	}

	credentials := &models.LoginRequest{}
	if err := json.NewDecoder(request.Body).Decode(credentials); err != nil {
		return nil, err
	}
	credentials.Email = strings.TrimSpace(credentials.Email)

	return credentials, nil
}

func writeJSON(response http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Log.Errorw("Error calling the `json.Marshal()`", zap.Error(err))
		response.WriteHeader(http.StatusInternalServerError)
		return
	}

	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	if _, err := response.Write(body); err != nil {
		logger.Log.Debugw("Error writing the response body", zap.Error(err))
	}
}
