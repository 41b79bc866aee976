// Package app initializes and runs the favorites server.
// It configures logging, storage, token handling and routing,
// and handles graceful shutdown.
package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/patric-chuzhbe/favsync/internal/auth"
	"github.com/patric-chuzhbe/favsync/internal/config"
	"github.com/patric-chuzhbe/favsync/internal/db/jsondb"
	"github.com/patric-chuzhbe/favsync/internal/db/memorystorage"
	"github.com/patric-chuzhbe/favsync/internal/db/postgresdb"
	"github.com/patric-chuzhbe/favsync/internal/db/storage"
	"github.com/patric-chuzhbe/favsync/internal/ipchecker"
	"github.com/patric-chuzhbe/favsync/internal/logger"
	"github.com/patric-chuzhbe/favsync/internal/models"
	"github.com/patric-chuzhbe/favsync/internal/password"
	"github.com/patric-chuzhbe/favsync/internal/ratelimit"
	"github.com/patric-chuzhbe/favsync/internal/router"
	"github.com/patric-chuzhbe/favsync/internal/service"
	"github.com/patric-chuzhbe/favsync/internal/userstore"
)

const generatedSigningKeySize = 32

// App bundles the configuration, storage and HTTP handler of the server.
type App struct {
	cfg          *config.Config
	db           storage.Storage
	loginLimiter *ratelimit.KeyedRateLimiter
	httpHandler  http.Handler
}

type InitOption func(*initOptions)

type initOptions struct {
	cfg *config.Config
}

// WithConfig skips config loading and uses cfg as is.
func WithConfig(cfg *config.Config) InitOption {
	return func(options *initOptions) {
		options.cfg = cfg
	}
}

// New initializes a new instance of App by:
// - loading configuration
// - initializing logger
// - selecting and setting up storage, seeding the demo users if enabled
// - setting up the router and middleware
func New(optionsProto ...InitOption) (*App, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	var err error
	app := &App{cfg: options.cfg}

	if app.cfg == nil {
		app.cfg, err = config.New()
		if err != nil {
			return nil, err
		}
	}

	err = logger.Init(app.cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	signingKey, err := getSigningKey(app.cfg)
	if err != nil {
		return nil, err
	}

	app.db, err = getStorageByType(app.cfg)
	if err != nil {
		return nil, err
	}

	users := userstore.New(app.db, password.NewBcryptHasher(0))
	if app.cfg.SeedDemoUsers {
		if err := users.Seed(context.Background(), userstore.DemoUsers); err != nil {
			_ = app.db.Close()
			return nil, err
		}
	}

	tokens, err := auth.NewTokenService(signingKey)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	checker, err := ipchecker.New(app.cfg.TrustedSubnet)
	if err != nil {
		_ = app.db.Close()
		return nil, err
	}

	app.loginLimiter = ratelimit.New(app.cfg.LoginRateLimitRPS, app.cfg.LoginRateLimitBurst)

	app.httpHandler = router.New(
		service.New(users, tokens, app.db, service.WithTokenTTL(app.cfg.TokenTTL.Duration)),
		auth.New(tokens, users),
		router.WithLoginRateLimiter(app.loginLimiter, checker),
		router.WithAllowedOrigins(app.cfg.CORSAllowedOrigins),
	)

	return app, nil
}

// Handler exposes the configured HTTP handler.
func (a *App) Handler() http.Handler {
	return a.httpHandler
}

// Run starts the HTTP server with graceful shutdown support.
// It listens for system signals and cleans up resources upon termination.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", a.cfg.RunAddr)
	if err != nil {
		return fmt.Errorf("in internal/app/app.go/Run(): error while `net.Listen()` calling: %w", err)
	}

	return a.Serve(ctx, listener)
}

// Serve handles requests on listener until ctx is done, then shuts the
// server down and closes the storage.
func (a *App) Serve(ctx context.Context, listener net.Listener) error {
	logger.Log.Infow("server running", "RunAddr", listener.Addr().String())

	server := &http.Server{
		Handler: a.httpHandler,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		logger.Log.Infoln("Received shutdown signal. Closing storage and exiting...")
		a.loginLimiter.Stop()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout.Duration)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		return a.db.Close()

	case err := <-serverErrCh:
		a.loginLimiter.Stop()
		if closeErr := a.db.Close(); closeErr != nil {
			logger.Log.Errorw("Error closing storage", zap.Error(closeErr))
		}
		return fmt.Errorf("server error: %w", err)
	}
}

// Close finalizes resources used by App such as logging.
func (a *App) Close() {
	if err := logger.Sync(); err != nil {
		fmt.Println("Logger sync error:", err)
	}
}

func getSigningKey(cfg *config.Config) ([]byte, error) {
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/getSigningKey(): error while `cfg.SigningKey()` calling: %w", err)
	}
	if len(key) > 0 {
		return key, nil
	}

	logger.Log.Warnln("TOKEN_SIGNING_SECRET_KEY is not set, issued tokens will not survive a restart")
	key = make([]byte, generatedSigningKeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("in internal/app/app.go/getSigningKey(): error while `rand.Read()` calling: %w", err)
	}

	return key, nil
}

func getAvailableStorageType(cfg *config.Config) int {
	if cfg.DatabaseDSN != "" {
		return models.StorageTypePostgresql
	}

	if cfg.DBFileName != "" {
		return models.StorageTypeFile
	}

	return models.StorageTypeMemory
}

func getStorageByType(cfg *config.Config) (storage.Storage, error) {
	switch getAvailableStorageType(cfg) {
	case models.StorageTypeUnknown:
		return nil, errors.New("unknown storage type")

	case models.StorageTypePostgresql:
		return postgresdb.New(
			context.Background(),
			cfg.DatabaseDSN,
			cfg.DBConnectionTimeout.Duration,
			cfg.MigrationsDir,
		)

	case models.StorageTypeFile:
		return jsondb.New(cfg.DBFileName)
	}

	return memorystorage.New()
}
