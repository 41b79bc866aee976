// Package config loads the favoritesctl client settings from defaults, the
// JSON file named by FAVORITES_CONFIG, .env and the environment, then flags.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	serverconfig "github.com/patric-chuzhbe/favsync/internal/config"
)

// Config holds the client settings.
type Config struct {
	ServerURL              string                `env:"FAVORITES_SERVER_URL" json:"server_url" validate:"url"`
	CachePath              string                `env:"FAVORITES_CACHE_PATH" json:"cache_path" validate:"required,filepath"`
	LogLevel               string                `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`
	RequestTimeout         serverconfig.Duration `env:"FAVORITES_REQUEST_TIMEOUT" json:"request_timeout"`
	PushDebounce           serverconfig.Duration `env:"FAVORITES_PUSH_DEBOUNCE" json:"push_debounce"`
	RetryInterval          serverconfig.Duration `env:"FAVORITES_RETRY_INTERVAL" json:"retry_interval"`
	LogoutOnNetworkFailure bool                  `env:"FAVORITES_LOGOUT_ON_NETWORK_FAILURE" json:"logout_on_network_failure"`
	DefaultFavorites       []string              `env:"FAVORITES_DEFAULTS" envSeparator:"," json:"default_favorites"`
}

// LoadDefaults populates c with the built-in defaults.
func (c *Config) LoadDefaults() {
	c.ServerURL = "http://localhost:8080"
	c.CachePath = defaultCachePath()
	c.LogLevel = "warn"
	c.RequestTimeout = serverconfig.Duration{Duration: 10 * time.Second}
	c.PushDebounce = serverconfig.Duration{Duration: 500 * time.Millisecond}
	c.RetryInterval = serverconfig.Duration{Duration: 5 * time.Second}
	c.LogoutOnNetworkFailure = false
	c.DefaultFavorites = []string{"Santiago de Chile"}
}

type InitOption func(*initOptions)

type initOptions struct {
	args []string
}

// WithArgs makes New parse args instead of os.Args[1:]. Pass an empty slice
// to skip flags.
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

// New returns the validated client configuration. Flags not recognised here
// are left in Args() for the command dispatcher.
func New(optionsProto ...InitOption) (*Config, []string, error) {
	options := &initOptions{
		args: os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	cfg := &Config{}
	cfg.LoadDefaults()

	if path := os.Getenv("FAVORITES_CONFIG"); path != "" {
		if err := cfg.loadJSON(path); err != nil {
			return nil, nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Unable to load .env file: %v", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, nil, fmt.Errorf("in internal/client/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	rest, err := cfg.parseFlags(options.args)
	if err != nil {
		return nil, nil, err
	}

	validate, err := serverconfig.NewValidator()
	if err != nil {
		return nil, nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, nil, err
	}

	return cfg, rest, nil
}

func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("in internal/client/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("in internal/client/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	return nil
}

func (c *Config) parseFlags(args []string) ([]string, error) {
	flags := flag.NewFlagSet("favoritesctl", flag.ContinueOnError)
	flags.StringVar(&c.ServerURL, "s", c.ServerURL, "favorites server base URL")
	flags.StringVar(&c.CachePath, "cache", c.CachePath, "path of the local SQLite cache")
	flags.StringVar(&c.LogLevel, "l", c.LogLevel, "logger level")
	flags.TextVar(&c.RequestTimeout, "timeout", c.RequestTimeout, "timeout of a single server request")
	flags.TextVar(&c.PushDebounce, "debounce", c.PushDebounce, "delay before local changes are pushed")
	flags.BoolVar(&c.LogoutOnNetworkFailure, "logout-on-network-failure", c.LogoutOnNetworkFailure,
		"drop the session when the server is unreachable during sync")

	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("in internal/client/config/config.go/parseFlags(): error while `flags.Parse()` calling: %w", err)
	}
	c.ServerURL = strings.TrimRight(c.ServerURL, "/")

	return flags.Args(), nil
}

func defaultCachePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "favorites.db"
	}

	return filepath.Join(dir, "favsync", "favorites.db")
}
