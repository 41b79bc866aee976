// Package config loads the favorites server configuration. Sources are
// applied in increasing priority: defaults, the JSON file named by CONFIG,
// .env and the environment, then command-line flags.
package config

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds every server setting.
type Config struct {
	RunAddr               string   `env:"SERVER_ADDRESS" json:"server_address" validate:"hostname_port"`
	LogLevel              string   `env:"LOG_LEVEL" json:"log_level" validate:"loglevel"`
	DBFileName            string   `env:"FILE_STORAGE_PATH" json:"file_storage_path" validate:"filepath"`
	DatabaseDSN           string   `env:"DATABASE_DSN" json:"database_dsn"`
	DBConnectionTimeout   Duration `env:"DB_CONNECTION_TIMEOUT" json:"db_connection_timeout"`
	MigrationsDir         string   `env:"MIGRATIONS_DIR" json:"migrations_dir"`
	TokenSigningSecretKey string   `env:"TOKEN_SIGNING_SECRET_KEY" json:"token_signing_secret_key" validate:"omitempty,base64key"`
	TokenTTL              Duration `env:"TOKEN_TTL" json:"token_ttl"`
	SeedDemoUsers         bool     `env:"SEED_DEMO_USERS" json:"seed_demo_users"`
	LoginRateLimitRPS     float64  `env:"LOGIN_RATE_LIMIT_RPS" json:"login_rate_limit_rps" validate:"gte=0"`
	LoginRateLimitBurst   int      `env:"LOGIN_RATE_LIMIT_BURST" json:"login_rate_limit_burst" validate:"gte=0"`
	TrustedSubnet         string   `env:"TRUSTED_SUBNET" json:"trusted_subnet" validate:"omitempty,cidr"`
	CORSAllowedOrigins    []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," json:"cors_allowed_origins"`
	ShutdownTimeout       Duration `env:"SHUTDOWN_TIMEOUT" json:"shutdown_timeout"`
}

var defaultConfig = Config{
	RunAddr:             ":8080",
	LogLevel:            "info",
	DBConnectionTimeout: Duration{10 * time.Second},
	MigrationsDir:       "cmd/favoritesd/migrations",
	TokenTTL:            Duration{time.Hour},
	SeedDemoUsers:       true,
	LoginRateLimitRPS:   1,
	LoginRateLimitBurst: 5,
	CORSAllowedOrigins:  []string{"*"},
	ShutdownTimeout:     Duration{10 * time.Second},
}

func validateFilePath(fieldLevel validator.FieldLevel) bool {
	path := fieldLevel.Field().String()
	_, err := os.Stat(path)

	return err == nil || os.IsNotExist(err)
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[value]
}

func validateBase64Key(fieldLevel validator.FieldLevel) bool {
	key, err := base64.URLEncoding.DecodeString(fieldLevel.Field().String())

	return err == nil && len(key) >= 32
}

// NewValidator returns a validator aware of the project rules
// "loglevel", "filepath" and "base64key".
func NewValidator() (*validator.Validate, error) {
	validate := validator.New()

	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return nil, err
	}
	if err := validate.RegisterValidation("filepath", validateFilePath); err != nil {
		return nil, err
	}
	if err := validate.RegisterValidation("base64key", validateBase64Key); err != nil {
		return nil, err
	}

	return validate, nil
}

type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
}

// WithDisableFlagsParsing skips command-line flags, for tests.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// New resolves the configuration from every source and validates it.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		disableFlagsParsing: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	values := &Config{}
	applyDefaults(values, defaultConfig)

	if path := os.Getenv("CONFIG"); path != "" {
		if err := values.loadJSON(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("Unable to load .env file: %v", err)
	}

	if err := env.Parse(values); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	if !options.disableFlagsParsing {
		if err := values.parseFlags(os.Args[1:]); err != nil {
			return nil, err
		}
	}

	validate, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := validate.Struct(values); err != nil {
		return nil, err
	}

	return values, nil
}

// SigningKey decodes TokenSigningSecretKey. An empty key yields nil.
func (c *Config) SigningKey() ([]byte, error) {
	if c.TokenSigningSecretKey == "" {
		return nil, nil
	}

	return base64.URLEncoding.DecodeString(c.TokenSigningSecretKey)
}

func applyDefaults(values *Config, defaults Config) {
	*values = defaults
	values.CORSAllowedOrigins = append([]string(nil), defaults.CORSAllowedOrigins...)
}

func (c *Config) loadJSON(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `os.ReadFile()` calling: %w", err)
	}

	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("in internal/config/config.go/loadJSON(): error while `json.Unmarshal()` calling: %w", err)
	}

	return nil
}

func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	flags.StringVar(&c.RunAddr, "a", c.RunAddr, "address and port to run server")
	flags.StringVar(&c.LogLevel, "l", c.LogLevel, "logger level")
	flags.StringVar(&c.DBFileName, "f", c.DBFileName, "JSON file name with database")
	flags.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "A string with the database connection details")
	flags.StringVar(&c.TokenSigningSecretKey, "k", c.TokenSigningSecretKey, "base64 URL encoded token signing key")
	flags.StringVar(&c.TrustedSubnet, "t", c.TrustedSubnet, "trusted proxy subnet in CIDR notation")
	flags.TextVar(&c.TokenTTL, "token-ttl", c.TokenTTL, "session token lifetime")
	flags.BoolVar(&c.SeedDemoUsers, "seed", c.SeedDemoUsers, "create the demo users on start")
	origins := flags.String("cors", strings.Join(c.CORSAllowedOrigins, ","), "comma separated allowed CORS origins")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("in internal/config/config.go/parseFlags(): error while `flags.Parse()` calling: %w", err)
	}

	c.CORSAllowedOrigins = splitList(*origins)

	return nil
}

func splitList(value string) []string {
	result := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			result = append(result, item)
		}
	}

	return result
}
