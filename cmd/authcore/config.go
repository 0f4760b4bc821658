package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nkiryanov/authcore/internal/logger"
)

const (
	defaultListenAddr    = "localhost:8000"
	defaultLoggingLevel  = logger.LevelInfo
	defaultEnvironment   = logger.EnvProduction
	defaultAccessTTL     = 15 * time.Minute
	defaultRefreshTTL    = 7 * 24 * time.Hour
	defaultRateWindow    = time.Minute
	defaultRateCeiling   = 100
	defaultLoginAttempts = 5
	defaultLoginLockout  = 15 * time.Minute
	defaultCSRFValidity  = 24 * time.Hour
	defaultSweepInterval = 5 * time.Minute
)

type Config struct {
	// Default logging level
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// Environment: dev logs as text, prod as JSON
	Environment string `yaml:"environment" validate:"oneof=dev prod"`

	// Address on which HTTP server will be run
	ListenAddr string `yaml:"listen_address" validate:"required"`

	// Address on which gRPC server will be run
	// Not started if empty
	GRPCAddr string `yaml:"grpc_address"`

	// Database to keep users in
	// Users kept in memory if empty
	DatabaseDSN string `yaml:"database_uri"`

	// Secret key to sign tokens, generate one with cmd/gensecret
	// Not read from config file
	SecretKey string `yaml:"-" validate:"min=32"`

	// Token lifetimes
	AccessTTL  time.Duration `yaml:"access_ttl" validate:"gte=1s"`
	RefreshTTL time.Duration `yaml:"refresh_ttl" validate:"gtfield=AccessTTL"`

	// Requests allowed per client address in a window
	RateLimitWindow  time.Duration `yaml:"rate_limit_window" validate:"gt=0"`
	RateLimitCeiling int           `yaml:"rate_limit_ceiling" validate:"gt=0"`

	// Failed logins before lockout and lockout duration
	LoginMaxAttempts int           `yaml:"login_max_attempts" validate:"gt=0"`
	LoginLockout     time.Duration `yaml:"login_lockout" validate:"gt=0"`

	CSRFValidity time.Duration `yaml:"csrf_validity" validate:"gt=0"`

	// How often expired refresh tokens, rate windows, lockouts and csrf tokens are dropped
	SweepInterval time.Duration `yaml:"sweep_interval" validate:"gt=0"`

	// Origins allowed to call the service, reloaded when config file changes
	AllowedOrigins []string `yaml:"allowed_origins" validate:"dive,url"`

	// Mark auth cookies Secure, has to be set when served over https
	SecureCookies bool `yaml:"secure_cookies"`

	// YAML config file
	ConfigPath string `yaml:"-"`
}

func NewConfig() *Config {
	return &Config{
		LogLevel:         defaultLoggingLevel,
		Environment:      defaultEnvironment,
		ListenAddr:       defaultListenAddr,
		AccessTTL:        defaultAccessTTL,
		RefreshTTL:       defaultRefreshTTL,
		RateLimitWindow:  defaultRateWindow,
		RateLimitCeiling: defaultRateCeiling,
		LoginMaxAttempts: defaultLoginAttempts,
		LoginLockout:     defaultLoginLockout,
		CSRFValidity:     defaultCSRFValidity,
		SweepInterval:    defaultSweepInterval,
	}
}

// Load variable from '.env' file (should be located at working directory)
func (c *Config) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, ".env"))

	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

func (c *Config) LoadEnv(getenv func(string) string) error {
	setString := func(o *string) func(value string) error {
		return func(value string) error {
			*o = value
			return nil
		}
	}
	setDuration := func(o *time.Duration) func(value string) error {
		return func(value string) (err error) {
			*o, err = time.ParseDuration(value)
			return err
		}
	}
	setInt := func(o *int) func(value string) error {
		return func(value string) (err error) {
			*o, err = strconv.Atoi(value)
			return err
		}
	}
	setBool := func(o *bool) func(value string) error {
		return func(value string) (err error) {
			*o, err = strconv.ParseBool(value)
			return err
		}
	}
	setList := func(o *[]string) func(value string) error {
		return func(value string) error {
			*o = splitList(value)
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"RUN_ADDRESS":        setString(&c.ListenAddr),
		"GRPC_ADDRESS":       setString(&c.GRPCAddr),
		"DATABASE_URI":       setString(&c.DatabaseDSN),
		"SECRET_KEY":         setString(&c.SecretKey),
		"LOG_LEVEL":          setString(&c.LogLevel),
		"ENVIRONMENT":        setString(&c.Environment),
		"CONFIG_PATH":        setString(&c.ConfigPath),
		"ACCESS_TTL":         setDuration(&c.AccessTTL),
		"REFRESH_TTL":        setDuration(&c.RefreshTTL),
		"RATE_LIMIT_WINDOW":  setDuration(&c.RateLimitWindow),
		"RATE_LIMIT_CEILING": setInt(&c.RateLimitCeiling),
		"LOGIN_MAX_ATTEMPTS": setInt(&c.LoginMaxAttempts),
		"LOGIN_LOCKOUT":      setDuration(&c.LoginLockout),
		"CSRF_VALIDITY":      setDuration(&c.CSRFValidity),
		"SWEEP_INTERVAL":     setDuration(&c.SweepInterval),
		"ALLOWED_ORIGINS":    setList(&c.AllowedOrigins),
		"SECURE_COOKIES":     setBool(&c.SecureCookies),
	}

	var errs []error
	for key, parseFn := range envMap {
		value := getenv(key)
		if value == "" {
			continue
		}
		if err := parseFn(value); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s value %q. Err: %w", key, value, err))
		}
	}

	return errors.Join(errs...)
}

// LoadYAML overrides options present in the file
func (c *Config) LoadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error while reading config file. Err: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error while parsing config file %s. Err: %w", path, err)
	}

	return nil
}

func (c *Config) ParseFlags(args []string) error {
	fs := pflag.NewFlagSet("authcore", pflag.ContinueOnError)

	fs.StringVarP(&c.ListenAddr, "address", "a", c.ListenAddr, "Server listen address")
	fs.StringVarP(&c.GRPCAddr, "grpc-address", "g", c.GRPCAddr, "gRPC server listen address, disabled if empty")
	fs.StringVarP(&c.DatabaseDSN, "database", "d", c.DatabaseDSN, "Database connection string, users kept in memory if empty")
	fs.StringVarP(&c.SecretKey, "secret-key", "s", c.SecretKey, "Secret key to sign tokens, at least 32 bytes")
	fs.StringVarP(&c.LogLevel, "log-level", "l", c.LogLevel, "Logging level (debug, info, warn, error)")
	fs.StringVarP(&c.Environment, "environment", "e", c.Environment, "Environment (dev, prod)")
	fs.StringVarP(&c.ConfigPath, "config", "c", c.ConfigPath, "YAML config file, watched for allowed origins changes")
	fs.DurationVar(&c.AccessTTL, "access-ttl", c.AccessTTL, "Access token lifetime")
	fs.DurationVar(&c.RefreshTTL, "refresh-ttl", c.RefreshTTL, "Refresh token lifetime")
	fs.DurationVar(&c.RateLimitWindow, "rate-limit-window", c.RateLimitWindow, "Rate limit window")
	fs.IntVar(&c.RateLimitCeiling, "rate-limit-ceiling", c.RateLimitCeiling, "Requests allowed per client in rate limit window")
	fs.IntVar(&c.LoginMaxAttempts, "login-max-attempts", c.LoginMaxAttempts, "Failed logins before lockout")
	fs.DurationVar(&c.LoginLockout, "login-lockout", c.LoginLockout, "Lockout duration")
	fs.DurationVar(&c.CSRFValidity, "csrf-validity", c.CSRFValidity, "CSRF token lifetime")
	fs.DurationVar(&c.SweepInterval, "sweep-interval", c.SweepInterval, "Interval to drop expired state")
	fs.StringSliceVarP(&c.AllowedOrigins, "origin", "o", c.AllowedOrigins, "Allowed origin, may be repeated")
	fs.BoolVar(&c.SecureCookies, "secure-cookies", c.SecureCookies, "Mark auth cookies Secure")

	return fs.Parse(args)
}

func (c *Config) Validate() error {
	return validator.New(validator.WithRequiredStructEnabled()).Struct(c)
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
