package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"github.com/curiomarket/storefront/pkg/env"
)

const EnvPrefix = "CURIO"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// Storage backends accepted by StorageConfig.Backend.
const (
	StorageBackendFile   = "file"
	StorageBackendSQLite = "sqlite"
	StorageBackendRedis  = "redis"
)

type Config struct {
	App          AppConfig
	Storage      StorageConfig
	Redis        RedisConfig
	OrderService OrderServiceConfig
	Square       SquareConfig
	Checkout     CheckoutConfig
	Identity     IdentityConfig
	Listener     ListenerConfig
	Sync         SyncConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Storage.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	cfg.Identity.expandPaths()
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CURIO_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"CURIO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CURIO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type StorageConfig struct {
	Backend    string `envconfig:"CURIO_STORAGE_BACKEND" default:"file"`
	FilePath   string `envconfig:"CURIO_STORAGE_FILE_PATH" default:"~/.curio/cart.json"`
	SQLitePath string `envconfig:"CURIO_STORAGE_SQLITE_PATH" default:"~/.curio/storefront.db"`
}

func (s *StorageConfig) normalize() error {
	backend := strings.ToLower(strings.TrimSpace(s.Backend))
	switch backend {
	case StorageBackendFile, StorageBackendSQLite, StorageBackendRedis:
		s.Backend = backend
	default:
		return fmt.Errorf("storage backend must be one of file, sqlite, redis (got %q)", s.Backend)
	}
	s.FilePath = env.ExpandHome(s.FilePath)
	s.SQLitePath = env.ExpandHome(s.SQLitePath)
	return nil
}

type RedisConfig struct {
	URL          string        `envconfig:"CURIO_REDIS_URL"`
	Address      string        `envconfig:"CURIO_REDIS_ADDR"`
	Password     string        `envconfig:"CURIO_REDIS_PASSWORD"`
	DB           int           `envconfig:"CURIO_REDIS_DB" default:"0"`
	DialTimeout  time.Duration `envconfig:"CURIO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CURIO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CURIO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type OrderServiceConfig struct {
	BaseURL string        `envconfig:"CURIO_ORDER_SERVICE_URL" required:"true"`
	Timeout time.Duration `envconfig:"CURIO_ORDER_SERVICE_TIMEOUT" default:"15s"`
}

type SquareConfig struct {
	AccessToken string `envconfig:"CURIO_SQUARE_ACCESS_TOKEN"`
	Env         string `envconfig:"CURIO_SQUARE_ENV" default:"sandbox"`
	LocationID  string `envconfig:"CURIO_SQUARE_LOCATION_ID"`
}

// Environment returns the normalized Square environment (sandbox/production).
func (s SquareConfig) Environment() string {
	environment := strings.TrimSpace(strings.ToLower(s.Env))
	if environment == "" {
		return "sandbox"
	}
	return environment
}

type CheckoutConfig struct {
	SettlementCurrency string        `envconfig:"CURIO_CHECKOUT_CURRENCY" default:"USD"`
	ExchangeRate       string        `envconfig:"CURIO_CHECKOUT_EXCHANGE_RATE" default:"1"`
	MinorUnitScale     int32         `envconfig:"CURIO_CHECKOUT_MINOR_UNIT_SCALE" default:"2"`
	RedirectDelay      time.Duration `envconfig:"CURIO_CHECKOUT_REDIRECT_DELAY" default:"3s"`
}

func (c *CheckoutConfig) validate() error {
	rate, err := c.Rate()
	if err != nil {
		return err
	}
	if rate.Sign() <= 0 {
		return fmt.Errorf("checkout exchange rate must be positive (got %s)", c.ExchangeRate)
	}
	if c.MinorUnitScale < 0 {
		return fmt.Errorf("checkout minor unit scale must be non-negative (got %d)", c.MinorUnitScale)
	}
	c.SettlementCurrency = strings.ToUpper(strings.TrimSpace(c.SettlementCurrency))
	if c.SettlementCurrency == "" {
		return fmt.Errorf("checkout settlement currency is required")
	}
	return nil
}

// Rate parses the configured exchange rate.
func (c CheckoutConfig) Rate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(c.ExchangeRate))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing checkout exchange rate: %w", err)
	}
	return rate, nil
}

type IdentityConfig struct {
	SessionTokenPath string `envconfig:"CURIO_IDENTITY_SESSION_TOKEN_PATH" default:"~/.curio/session.jwt"`
	ProfilePath      string `envconfig:"CURIO_IDENTITY_PROFILE_PATH" default:"~/.curio/profile.json"`
}

func (i *IdentityConfig) expandPaths() {
	i.SessionTokenPath = env.ExpandHome(i.SessionTokenPath)
	i.ProfilePath = env.ExpandHome(i.ProfilePath)
}

type ListenerConfig struct {
	Addr string `envconfig:"CURIO_LISTENER_ADDR" default:"127.0.0.1:8765"`
}

// ReturnURL builds the payment-return URL served by the local listener.
func (l ListenerConfig) ReturnURL() string {
	return fmt.Sprintf("http://%s/payments/return", l.Addr)
}

type SyncConfig struct {
	Channel      string        `envconfig:"CURIO_SYNC_CHANNEL" default:"curio:cart:changed"`
	PollInterval time.Duration `envconfig:"CURIO_SYNC_POLL_INTERVAL" default:"2s"`
}
