package config

import (
	"time"

	"github.com/shopspring/decimal"
)

// Storage backends selectable through server.storage.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database"`
	Auth     AuthConfig     `mapstructure:"auth" validate:"required"`
	Transfer TransferConfig `mapstructure:"transfer" validate:"required"`
	Expiry   ExpiryConfig   `mapstructure:"expiry" validate:"required"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	Storage         string        `mapstructure:"storage" validate:"required,oneof=postgres memory"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout" validate:"gt=0"`
}

// DatabaseConfig contains all database-related configuration settings.
// URL is only required when the postgres storage backend is selected.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"omitempty,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
}

// AuthConfig contains all authentication and authorization settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret" validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0,lte=10080"`
	BCryptCost           int    `mapstructure:"bcrypt_cost" validate:"gte=4,lte=31"`

	// BootstrapAdminUsername and BootstrapAdminPassword, when both set,
	// create an ADMIN account at startup if the username is still free.
	BootstrapAdminUsername string `mapstructure:"bootstrap_admin_username" validate:"omitempty,min=3,max=50"`
	BootstrapAdminPassword string `mapstructure:"bootstrap_admin_password" validate:"omitempty,min=6,max=72"`
}

// TransferConfig contains the limits applied by the transfer engine.
type TransferConfig struct {
	// MaxAmount is the inclusive upper bound of a single transfer, as a decimal string.
	MaxAmount string `mapstructure:"max_amount" validate:"required,numeric"`

	// LockTimeout bounds how long a transfer waits for card locks before
	// failing with a retryable conflict.
	LockTimeout time.Duration `mapstructure:"lock_timeout" validate:"gt=0"`
}

// ExpiryConfig controls how card expiry is evaluated.
type ExpiryConfig struct {
	// TimeZone is the IANA zone whose calendar date counts as "today".
	TimeZone string `mapstructure:"time_zone" validate:"required"`

	// SweepInterval enables the background job that marks past-expiry
	// cards EXPIRED. Zero disables it.
	SweepInterval  time.Duration `mapstructure:"sweep_interval" validate:"gte=0"`
	SweepBatchSize int           `mapstructure:"sweep_batch_size" validate:"gt=0"`
}

// MaxAmountDecimal returns the configured transfer limit. Load has already
// validated the string, so parse failures cannot happen for a loaded Config.
func (c TransferConfig) MaxAmountDecimal() decimal.Decimal {
	d, err := decimal.NewFromString(c.MaxAmount)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// Location returns the configured expiry time zone, or UTC if it cannot be loaded.
func (c ExpiryConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}
