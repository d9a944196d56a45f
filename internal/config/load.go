package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. BANKCARDS_SERVER_PORT.
const EnvPrefix = "BANKCARDS"

// setDefaults registers a default for every key so that AutomaticEnv can
// resolve environment overrides during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.storage", StoragePostgres)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.request_timeout", "30s")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "5m")
	v.SetDefault("database.run_migrations", true)

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_lifetime_minutes", 60)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("auth.bootstrap_admin_username", "")
	v.SetDefault("auth.bootstrap_admin_password", "")

	v.SetDefault("transfer.max_amount", "1000000")
	v.SetDefault("transfer.lock_timeout", "5s")

	v.SetDefault("expiry.time_zone", "UTC")
	v.SetDefault("expiry.sweep_interval", "0s")
	v.SetDefault("expiry.sweep_batch_size", 100)
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks struct tags plus the rules that span several fields.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	if c.Server.Storage == StoragePostgres && c.Database.URL == "" {
		return errors.New("config validation failed: database.url is required for postgres storage")
	}

	if (c.Auth.BootstrapAdminUsername == "") != (c.Auth.BootstrapAdminPassword == "") {
		return errors.New("config validation failed: auth.bootstrap_admin_username and " +
			"auth.bootstrap_admin_password must be set together")
	}

	if d, err := decimal.NewFromString(c.Transfer.MaxAmount); err != nil || !d.IsPositive() {
		return fmt.Errorf("config validation failed: transfer.max_amount must be a positive decimal, got %q",
			c.Transfer.MaxAmount)
	}

	if _, err := time.LoadLocation(c.Expiry.TimeZone); err != nil {
		return fmt.Errorf("config validation failed: expiry.time_zone: %w", err)
	}

	return nil
}
