// Package config loads bulwark settings from the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-bulwark/social/providers"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	MagicCodeExpireInMinutes       int      `env:"MAGIC_CODE_EXPIRE_IN_MINUTES" envDefault:"10"`
	AccessTokenExpireInSeconds     int      `env:"ACCESS_TOKEN_EXPIRE_IN_SECONDS" envDefault:"1800"`
	RefreshTokenExpireInSeconds    int      `env:"REFRESH_TOKEN_EXPIRE_IN_SECONDS" envDefault:"86400"`
	VerificationTokenExpireInHours int      `env:"VERIFICATION_TOKEN_EXPIRE_IN_HOURS" envDefault:"72"`
	ForgotTokenExpireInHours       int      `env:"FORGOT_TOKEN_EXPIRE_IN_HOURS" envDefault:"24"`
	TokenIssuer                    string   `env:"TOKEN_ISSUER" envDefault:"bulwark"`
	TokenAudience                  []string `env:"TOKEN_AUDIENCE" envDefault:"bulwark" envSeparator:","`

	GoogleClientID    string `env:"GOOGLE_CLIENT_ID"`
	MicrosoftClientID string `env:"MICROSOFT_CLIENT_ID"`
	MicrosoftTenantID string `env:"MICROSOFT_TENANT_ID"`
	GitHubAppName     string `env:"GITHUB_APP_NAME"`

	// EnableSMTP is exposed for delivery integrations.
	EnableSMTP bool `env:"ENABLE_SMTP" envDefault:"false"`

	DBDriver     string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBConnection string `env:"DB_CONNECTION" envDefault:"file:bulwark.db?cache=shared"`

	BcryptCost        int `env:"BCRYPT_COST" envDefault:"12"`
	PasswordMinLength int `env:"PASSWORD_MIN_LENGTH" envDefault:"8"`
	PasswordMaxLength int `env:"PASSWORD_MAX_LENGTH" envDefault:"72"`

	SweepIntervalInSeconds int `env:"SWEEP_INTERVAL_IN_SECONDS" envDefault:"300"`
	// KeyRetentionInSeconds defaults to the refresh token lifetime when zero.
	KeyRetentionInSeconds  int `env:"KEY_RETENTION_IN_SECONDS" envDefault:"0"`
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses the given environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.MagicCodeExpireInMinutes, validation.Required, validation.Min(1)),
		validation.Field(&c.AccessTokenExpireInSeconds, validation.Required, validation.Min(1)),
		validation.Field(&c.RefreshTokenExpireInSeconds, validation.Required, validation.Min(c.AccessTokenExpireInSeconds).
			Error("must not be shorter than the access token lifetime")),
		validation.Field(&c.VerificationTokenExpireInHours, validation.Required, validation.Min(1)),
		validation.Field(&c.ForgotTokenExpireInHours, validation.Required, validation.Min(1)),
		validation.Field(&c.TokenIssuer, validation.Required),
		validation.Field(&c.TokenAudience, validation.Required),
		validation.Field(&c.DBDriver, validation.Required, validation.In(DriverSQLite, DriverPostgres)),
		validation.Field(&c.DBConnection, validation.Required),
		validation.Field(&c.BcryptCost, validation.Required, validation.Min(4), validation.Max(31)),
		validation.Field(&c.PasswordMinLength, validation.Required, validation.Min(1)),
		validation.Field(&c.PasswordMaxLength, validation.Required, validation.Min(c.PasswordMinLength), validation.Max(72)),
		validation.Field(&c.SweepIntervalInSeconds, validation.Required, validation.Min(1)),
		validation.Field(&c.KeyRetentionInSeconds, validation.Min(0)),
	)
}

func (c Config) MagicCodeTTL() time.Duration {
	return time.Duration(c.MagicCodeExpireInMinutes) * time.Minute
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenExpireInSeconds) * time.Second
}

func (c Config) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenExpireInSeconds) * time.Second
}

func (c Config) VerificationTTL() time.Duration {
	return time.Duration(c.VerificationTokenExpireInHours) * time.Hour
}

func (c Config) ForgotTTL() time.Duration {
	return time.Duration(c.ForgotTokenExpireInHours) * time.Hour
}

func (c Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalInSeconds) * time.Second
}

// KeyRetention is how long a superseded signing key keeps verifying tokens.
func (c Config) KeyRetention() time.Duration {
	if c.KeyRetentionInSeconds == 0 {
		return c.RefreshTokenTTL()
	}
	return time.Duration(c.KeyRetentionInSeconds) * time.Second
}

func (c Config) SocialConfig() providers.Config {
	return providers.Config{
		GoogleClientID:    c.GoogleClientID,
		MicrosoftClientID: c.MicrosoftClientID,
		MicrosoftTenantID: c.MicrosoftTenantID,
		GitHubAppName:     c.GitHubAppName,
	}
}
