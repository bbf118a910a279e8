// Package providers assembles a social.Registry from configuration.
package providers

import (
	"errors"

	"github.com/goliatone/go-bulwark/social"
	"github.com/goliatone/go-bulwark/social/providers/github"
	"github.com/goliatone/go-bulwark/social/providers/google"
	"github.com/goliatone/go-bulwark/social/providers/microsoft"
)

// Config holds provider credentials. Providers with empty credentials
// are left out of the registry.
type Config struct {
	GoogleClientID    string
	MicrosoftClientID string
	MicrosoftTenantID string
	GitHubAppName     string
}

// NewRegistry builds a registry with every configured provider.
func NewRegistry(cfg Config) (*social.Registry, error) {
	registry := social.NewRegistry()
	var errs []error

	if cfg.GoogleClientID != "" {
		v, err := google.New(cfg.GoogleClientID)
		if err != nil {
			errs = append(errs, err)
		} else {
			registry.Register(v)
		}
	}

	if cfg.MicrosoftClientID != "" {
		v, err := microsoft.New(cfg.MicrosoftClientID, cfg.MicrosoftTenantID)
		if err != nil {
			errs = append(errs, err)
		} else {
			registry.Register(v)
		}
	}

	if cfg.GitHubAppName != "" {
		v, err := github.New(cfg.GitHubAppName)
		if err != nil {
			errs = append(errs, err)
		} else {
			registry.Register(v)
		}
	}

	if err := errors.Join(errs...); err != nil {
		registry.Close()
		return nil, err
	}
	return registry, nil
}
