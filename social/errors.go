package social

import (
	"github.com/goliatone/go-bulwark"
)

var (
	// ErrProviderNotConfigured is returned for a provider without credentials.
	ErrProviderNotConfigured = bulwark.ErrProviderNotConfigured
	// ErrInvalidAssertion is returned when an assertion fails verification.
	ErrInvalidAssertion = bulwark.ErrInvalidAssertion
)

// InvalidAssertion returns an ErrInvalidAssertion error for provider.
func InvalidAssertion(provider, reason string, source error) error {
	return bulwark.Fail(ErrInvalidAssertion, source, map[string]any{
		"provider": provider,
		"reason":   reason,
	})
}
