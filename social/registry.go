package social

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"github.com/goliatone/go-bulwark"
)

const (
	ProviderGoogle    = "google"
	ProviderMicrosoft = "microsoft"
	ProviderGitHub    = "github"
)

// Identity is a validated assertion.
type Identity = bulwark.ExternalIdentity

// Validator verifies the assertions issued by one provider.
type Validator interface {
	Provider() string
	Validate(ctx context.Context, assertion string) (*Identity, error)
}

// Registry dispatches assertions to the validator of their provider.
type Registry struct {
	mu         sync.RWMutex
	validators map[string]Validator
}

var _ bulwark.SocialValidator = (*Registry)(nil)

func NewRegistry(validators ...Validator) *Registry {
	r := &Registry{validators: map[string]Validator{}}
	for _, v := range validators {
		r.Register(v)
	}
	return r
}

// Register adds or replaces the validator for its provider.
func (r *Registry) Register(v Validator) *Registry {
	if v == nil || v.Provider() == "" {
		return r
	}
	r.mu.Lock()
	r.validators[v.Provider()] = v
	r.mu.Unlock()
	return r
}

// Providers lists the configured providers.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.validators))
	for name := range r.validators {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Validator returns the validator of provider.
func (r *Registry) Validator(provider string) (Validator, error) {
	r.mu.RLock()
	v, ok := r.validators[provider]
	r.mu.RUnlock()
	if !ok {
		return nil, bulwark.Fail(ErrProviderNotConfigured, nil, map[string]any{"provider": provider})
	}
	return v, nil
}

// Validate verifies assertion with the validator of provider. Any
// validator failure is reported as ErrInvalidAssertion.
func (r *Registry) Validate(ctx context.Context, provider, assertion string) (*Identity, error) {
	v, err := r.Validator(provider)
	if err != nil {
		return nil, err
	}

	if assertion == "" {
		return nil, InvalidAssertion(provider, "empty assertion", nil)
	}

	identity, err := v.Validate(ctx, assertion)
	if err != nil {
		if bulwark.IsKind(err, ErrInvalidAssertion) {
			return nil, err
		}
		return nil, InvalidAssertion(provider, "validation failed", err)
	}

	if identity == nil || identity.ExternalID == "" {
		return nil, InvalidAssertion(provider, "missing subject", nil)
	}
	identity.Provider = provider
	return identity, nil
}

// Close releases validator resources such as background key refresh.
func (r *Registry) Close() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var errs []error
	for _, v := range r.validators {
		if c, ok := v.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
