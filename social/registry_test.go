package social_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-bulwark"
	"github.com/goliatone/go-bulwark/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	provider string
	identity *social.Identity
	err      error
	closed   bool
}

func (s *stubValidator) Provider() string { return s.provider }

func (s *stubValidator) Validate(_ context.Context, _ string) (*social.Identity, error) {
	return s.identity, s.err
}

func (s *stubValidator) Close() error {
	s.closed = true
	return nil
}

func TestRegistryValidate(t *testing.T) {
	ctx := context.Background()
	good := &stubValidator{
		provider: social.ProviderGoogle,
		identity: &social.Identity{ExternalID: "abc", Email: "a@example.com", EmailVerified: true},
	}
	broken := &stubValidator{provider: social.ProviderGitHub, err: errors.New("boom")}
	registry := social.NewRegistry(good, broken)

	assert.Equal(t, []string{social.ProviderGitHub, social.ProviderGoogle}, registry.Providers())

	identity, err := registry.Validate(ctx, social.ProviderGoogle, "assertion")
	require.NoError(t, err)
	assert.Equal(t, social.ProviderGoogle, identity.Provider)
	assert.Equal(t, "abc", identity.ExternalID)

	_, err = registry.Validate(ctx, social.ProviderMicrosoft, "assertion")
	assert.True(t, bulwark.IsKind(err, social.ErrProviderNotConfigured))

	_, err = registry.Validate(ctx, social.ProviderGitHub, "assertion")
	assert.True(t, bulwark.IsKind(err, social.ErrInvalidAssertion))

	_, err = registry.Validate(ctx, social.ProviderGoogle, "")
	assert.True(t, bulwark.IsKind(err, social.ErrInvalidAssertion))

	require.NoError(t, registry.Close())
	assert.True(t, good.closed)
	assert.True(t, broken.closed)
}

func TestProviderErrorMessage(t *testing.T) {
	err := &social.ProviderError{Provider: "github", Operation: "user", Status: 502}
	assert.Equal(t, "github user failed with status 502", err.Error())

	inner := errors.New("dial tcp")
	err = &social.ProviderError{Provider: "github", Err: inner}
	assert.ErrorIs(t, err, inner)
}
