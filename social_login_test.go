package bulwark_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-bulwark"
	"github.com/goliatone/go-bulwark/social"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIDValidator struct {
	mu         sync.Mutex
	identities map[string]*social.Identity
}

func (f *fakeIDValidator) Provider() string { return social.ProviderGoogle }

func (f *fakeIDValidator) Validate(_ context.Context, assertion string) (*social.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.identities[assertion]
	if !ok {
		return nil, social.InvalidAssertion(social.ProviderGoogle, "unknown assertion", nil)
	}
	copied := *identity
	return &copied, nil
}

func newSocialLogin(s *stack) *bulwark.SocialLogin {
	validator := &fakeIDValidator{identities: map[string]*social.Identity{
		"new-user":   {ExternalID: "g-1", Email: "new@example.com", EmailVerified: true},
		"existing":   {ExternalID: "g-2", Email: "existing@example.com", EmailVerified: true},
		"unverified": {ExternalID: "g-3", Email: "unverified@example.com", EmailVerified: false},
		"hijack":     {ExternalID: "g-evil", Email: "existing@example.com", EmailVerified: true},
		"disabled":   {ExternalID: "g-4", Email: "disabled@example.com", EmailVerified: true},
	}}
	return bulwark.NewSocialLogin(s.directory, social.NewRegistry(validator), s.auth).
		WithActivitySink(s.activity).
		WithLogger(silentLogger{})
}

func TestSocialLoginProvisionsAndLinks(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	login := newSocialLogin(s)

	pair, err := login.Authenticate(ctx, social.ProviderGoogle, "new-user", "")
	require.NoError(t, err)
	require.NoError(t, s.auth.Acknowledge(ctx, *pair, "new@example.com", testDevice))

	account, err := s.directory.GetAccount(ctx, "new@example.com")
	require.NoError(t, err)
	assert.True(t, account.IsVerified)
	assert.True(t, account.HasSocialProvider(social.ProviderGoogle))

	_, err = s.auth.Authenticate(ctx, "new@example.com", testPassword, "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrAuthenticationFailed), "provisioned accounts have no usable password")

	_, err = login.Authenticate(ctx, social.ProviderGoogle, "new-user", "")
	assert.NoError(t, err, "second login reuses the link")
}

func TestSocialLoginExistingAccount(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	login := newSocialLogin(s)
	s.activeAccount(t, "existing@example.com")

	_, err := login.Authenticate(ctx, social.ProviderGoogle, "existing", "")
	require.NoError(t, err)

	_, err = login.Authenticate(ctx, social.ProviderGoogle, "hijack", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrAuthenticationFailed), "another subject cannot take over the link: %v", err)
}

func TestSocialLoginRejections(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	login := newSocialLogin(s)
	s.activeAccount(t, "disabled@example.com")
	require.NoError(t, s.directory.Disable(ctx, "disabled@example.com"))

	_, err := login.Authenticate(ctx, social.ProviderGitHub, "new-user", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrProviderNotConfigured), "got %v", err)

	_, err = login.Authenticate(ctx, social.ProviderGoogle, "forged", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrInvalidAssertion), "got %v", err)

	_, err = login.Authenticate(ctx, social.ProviderGoogle, "unverified", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrInvalidAssertion), "got %v", err)

	_, err = login.Authenticate(ctx, social.ProviderGoogle, "disabled", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrAuthenticationFailed), "got %v", err)
}

func TestSocialLoginWithoutProvisioning(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	login := newSocialLogin(s).WithProvisioning(false)

	_, err := login.Authenticate(ctx, social.ProviderGoogle, "new-user", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrAuthenticationFailed))

	_, err = s.directory.GetAccount(ctx, "new@example.com")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrAccountNotFound))
}

func TestSocialLoginRejectsUsernameOnlyIdentity(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "victim@example.com")

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	given := keyfunc.NewGiven(map[string]keyfunc.GivenKey{
		"k1": keyfunc.NewGivenCustom(&key.PublicKey, keyfunc.GivenKeyOptions{
			Algorithm: jwt.SigningMethodRS256.Alg(),
		}),
	})

	validator, err := social.NewIDTokenValidator(social.IDTokenConfig{
		Provider:         social.ProviderMicrosoft,
		ClientID:         "client-123",
		UsernameFallback: true,
	})
	require.NoError(t, err)
	validator.WithKeyfunc(given.Keyfunc)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":                "https://login.microsoftonline.com/attacker-tenant/v2.0",
		"aud":                "client-123",
		"sub":                "attacker-subject",
		"preferred_username": "victim@example.com",
		"exp":                time.Now().Add(time.Hour).Unix(),
	})
	token.Header["kid"] = "k1"
	assertion, err := token.SignedString(key)
	require.NoError(t, err)

	login := bulwark.NewSocialLogin(s.directory, social.NewRegistry(validator), s.auth).
		WithLogger(silentLogger{})
	_, err = login.Authenticate(ctx, social.ProviderMicrosoft, assertion, "")
	assert.True(t, bulwark.IsKind(err, social.ErrInvalidAssertion), "got %v", err)

	account, err := s.directory.GetAccount(ctx, "victim@example.com")
	require.NoError(t, err)
	assert.False(t, account.HasSocialProvider(social.ProviderMicrosoft))
}
