package bulwark_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goliatone/go-bulwark"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockAuthorization struct {
	mock.Mock
}

func (m *mockAuthorization) ReadAccountRoles(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	args := m.Called(ctx, accountID)
	roles, _ := args.Get(0).([]string)
	return roles, args.Error(1)
}

func (m *mockAuthorization) ReadAccountPermissions(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	args := m.Called(ctx, accountID)
	permissions, _ := args.Get(0).([]string)
	return permissions, args.Error(1)
}

func TestAuthenticateAcknowledgeValidate(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	account := s.activeAccount(t, "flow@example.com")
	require.NoError(t, s.grants.GrantRoles(ctx, account.ID, "admin", "editor"))
	require.NoError(t, s.grants.GrantPermissions(ctx, account.ID, "accounts:write"))

	pair, err := s.auth.Authenticate(ctx, "flow@example.com", testPassword, "")
	require.NoError(t, err)

	_, err = s.auth.ValidateAccessToken(ctx, "flow@example.com", pair.AccessToken, testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged), "issued tokens are not trusted before acknowledgement")

	require.NoError(t, s.auth.Acknowledge(ctx, *pair, "flow@example.com", testDevice))

	claims, err := s.auth.ValidateAccessToken(ctx, "flow@example.com", pair.AccessToken, testDevice)
	require.NoError(t, err)
	assert.Equal(t, account.ID.String(), claims.Subject)
	assert.Equal(t, []string{"admin", "editor"}, claims.Roles)
	assert.Equal(t, []string{"accounts:write"}, claims.Permissions)

	_, err = s.auth.ValidateAccessToken(ctx, "flow@example.com", pair.AccessToken, "device-b")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged), "acknowledgement is per device")

	assert.Contains(t, s.activity.Types(), bulwark.ActivityEventAuthenticated)
	assert.Contains(t, s.activity.Types(), bulwark.ActivityEventAcknowledged)
}

func TestAuthenticateFailuresAreUniform(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "active@example.com")

	_, err := s.directory.Create(ctx, "pending@example.com", testPassword)
	require.NoError(t, err)

	s.activeAccount(t, "disabled@example.com")
	require.NoError(t, s.directory.Disable(ctx, "disabled@example.com"))

	s.activeAccount(t, "deleted@example.com")
	require.NoError(t, s.directory.Delete(ctx, "deleted@example.com"))

	tests := []struct {
		name     string
		email    string
		password string
	}{
		{name: "wrong password", email: "active@example.com", password: "WrongHorse9!"},
		{name: "unknown account", email: "nobody@example.com", password: testPassword},
		{name: "invalid email", email: "nobody", password: testPassword},
		{name: "not verified", email: "pending@example.com", password: testPassword},
		{name: "disabled", email: "disabled@example.com", password: testPassword},
		{name: "deleted", email: "deleted@example.com", password: testPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.auth.Authenticate(ctx, tt.email, tt.password, "")
			assert.True(t, bulwark.IsKind(err, bulwark.ErrAuthenticationFailed), "got %v", err)
		})
	}

	_, err = s.auth.Authenticate(ctx, "active@example.com", testPassword, "missing")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrUnknownTokenizer))
}

func TestAuthenticateStorageFailureIsAuthenticationFailed(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "authz@example.com")

	authz := &mockAuthorization{}
	authz.On("ReadAccountRoles", mock.Anything, mock.Anything).Return(nil, errors.New("authority down"))

	auth := bulwark.NewAuthenticator(s.directory, s.tokens, s.repo.Tokens(), authz).WithLogger(silentLogger{})
	_, err := auth.Authenticate(ctx, "authz@example.com", testPassword, "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrAuthenticationFailed), "got %v", err)
	authz.AssertExpectations(t)
}

func TestAcknowledgeValidation(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "ack@example.com")
	other := s.activeAccount(t, "other@example.com")

	first, err := s.auth.Authenticate(ctx, "ack@example.com", testPassword, "")
	require.NoError(t, err)
	second, err := s.auth.Authenticate(ctx, "ack@example.com", testPassword, "")
	require.NoError(t, err)

	err = s.auth.Acknowledge(ctx, *first, "ack@example.com", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrInvalidDeviceID))

	mixed := bulwark.Authenticated{AccessToken: first.AccessToken, RefreshToken: second.RefreshToken}
	err = s.auth.Acknowledge(ctx, mixed, "ack@example.com", testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrInvalidToken), "tokens of different pairs: %v", err)

	err = s.auth.Acknowledge(ctx, *first, other.Email, testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrSubjectMismatch), "got %v", err)

	err = s.auth.Acknowledge(ctx, *first, "ghost@example.com", testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrAccountNotFound), "got %v", err)
}

func TestAcknowledgeReplacesPreviousPair(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "replace@example.com")

	first := s.login(t, "replace@example.com")
	second := s.login(t, "replace@example.com")

	_, err := s.auth.ValidateAccessToken(ctx, "replace@example.com", first.AccessToken, testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged))

	_, err = s.auth.ValidateAccessToken(ctx, "replace@example.com", second.AccessToken, testDevice)
	assert.NoError(t, err)
}

func TestValidateAccessTokenChecksAccountHealth(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "health@example.com")
	pair := s.login(t, "health@example.com")

	require.NoError(t, s.directory.Disable(ctx, "health@example.com"))
	_, err := s.auth.ValidateAccessToken(ctx, "health@example.com", pair.AccessToken, testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrAccountDisabled), "got %v", err)

	require.NoError(t, s.directory.Delete(ctx, "health@example.com"))
	_, err = s.auth.ValidateAccessToken(ctx, "health@example.com", pair.AccessToken, testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrAccountDeleted), "got %v", err)
}

func TestValidateAccessTokenExpired(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "expire@example.com")
	pair := s.login(t, "expire@example.com")

	s.clock.Advance(bulwark.DefaultAccessTokenTTL + time.Second)
	_, err := s.auth.ValidateAccessToken(ctx, "expire@example.com", pair.AccessToken, testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrTokenExpired), "got %v", err)
}

func TestRenewSupersedesPair(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	account := s.activeAccount(t, "renew@example.com")
	pair := s.login(t, "renew@example.com")

	require.NoError(t, s.grants.GrantRoles(ctx, account.ID, "auditor"))
	s.clock.Advance(time.Minute)

	renewed, err := s.auth.Renew(ctx, "renew@example.com", pair.RefreshToken, testDevice, "")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, renewed.RefreshToken)

	_, err = s.auth.Renew(ctx, "renew@example.com", pair.RefreshToken, testDevice, "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged), "a refresh token renews once: %v", err)

	_, err = s.auth.ValidateAccessToken(ctx, "renew@example.com", renewed.AccessToken, testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged), "renewed pair needs acknowledgement")

	require.NoError(t, s.auth.Acknowledge(ctx, *renewed, "renew@example.com", testDevice))
	claims, err := s.auth.ValidateAccessToken(ctx, "renew@example.com", renewed.AccessToken, testDevice)
	require.NoError(t, err)
	assert.Equal(t, []string{"auditor"}, claims.Roles, "renewal reads current authorization claims")

	_, err = s.auth.ValidateAccessToken(ctx, "renew@example.com", pair.AccessToken, testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged))

	err = s.auth.Acknowledge(ctx, *pair, "renew@example.com", testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrInvalidToken), "a superseded pair cannot be acknowledged again: %v", err)
}

func TestConcurrentRenewHasOneWinner(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "race@example.com")
	pair := s.login(t, "race@example.com")

	var (
		wg      sync.WaitGroup
		winners atomic.Int32
		losers  atomic.Int32
	)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.auth.Renew(ctx, "race@example.com", pair.RefreshToken, testDevice, "")
			switch {
			case err == nil:
				winners.Add(1)
			case bulwark.IsKind(err, bulwark.ErrNotAcknowledged):
				losers.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, winners.Load())
	assert.EqualValues(t, 5, losers.Load())
}

func TestRenewRejections(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "reject@example.com")
	pair := s.login(t, "reject@example.com")

	_, err := s.auth.Renew(ctx, "reject@example.com", pair.AccessToken, testDevice, "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged))

	_, err = s.auth.Renew(ctx, "reject@example.com", pair.RefreshToken, "", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrInvalidDeviceID))

	_, err = s.auth.Renew(ctx, "reject@example.com", pair.RefreshToken, "unknown-device", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged))

	s.clock.Advance(bulwark.DefaultRefreshTokenTTL + time.Second)
	_, err = s.auth.Renew(ctx, "reject@example.com", pair.RefreshToken, testDevice, "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrTokenExpired), "got %v", err)
}

func TestRenewRejectsPairRetiredOnAnotherDevice(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "shared@example.com")
	pair := s.login(t, "shared@example.com")
	require.NoError(t, s.auth.Acknowledge(ctx, *pair, "shared@example.com", "device-b"))

	_, err := s.auth.Renew(ctx, "shared@example.com", pair.RefreshToken, testDevice, "")
	require.NoError(t, err)

	_, err = s.auth.Renew(ctx, "shared@example.com", pair.RefreshToken, "device-b", "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged), "the pair was retired by the first renewal: %v", err)
}

func TestRevoke(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.activeAccount(t, "revoke@example.com")
	pair := s.login(t, "revoke@example.com")

	err := s.auth.Revoke(ctx, "revoke@example.com", "forged", testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged))

	require.NoError(t, s.auth.Revoke(ctx, "revoke@example.com", pair.AccessToken, testDevice))

	_, err = s.auth.ValidateAccessToken(ctx, "revoke@example.com", pair.AccessToken, testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged))

	_, err = s.auth.Renew(ctx, "revoke@example.com", pair.RefreshToken, testDevice, "")
	assert.True(t, bulwark.IsKind(err, bulwark.ErrNotAcknowledged))

	err = s.auth.Acknowledge(ctx, *pair, "revoke@example.com", testDevice)
	assert.True(t, bulwark.IsKind(err, bulwark.ErrInvalidToken), "revoked pairs stay revoked: %v", err)

	assert.Contains(t, s.activity.Types(), bulwark.ActivityEventRevoked)
}

func TestOperationsRespectCancelledContext(t *testing.T) {
	s := newStack(t)
	s.activeAccount(t, "ctx@example.com")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.auth.Authenticate(ctx, "ctx@example.com", testPassword, "")
	assert.Error(t, err)
	assert.False(t, bulwark.IsKind(err, bulwark.ErrAuthenticationFailed))
	assert.ErrorIs(t, err, context.Canceled)
}
