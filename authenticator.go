package bulwark

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// DefaultOperationTimeout bounds every orchestrator operation.
const DefaultOperationTimeout = 10 * time.Second

// AccountReader is the slice of the directory the orchestrator needs.
type AccountReader interface {
	GetAccount(ctx context.Context, email string) (*Account, error)
	VerifyPassword(account *Account, password string) error
}

var _ AccountReader = (*Directory)(nil)

// Authenticator drives the issue, acknowledge, validate, renew and revoke
// lifecycle of token pairs.
type Authenticator struct {
	accounts     AccountReader
	tokens       TokenIssuer
	store        TokenRepository
	authz        AuthorizationSource
	clock        Clock
	timeout      time.Duration
	tombstoneTTL time.Duration
	activity     ActivitySink
	logger       Logger
}

// NewAuthenticator composes the orchestrator from its collaborators.
func NewAuthenticator(accounts AccountReader, tokens TokenIssuer, store TokenRepository, authz AuthorizationSource) *Authenticator {
	return &Authenticator{
		accounts:     accounts,
		tokens:       tokens,
		store:        store,
		authz:        authz,
		clock:        time.Now,
		timeout:      DefaultOperationTimeout,
		tombstoneTTL: DefaultRefreshTokenTTL,
		activity:     noopActivitySink{},
		logger:       defLogger{},
	}
}

func (a *Authenticator) WithClock(c Clock) *Authenticator {
	a.clock = normalizeClock(c)
	return a
}

func (a *Authenticator) WithOperationTimeout(d time.Duration) *Authenticator {
	if d > 0 {
		a.timeout = d
	}
	return a
}

// WithTombstoneTTL sets how long revoked pairs are remembered. It should
// match the refresh token TTL.
func (a *Authenticator) WithTombstoneTTL(d time.Duration) *Authenticator {
	if d > 0 {
		a.tombstoneTTL = d
	}
	return a
}

func (a *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	a.activity = normalizeActivitySink(sink)
	return a
}

func (a *Authenticator) WithLogger(l Logger) *Authenticator {
	a.logger = normalizeLogger(l)
	return a
}

// Authenticate verifies email and password and returns an Issued pair.
// Every credential, health or storage failure is reported as
// ErrAuthenticationFailed.
func (a *Authenticator) Authenticate(ctx context.Context, email, password, tokenizer string) (*Authenticated, error) {
	ctx, cancel, err := a.begin(ctx, "authenticate")
	if err != nil {
		return nil, err
	}
	defer cancel()

	account, err := a.accounts.GetAccount(ctx, email)
	if err != nil {
		return nil, a.authenticationFailed(ctx, email, err)
	}

	if err := CheckAccountHealth(account); err != nil {
		return nil, a.authenticationFailed(ctx, email, err)
	}

	if err := a.accounts.VerifyPassword(account, password); err != nil {
		return nil, a.authenticationFailed(ctx, email, err)
	}

	pair, err := a.IssueFor(ctx, account, tokenizer)
	if err != nil {
		if IsKind(err, ErrUnknownTokenizer) {
			return nil, err
		}
		return nil, a.authenticationFailed(ctx, email, err)
	}

	a.record(ctx, ActivityEventAuthenticated, account, "", nil)
	return pair, nil
}

// IssueFor reads the current authorization claims of account and mints an
// Issued pair. It does not check credentials.
func (a *Authenticator) IssueFor(ctx context.Context, account *Account, tokenizer string) (*Authenticated, error) {
	roles, err := a.authz.ReadAccountRoles(ctx, account.ID)
	if err != nil {
		return nil, PersistenceError(err, "authorization.roles")
	}

	permissions, err := a.authz.ReadAccountPermissions(ctx, account.ID)
	if err != nil {
		return nil, PersistenceError(err, "authorization.permissions")
	}

	return a.tokens.IssuePair(ctx, tokenizer, account.ID, roles, permissions)
}

// Acknowledge validates both tokens of an Issued pair and stores it as the
// trusted pair for deviceID, replacing any previous one.
func (a *Authenticator) Acknowledge(ctx context.Context, authenticated Authenticated, email, deviceID string) error {
	ctx, cancel, err := a.begin(ctx, "acknowledge")
	if err != nil {
		return err
	}
	defer cancel()

	if deviceID == "" {
		return ErrInvalidDeviceID
	}

	account, err := a.healthyAccount(ctx, email)
	if err != nil {
		return err
	}

	access, err := a.tokens.ValidateAccessToken(ctx, account.ID, authenticated.AccessToken)
	if err != nil {
		return err
	}

	refresh, err := a.tokens.ValidateRefreshToken(ctx, account.ID, authenticated.RefreshToken)
	if err != nil {
		return err
	}

	if access.PairID == "" || access.PairID != refresh.ID {
		return Fail(ErrInvalidToken, nil, map[string]any{"reason": "tokens do not belong to the same pair"})
	}

	retired, err := a.store.IsRetired(ctx, refresh.ID)
	if err != nil {
		return PersistenceError(err, "tokens.is_retired")
	}
	if retired {
		return Fail(ErrInvalidToken, nil, map[string]any{"reason": "token pair was retired"})
	}

	if err := a.store.Acknowledge(ctx, account.ID, deviceID, authenticated.AccessToken, authenticated.RefreshToken); err != nil {
		return PersistenceError(err, "tokens.acknowledge")
	}

	a.record(ctx, ActivityEventAcknowledged, account, deviceID, nil)
	return nil
}

// ValidateAccessToken is the deep validation path. The account must be
// healthy and accessToken must be the acknowledged access token of
// deviceID.
func (a *Authenticator) ValidateAccessToken(ctx context.Context, email, accessToken, deviceID string) (*Claims, error) {
	ctx, cancel, err := a.begin(ctx, "validate")
	if err != nil {
		return nil, err
	}
	defer cancel()

	_, claims, err := a.validateAccessToken(ctx, email, accessToken, deviceID)
	return claims, err
}

// Renew exchanges the acknowledged refresh token of deviceID for a new
// Issued pair carrying the current authorization claims. The stored
// refresh token is cleared with a compare-and-swap, so concurrent renewals
// of the same token have exactly one winner. The new pair must be
// acknowledged before it passes deep validation.
func (a *Authenticator) Renew(ctx context.Context, email, refreshToken, deviceID, tokenizer string) (*Authenticated, error) {
	ctx, cancel, err := a.begin(ctx, "renew")
	if err != nil {
		return nil, err
	}
	defer cancel()

	account, err := a.healthyAccount(ctx, email)
	if err != nil {
		return nil, err
	}

	record, err := a.acknowledged(ctx, account, deviceID)
	if err != nil {
		return nil, err
	}

	if refreshToken == "" || record.RefreshToken != refreshToken {
		return nil, Fail(ErrNotAcknowledged, nil, map[string]any{"use": TokenUseRefresh})
	}

	claims, err := a.tokens.ValidateRefreshToken(ctx, account.ID, refreshToken)
	if err != nil {
		return nil, err
	}

	retired, err := a.store.IsRetired(ctx, claims.ID)
	if err != nil {
		return nil, PersistenceError(err, "tokens.is_retired")
	}
	if retired {
		return nil, Fail(ErrNotAcknowledged, nil, map[string]any{"reason": "token pair was retired"})
	}

	pair, err := a.IssueFor(ctx, account, tokenizer)
	if err != nil {
		return nil, err
	}

	tombstone := &RetiredToken{
		PairID:    claims.ID,
		AccountID: account.ID,
		DeviceID:  deviceID,
		Reason:    RetiredReasonRenewed,
		Expires:   claims.Expires(),
	}
	if err := a.store.Supersede(ctx, account.ID, deviceID, refreshToken, tombstone); err != nil {
		return nil, PersistenceError(err, "tokens.supersede")
	}

	a.record(ctx, ActivityEventRenewed, account, deviceID, nil)
	return pair, nil
}

// Revoke deletes the acknowledged pair of deviceID. accessToken must pass
// deep validation first.
func (a *Authenticator) Revoke(ctx context.Context, email, accessToken, deviceID string) error {
	ctx, cancel, err := a.begin(ctx, "revoke")
	if err != nil {
		return err
	}
	defer cancel()

	account, claims, err := a.validateAccessToken(ctx, email, accessToken, deviceID)
	if err != nil {
		return err
	}

	tombstone := &RetiredToken{
		PairID:    claims.PairID,
		AccountID: account.ID,
		DeviceID:  deviceID,
		Reason:    RetiredReasonRevoked,
		Expires:   claims.IssuedAtTime().Add(a.tombstoneTTL),
	}
	if err := a.store.Retire(ctx, tombstone); err != nil {
		return PersistenceError(err, "tokens.retire")
	}

	if err := a.store.Delete(ctx, account.ID, deviceID); err != nil {
		return PersistenceError(err, "tokens.delete")
	}

	a.record(ctx, ActivityEventRevoked, account, deviceID, nil)
	return nil
}

func (a *Authenticator) validateAccessToken(ctx context.Context, email, accessToken, deviceID string) (*Account, *Claims, error) {
	account, err := a.healthyAccount(ctx, email)
	if err != nil {
		return nil, nil, err
	}

	record, err := a.acknowledged(ctx, account, deviceID)
	if err != nil {
		return nil, nil, err
	}

	if accessToken == "" || record.AccessToken != accessToken {
		return nil, nil, Fail(ErrNotAcknowledged, nil, map[string]any{"use": TokenUseAccess})
	}

	claims, err := a.tokens.ValidateAccessToken(ctx, account.ID, accessToken)
	if err != nil {
		return nil, nil, err
	}

	return account, claims, nil
}

func (a *Authenticator) healthyAccount(ctx context.Context, email string) (*Account, error) {
	account, err := a.accounts.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := CheckAccountHealth(account); err != nil {
		return nil, err
	}
	return account, nil
}

func (a *Authenticator) acknowledged(ctx context.Context, account *Account, deviceID string) (*AcknowledgedToken, error) {
	if deviceID == "" {
		return nil, ErrInvalidDeviceID
	}
	record, err := a.store.Get(ctx, account.ID, deviceID)
	if err != nil {
		return nil, PersistenceError(err, "tokens.get")
	}
	if record == nil {
		return nil, Fail(ErrNotAcknowledged, nil, map[string]any{"reason": "no acknowledged tokens for device"})
	}
	return record, nil
}

func (a *Authenticator) begin(ctx context.Context, operation string) (context.Context, context.CancelFunc, error) {
	select {
	case <-ctx.Done():
		return ctx, func() {}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during "+operation)
	default:
		ctx, cancel := context.WithTimeout(ctx, a.timeout)
		return ctx, cancel, nil
	}
}

func (a *Authenticator) authenticationFailed(ctx context.Context, email string, cause error) error {
	a.logger.Info("authentication failed: %v", cause)
	recordActivity(ctx, a.activity, a.logger, a.clock, ActivityEvent{
		EventType: ActivityEventAuthFailed,
		Email:     email,
	})
	return Fail(ErrAuthenticationFailed, cause, nil)
}

func (a *Authenticator) record(ctx context.Context, event ActivityEventType, account *Account, deviceID string, metadata map[string]any) {
	recordActivity(ctx, a.activity, a.logger, a.clock, ActivityEvent{
		EventType: event,
		AccountID: account.ID.String(),
		Email:     account.Email,
		DeviceID:  deviceID,
		Metadata:  metadata,
	})
}
