package bulwark

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

const (
	DefaultVerificationTokenTTL = 72 * time.Hour
	DefaultForgotTokenTTL       = 24 * time.Hour
)

// AccountChanges lists the columns an update may touch. Nil fields are left
// as stored.
type AccountChanges struct {
	Email        *string
	PasswordHash *string
	Salt         *string
	IsVerified   *bool
	IsEnabled    *bool
	IsDeleted    *bool
}

// AccountRepository persists accounts and their single use tokens.
//
// Update must match exactly one non deleted account by email and fail with
// ErrAccountNotFound otherwise. Consume methods delete the matching token
// created at or after issuedAfter and fail with ErrInvalidOrConsumedToken
// unless exactly one row was removed. Email collisions fail with
// ErrDuplicateAccount. Any other failure is ErrPersistenceUnavailable.
type AccountRepository interface {
	Create(ctx context.Context, account *Account, verification *VerificationToken) error
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	Update(ctx context.Context, email string, changes AccountChanges, modified time.Time) error
	ConsumeVerificationToken(ctx context.Context, email, token string, issuedAfter time.Time) error
	AddForgotToken(ctx context.Context, token *ForgotToken) error
	ConsumeForgotToken(ctx context.Context, email, token string, issuedAfter time.Time) error
	LinkSocial(ctx context.Context, identity *SocialIdentity) error
	PurgeVerificationTokens(ctx context.Context, before time.Time) (int, error)
	PurgeForgotTokens(ctx context.Context, before time.Time) (int, error)
}

// Directory applies account state transitions and issues single use
// tokens.
type Directory struct {
	repo            AccountRepository
	policy          *PasswordPolicy
	hasher          PasswordHasher
	clock           Clock
	verificationTTL time.Duration
	forgotTTL       time.Duration
	hashIDs         bool
	activity        ActivitySink
	logger          Logger
}

// NewDirectory returns a directory over repo using the default password
// policy and bcrypt.
func NewDirectory(repo AccountRepository) *Directory {
	return &Directory{
		repo:            repo,
		policy:          DefaultPasswordPolicy(),
		hasher:          BcryptHasher{},
		clock:           time.Now,
		verificationTTL: DefaultVerificationTokenTTL,
		forgotTTL:       DefaultForgotTokenTTL,
		activity:        noopActivitySink{},
		logger:          defLogger{},
	}
}

func (d *Directory) WithPasswordPolicy(p *PasswordPolicy) *Directory {
	d.policy = normalizePasswordPolicy(p)
	return d
}

func (d *Directory) WithHasher(h PasswordHasher) *Directory {
	d.hasher = normalizeHasher(h)
	return d
}

func (d *Directory) WithClock(c Clock) *Directory {
	d.clock = normalizeClock(c)
	return d
}

func (d *Directory) WithVerificationTTL(ttl time.Duration) *Directory {
	if ttl > 0 {
		d.verificationTTL = ttl
	}
	return d
}

func (d *Directory) WithForgotTTL(ttl time.Duration) *Directory {
	if ttl > 0 {
		d.forgotTTL = ttl
	}
	return d
}

// WithHashIDs derives account ids from the email address.
func (d *Directory) WithHashIDs(enabled bool) *Directory {
	d.hashIDs = enabled
	return d
}

func (d *Directory) WithActivitySink(sink ActivitySink) *Directory {
	d.activity = normalizeActivitySink(sink)
	return d
}

func (d *Directory) WithLogger(l Logger) *Directory {
	d.logger = normalizeLogger(l)
	return d
}

// PasswordPolicy returns the policy used to validate new passwords.
func (d *Directory) PasswordPolicy() *PasswordPolicy {
	return d.policy
}

// VerificationTTL is how long verification tokens stay redeemable.
func (d *Directory) VerificationTTL() time.Duration {
	return d.verificationTTL
}

// ForgotTTL is how long forgot tokens stay redeemable.
func (d *Directory) ForgotTTL() time.Duration {
	return d.forgotTTL
}

// Create stores an unverified, disabled account and returns the token that
// verifies it.
func (d *Directory) Create(ctx context.Context, email, password string) (*VerificationToken, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if err := d.policy.Check(password); err != nil {
		return nil, err
	}

	hash, err := d.hasher.Hash(password)
	if err != nil {
		return nil, Fail(ErrWeakPassword, err, nil)
	}

	id, err := d.newAccountID(email)
	if err != nil {
		return nil, err
	}

	now := d.clock().UTC()
	account := &Account{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Salt:         bcryptSalt(hash),
		IsVerified:   false,
		IsEnabled:    false,
		IsDeleted:    false,
		Created:      now,
		Modified:     now,
	}
	token := &VerificationToken{
		Token:   uuid.NewString(),
		Email:   email,
		Created: now,
	}

	if err := d.repo.Create(ctx, account, token); err != nil {
		return nil, err
	}

	d.record(ctx, ActivityEventAccountCreated, account)
	return token, nil
}

// Provision stores a verified, enabled account with an unusable random
// password. Used for accounts that sign up through a social provider.
func (d *Directory) Provision(ctx context.Context, email string) (*Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	hash, err := RandomPasswordHash(d.hasher)
	if err != nil {
		return nil, Fail(ErrPersistenceUnavailable, err, map[string]any{"operation": "hash"})
	}

	id, err := d.newAccountID(email)
	if err != nil {
		return nil, err
	}

	now := d.clock().UTC()
	account := &Account{
		ID:           id,
		Email:        email,
		PasswordHash: hash,
		Salt:         bcryptSalt(hash),
		IsVerified:   true,
		IsEnabled:    true,
		Created:      now,
		Modified:     now,
	}

	if err := d.repo.Create(ctx, account, nil); err != nil {
		return nil, err
	}

	d.record(ctx, ActivityEventAccountCreated, account)
	return account, nil
}

// Verify consumes the verification token and activates the account.
func (d *Directory) Verify(ctx context.Context, email, token string) error {
	account, err := d.tokenHolder(ctx, email)
	if err != nil {
		return err
	}

	issuedAfter := d.clock().Add(-d.verificationTTL)
	if err := d.repo.ConsumeVerificationToken(ctx, account.Email, token, issuedAfter); err != nil {
		return err
	}

	verified := true
	changes := AccountChanges{IsVerified: &verified, IsEnabled: &verified}
	if err := d.repo.Update(ctx, account.Email, changes, d.clock().UTC()); err != nil {
		d.logger.Error("verification token consumed but account %s was not updated: %v", account.ID, err)
		return Fail(ErrPartialUpdateFailure, err, map[string]any{"operation": "verify"})
	}

	d.record(ctx, ActivityEventAccountVerified, account)
	return nil
}

// GetAccount returns the account for email, deleted accounts included.
func (d *Directory) GetAccount(ctx context.Context, email string) (*Account, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	return d.repo.GetByEmail(ctx, email)
}

// Delete soft deletes the account. Deletion is terminal.
func (d *Directory) Delete(ctx context.Context, email string) error {
	deleted, off := true, false
	return d.update(ctx, email, ActivityEventAccountDeleted, AccountChanges{
		IsDeleted:  &deleted,
		IsVerified: &off,
		IsEnabled:  &off,
	})
}

func (d *Directory) Enable(ctx context.Context, email string) error {
	on := true
	return d.update(ctx, email, ActivityEventAccountEnabled, AccountChanges{IsEnabled: &on})
}

func (d *Directory) Disable(ctx context.Context, email string) error {
	off := false
	return d.update(ctx, email, ActivityEventAccountDisabled, AccountChanges{IsEnabled: &off})
}

// ChangeEmail moves the account to newEmail.
func (d *Directory) ChangeEmail(ctx context.Context, email, newEmail string) error {
	newEmail, err := normalizeEmail(newEmail)
	if err != nil {
		return err
	}
	return d.update(ctx, email, ActivityEventEmailChanged, AccountChanges{Email: &newEmail})
}

// ChangePassword validates newPassword against the policy before hashing.
func (d *Directory) ChangePassword(ctx context.Context, email, newPassword string) error {
	hash, salt, err := d.hashNewPassword(newPassword)
	if err != nil {
		return err
	}
	return d.update(ctx, email, ActivityEventPasswordChanged, AccountChanges{
		PasswordHash: &hash,
		Salt:         &salt,
	})
}

// ForgotPassword issues a password reset token.
func (d *Directory) ForgotPassword(ctx context.Context, email string) (*ForgotToken, error) {
	account, err := d.mutable(ctx, email)
	if err != nil {
		return nil, err
	}

	token := &ForgotToken{
		Token:   uuid.NewString(),
		Email:   account.Email,
		Created: d.clock().UTC(),
	}
	if err := d.repo.AddForgotToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// ResetPasswordWithToken consumes the forgot token then sets the new
// password. The password is validated before the token is spent.
func (d *Directory) ResetPasswordWithToken(ctx context.Context, email, token, newPassword string) error {
	account, err := d.tokenHolder(ctx, email)
	if err != nil {
		return err
	}

	hash, salt, err := d.hashNewPassword(newPassword)
	if err != nil {
		return err
	}

	issuedAfter := d.clock().Add(-d.forgotTTL)
	if err := d.repo.ConsumeForgotToken(ctx, account.Email, token, issuedAfter); err != nil {
		return err
	}

	changes := AccountChanges{PasswordHash: &hash, Salt: &salt}
	if err := d.repo.Update(ctx, account.Email, changes, d.clock().UTC()); err != nil {
		d.logger.Error("forgot token consumed but password of account %s was not updated: %v", account.ID, err)
		return Fail(ErrPartialUpdateFailure, err, map[string]any{"operation": "reset_password"})
	}

	d.record(ctx, ActivityEventPasswordReset, account)
	return nil
}

// LinkSocial links identity to the account unless that provider is already
// linked.
func (d *Directory) LinkSocial(ctx context.Context, email string, provider, externalID string) error {
	account, err := d.mutable(ctx, email)
	if err != nil {
		return err
	}

	if account.HasSocialProvider(provider) {
		return nil
	}

	identity := &SocialIdentity{
		AccountID:  account.ID,
		Provider:   provider,
		ExternalID: externalID,
		Created:    d.clock().UTC(),
	}
	if err := d.repo.LinkSocial(ctx, identity); err != nil {
		return err
	}

	recordActivity(ctx, d.activity, d.logger, d.clock, ActivityEvent{
		EventType: ActivityEventSocialLinked,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Metadata:  map[string]any{"provider": provider},
	})
	return nil
}

// VerifyPassword compares password with the stored hash.
func (d *Directory) VerifyPassword(account *Account, password string) error {
	if account == nil {
		return ErrAccountNotFound
	}
	return d.hasher.Compare(account.PasswordHash, password)
}

// PurgeExpiredTokens removes verification and forgot tokens past their TTL.
func (d *Directory) PurgeExpiredTokens(ctx context.Context) (int, error) {
	now := d.clock()
	verifications, err := d.repo.PurgeVerificationTokens(ctx, now.Add(-d.verificationTTL))
	if err != nil {
		return 0, err
	}
	forgot, err := d.repo.PurgeForgotTokens(ctx, now.Add(-d.forgotTTL))
	if err != nil {
		return verifications, err
	}
	return verifications + forgot, nil
}

func (d *Directory) update(ctx context.Context, email string, event ActivityEventType, changes AccountChanges) error {
	account, err := d.mutable(ctx, email)
	if err != nil {
		return err
	}

	if err := d.repo.Update(ctx, account.Email, changes, d.clock().UTC()); err != nil {
		return err
	}

	d.record(ctx, event, account)
	return nil
}

// mutable loads the account and rejects deleted ones.
func (d *Directory) mutable(ctx context.Context, email string) (*Account, error) {
	account, err := d.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if account.IsDeleted {
		return nil, Fail(ErrAccountDeleted, nil, nil)
	}
	return account, nil
}

// tokenHolder resolves the account a single use token is redeemed for. An
// unknown email is reported like a wrong token.
func (d *Directory) tokenHolder(ctx context.Context, email string) (*Account, error) {
	account, err := d.mutable(ctx, email)
	if IsKind(err, ErrAccountNotFound) {
		return nil, Fail(ErrInvalidOrConsumedToken, nil, nil)
	}
	return account, err
}

func (d *Directory) hashNewPassword(password string) (string, string, error) {
	if err := d.policy.Check(password); err != nil {
		return "", "", err
	}
	hash, err := d.hasher.Hash(password)
	if err != nil {
		return "", "", Fail(ErrWeakPassword, err, nil)
	}
	return hash, bcryptSalt(hash), nil
}

func (d *Directory) newAccountID(email string) (uuid.UUID, error) {
	if !d.hashIDs {
		return uuid.New(), nil
	}
	id, err := hashid.NewUUID(email)
	if err != nil {
		return uuid.Nil, Fail(ErrInvalidEmail, err, nil)
	}
	return id, nil
}

func (d *Directory) record(ctx context.Context, event ActivityEventType, account *Account) {
	recordActivity(ctx, d.activity, d.logger, d.clock, ActivityEvent{
		EventType: event,
		AccountID: account.ID.String(),
		Email:     account.Email,
	})
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return "", Fail(ErrInvalidEmail, err, nil)
	}
	return email, nil
}

// bcryptSalt returns the salt segment of a bcrypt hash
// ("$2a$<cost>$<22 char salt><31 char digest>").
func bcryptSalt(hash string) string {
	if len(hash) != 60 || hash[0] != '$' || hash[3] != '$' || hash[6] != '$' {
		return ""
	}
	return hash[7:29]
}
