package bulwark

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultMagicCodeTTL    = 10 * time.Minute
	DefaultMagicCodeDigits = 6
)

// MagicCodeRepository stores passwordless login codes. Add replaces any
// outstanding code of the account. Consume deletes the unexpired code and
// fails with ErrInvalidMagicCode unless exactly one row was removed; a
// failed attempt counts against the outstanding code, which is dropped once
// its attempts run out.
type MagicCodeRepository interface {
	Add(ctx context.Context, code *MagicCode) error
	Consume(ctx context.Context, accountID uuid.UUID, code string, now time.Time) error
	PurgeExpired(ctx context.Context, now time.Time) (int, error)
}

// MagicCodeService issues and redeems magic codes.
type MagicCodeService struct {
	accounts      AccountReader
	codes         MagicCodeRepository
	authenticator *Authenticator
	ttl           time.Duration
	digits        int
	clock         Clock
	activity      ActivitySink
	logger        Logger
}

func NewMagicCodeService(accounts AccountReader, codes MagicCodeRepository, authenticator *Authenticator) *MagicCodeService {
	return &MagicCodeService{
		accounts:      accounts,
		codes:         codes,
		authenticator: authenticator,
		ttl:           DefaultMagicCodeTTL,
		digits:        DefaultMagicCodeDigits,
		clock:         time.Now,
		activity:      noopActivitySink{},
		logger:        defLogger{},
	}
}

func (m *MagicCodeService) WithTTL(ttl time.Duration) *MagicCodeService {
	if ttl > 0 {
		m.ttl = ttl
	}
	return m
}

func (m *MagicCodeService) WithDigits(n int) *MagicCodeService {
	if n >= 4 && n <= 12 {
		m.digits = n
	}
	return m
}

func (m *MagicCodeService) WithClock(c Clock) *MagicCodeService {
	m.clock = normalizeClock(c)
	return m
}

func (m *MagicCodeService) WithActivitySink(sink ActivitySink) *MagicCodeService {
	m.activity = normalizeActivitySink(sink)
	return m
}

func (m *MagicCodeService) WithLogger(l Logger) *MagicCodeService {
	m.logger = normalizeLogger(l)
	return m
}

// Request stores a new code for a healthy account. Delivering the code is
// the caller's concern.
func (m *MagicCodeService) Request(ctx context.Context, email string) (*MagicCode, error) {
	account, err := m.accounts.GetAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := CheckAccountHealth(account); err != nil {
		return nil, err
	}

	code, err := randomDigits(m.digits)
	if err != nil {
		return nil, err
	}

	record := &MagicCode{
		AccountID: account.ID,
		Code:      code,
		Expires:   m.clock().Add(m.ttl).UTC(),
	}
	if err := m.codes.Add(ctx, record); err != nil {
		return nil, PersistenceError(err, "magic_codes.add")
	}

	recordActivity(ctx, m.activity, m.logger, m.clock, ActivityEvent{
		EventType: ActivityEventMagicCodeRequested,
		AccountID: account.ID.String(),
		Email:     account.Email,
	})
	return record, nil
}

// Authenticate redeems code and returns an Issued pair. Every failure is
// reported as ErrAuthenticationFailed.
func (m *MagicCodeService) Authenticate(ctx context.Context, email, code, tokenizer string) (*Authenticated, error) {
	account, err := m.accounts.GetAccount(ctx, email)
	if err != nil {
		return nil, m.failed(err)
	}

	if err := CheckAccountHealth(account); err != nil {
		return nil, m.failed(err)
	}

	if err := m.codes.Consume(ctx, account.ID, code, m.clock().UTC()); err != nil {
		return nil, m.failed(err)
	}

	pair, err := m.authenticator.IssueFor(ctx, account, tokenizer)
	if err != nil {
		if IsKind(err, ErrUnknownTokenizer) {
			return nil, err
		}
		return nil, m.failed(err)
	}

	recordActivity(ctx, m.activity, m.logger, m.clock, ActivityEvent{
		EventType: ActivityEventAuthenticated,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Metadata:  map[string]any{"method": "magic_code"},
	})
	return pair, nil
}

// PurgeExpired removes codes past their expiry.
func (m *MagicCodeService) PurgeExpired(ctx context.Context) (int, error) {
	return m.codes.PurgeExpired(ctx, m.clock().UTC())
}

func (m *MagicCodeService) failed(cause error) error {
	m.logger.Info("magic code authentication failed: %v", cause)
	return Fail(ErrAuthenticationFailed, cause, nil)
}

func randomDigits(n int) (string, error) {
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("generate magic code: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v), nil
}
