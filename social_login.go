package bulwark

import (
	"context"
	"time"
)

// ExternalIdentity is a validated social identity assertion.
type ExternalIdentity struct {
	Provider      string
	ExternalID    string
	Email         string
	EmailVerified bool
}

// SocialValidator verifies a provider issued assertion.
type SocialValidator interface {
	Validate(ctx context.Context, provider, assertion string) (*ExternalIdentity, error)
}

// SocialLogin authenticates accounts with social identity assertions.
type SocialLogin struct {
	directory     *Directory
	validator     SocialValidator
	authenticator *Authenticator
	provision     bool
	clock         Clock
	activity      ActivitySink
	logger        Logger
}

// NewSocialLogin provisions unknown accounts by default.
func NewSocialLogin(directory *Directory, validator SocialValidator, authenticator *Authenticator) *SocialLogin {
	return &SocialLogin{
		directory:     directory,
		validator:     validator,
		authenticator: authenticator,
		provision:     true,
		clock:         time.Now,
		activity:      noopActivitySink{},
		logger:        defLogger{},
	}
}

// WithProvisioning controls whether unknown emails get a new account.
func (s *SocialLogin) WithProvisioning(enabled bool) *SocialLogin {
	s.provision = enabled
	return s
}

func (s *SocialLogin) WithActivitySink(sink ActivitySink) *SocialLogin {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *SocialLogin) WithLogger(l Logger) *SocialLogin {
	s.logger = normalizeLogger(l)
	return s
}

// Authenticate validates the assertion, links the identity to the account
// with the same email and returns an issued pair. Provider and assertion
// failures are returned as is, account failures as ErrAuthenticationFailed.
func (s *SocialLogin) Authenticate(ctx context.Context, provider, assertion, tokenizer string) (*Authenticated, error) {
	identity, err := s.validator.Validate(ctx, provider, assertion)
	if err != nil {
		return nil, err
	}

	if identity.Email == "" || !identity.EmailVerified {
		return nil, Fail(ErrInvalidAssertion, nil, map[string]any{"provider": provider, "reason": "email not verified"})
	}

	account, err := s.resolveAccount(ctx, identity)
	if err != nil {
		return nil, s.failed(err)
	}

	for _, linked := range account.SocialIdentities {
		if linked != nil && linked.Provider == identity.Provider && linked.ExternalID != identity.ExternalID {
			return nil, s.failed(Fail(ErrInvalidAssertion, nil, map[string]any{"reason": "provider linked to another subject"}))
		}
	}

	if err := CheckAccountHealth(account); err != nil {
		return nil, s.failed(err)
	}

	if err := s.directory.LinkSocial(ctx, account.Email, identity.Provider, identity.ExternalID); err != nil {
		return nil, s.failed(err)
	}

	pair, err := s.authenticator.IssueFor(ctx, account, tokenizer)
	if err != nil {
		if IsKind(err, ErrUnknownTokenizer) {
			return nil, err
		}
		return nil, s.failed(err)
	}

	recordActivity(ctx, s.activity, s.logger, s.clock, ActivityEvent{
		EventType: ActivityEventSocialLogin,
		AccountID: account.ID.String(),
		Email:     account.Email,
		Metadata:  map[string]any{"provider": identity.Provider},
	})
	return pair, nil
}

func (s *SocialLogin) resolveAccount(ctx context.Context, identity *ExternalIdentity) (*Account, error) {
	account, err := s.directory.GetAccount(ctx, identity.Email)
	if err == nil {
		return account, nil
	}
	if !IsKind(err, ErrAccountNotFound) || !s.provision {
		return nil, err
	}

	account, err = s.directory.Provision(ctx, identity.Email)
	if IsKind(err, ErrDuplicateAccount) {
		return s.directory.GetAccount(ctx, identity.Email)
	}
	return account, err
}

func (s *SocialLogin) failed(cause error) error {
	s.logger.Info("social authentication failed: %v", cause)
	return Fail(ErrAuthenticationFailed, cause, nil)
}
