package bulwark

import (
	"fmt"

	"github.com/goliatone/go-errors"
)

const (
	TextCodeWeakPassword           = "WEAK_PASSWORD"
	TextCodeDuplicateAccount       = "DUPLICATE_ACCOUNT"
	TextCodeInvalidOrConsumedToken = "INVALID_OR_CONSUMED_TOKEN"
	TextCodeAccountDeleted         = "ACCOUNT_DELETED"
	TextCodeAccountNotVerified     = "ACCOUNT_NOT_VERIFIED"
	TextCodeAccountDisabled        = "ACCOUNT_DISABLED"
	TextCodeAccountNotFound        = "ACCOUNT_NOT_FOUND"
	TextCodeAuthenticationFailed   = "AUTHENTICATION_FAILED"
	TextCodeNotAcknowledged        = "NOT_ACKNOWLEDGED"
	TextCodeInvalidToken           = "INVALID_TOKEN"
	TextCodeInvalidSignature       = "INVALID_SIGNATURE"
	TextCodeTokenExpired           = "TOKEN_EXPIRED"
	TextCodeKeyRotatedOut          = "KEY_ROTATED_OUT"
	TextCodeSubjectMismatch        = "SUBJECT_MISMATCH"
	TextCodeUnknownTokenizer       = "UNKNOWN_TOKENIZER"
	TextCodeGenerationConflict     = "GENERATION_CONFLICT"
	TextCodeInvalidMagicCode       = "INVALID_MAGIC_CODE"
	TextCodeImmutableClaim         = "IMMUTABLE_CLAIM_MUTATION"
	TextCodeInvalidDeviceID        = "INVALID_DEVICE_ID"
	TextCodeProviderNotConfigured  = "PROVIDER_NOT_CONFIGURED"
	TextCodeInvalidAssertion       = "INVALID_ASSERTION"
	TextCodeInvalidEmail           = "INVALID_EMAIL"
	TextCodePersistenceUnavailable = "PERSISTENCE_UNAVAILABLE"
	TextCodePartialUpdateFailure   = "PARTIAL_UPDATE_FAILURE"
)

var (
	// ErrWeakPassword is returned when a password fails one or more policy rules.
	ErrWeakPassword = errors.New("password does not satisfy the password policy", errors.CategoryValidation).
			WithTextCode(TextCodeWeakPassword).
			WithCode(errors.CodeBadRequest)

	ErrInvalidEmail = errors.New("invalid email address", errors.CategoryValidation).
			WithTextCode(TextCodeInvalidEmail).
			WithCode(errors.CodeBadRequest)

	// ErrDuplicateAccount is returned when an email is already taken.
	ErrDuplicateAccount = errors.New("account already exists", errors.CategoryConflict).
				WithTextCode(TextCodeDuplicateAccount).
				WithCode(errors.CodeConflict)

	// ErrInvalidOrConsumedToken is returned when a single use token does not
	// match, expired or was already redeemed.
	ErrInvalidOrConsumedToken = errors.New("token is invalid or already consumed", errors.CategoryBadInput).
					WithTextCode(TextCodeInvalidOrConsumedToken).
					WithCode(errors.CodeBadRequest)

	ErrAccountDeleted = errors.New("account deleted", errors.CategoryAuthz).
				WithTextCode(TextCodeAccountDeleted).
				WithCode(errors.CodeForbidden)

	ErrAccountNotVerified = errors.New("account not verified", errors.CategoryAuthz).
				WithTextCode(TextCodeAccountNotVerified).
				WithCode(errors.CodeForbidden)

	ErrAccountDisabled = errors.New("account disabled", errors.CategoryAuthz).
				WithTextCode(TextCodeAccountDisabled).
				WithCode(errors.CodeForbidden)

	ErrAccountNotFound = errors.New("account not found", errors.CategoryNotFound).
				WithTextCode(TextCodeAccountNotFound).
				WithCode(errors.CodeNotFound)

	// ErrAuthenticationFailed is the only failure an unauthenticated caller
	// observes from the initial authenticate step.
	ErrAuthenticationFailed = errors.New("account cannot be authenticated", errors.CategoryAuth).
				WithTextCode(TextCodeAuthenticationFailed).
				WithCode(errors.CodeUnauthorized)

	ErrNotAcknowledged = errors.New("token is not acknowledged", errors.CategoryAuth).
				WithTextCode(TextCodeNotAcknowledged).
				WithCode(errors.CodeUnauthorized)

	ErrInvalidToken = errors.New("invalid token", errors.CategoryAuth).
			WithTextCode(TextCodeInvalidToken).
			WithCode(errors.CodeUnauthorized)

	ErrInvalidSignature = errors.New("token signature is invalid", errors.CategoryAuth).
				WithTextCode(TextCodeInvalidSignature).
				WithCode(errors.CodeUnauthorized)

	ErrTokenExpired = errors.New("token expired", errors.CategoryAuth).
			WithTextCode(TextCodeTokenExpired).
			WithCode(errors.CodeUnauthorized)

	// ErrKeyRotatedOut is returned when the generation that signed a token is
	// no longer retained.
	ErrKeyRotatedOut = errors.New("signing key generation no longer retained", errors.CategoryAuth).
				WithTextCode(TextCodeKeyRotatedOut).
				WithCode(errors.CodeUnauthorized)

	ErrSubjectMismatch = errors.New("token subject does not match account", errors.CategoryAuth).
				WithTextCode(TextCodeSubjectMismatch).
				WithCode(errors.CodeUnauthorized)

	ErrUnknownTokenizer = errors.New("unknown tokenizer", errors.CategoryBadInput).
				WithTextCode(TextCodeUnknownTokenizer).
				WithCode(errors.CodeBadRequest)

	ErrGenerationConflict = errors.New("signing key generation already exists", errors.CategoryConflict).
				WithTextCode(TextCodeGenerationConflict).
				WithCode(errors.CodeConflict)

	ErrInvalidDeviceID = errors.New("device id is required", errors.CategoryBadInput).
				WithTextCode(TextCodeInvalidDeviceID).
				WithCode(errors.CodeBadRequest)

	// ErrProviderNotConfigured is returned for a social provider without
	// credentials.
	ErrProviderNotConfigured = errors.New("social provider not configured", errors.CategoryNotFound).
					WithTextCode(TextCodeProviderNotConfigured).
					WithCode(errors.CodeNotFound)

	// ErrInvalidAssertion is returned when a social provider token fails
	// verification.
	ErrInvalidAssertion = errors.New("invalid social identity assertion", errors.CategoryAuth).
				WithTextCode(TextCodeInvalidAssertion).
				WithCode(errors.CodeUnauthorized)

	ErrInvalidMagicCode = errors.New("magic code is invalid or expired", errors.CategoryBadInput).
				WithTextCode(TextCodeInvalidMagicCode).
				WithCode(errors.CodeBadRequest)

	// ErrImmutableClaimMutation is returned when a claims decorator touched a
	// protected claim.
	ErrImmutableClaimMutation = errors.New("immutable claim mutated", errors.CategoryInternal).
					WithTextCode(TextCodeImmutableClaim)

	// ErrPersistenceUnavailable wraps every storage failure that crosses a
	// repository boundary.
	ErrPersistenceUnavailable = errors.New("persistence unavailable", errors.CategoryInternal).
					WithTextCode(TextCodePersistenceUnavailable)

	// ErrPartialUpdateFailure is returned when a single use token was consumed
	// but the account mutation that should follow it did not apply.
	ErrPartialUpdateFailure = errors.New("token consumed but account update failed", errors.CategoryOperation).
				WithTextCode(TextCodePartialUpdateFailure)
)

// IsKind reports whether err carries the same text code as sentinel.
// Domain errors are returned as clones so errors.Is does not match them.
func IsKind(err error, sentinel *errors.Error) bool {
	if err == nil || sentinel == nil {
		return false
	}
	var target *errors.Error
	if !errors.As(err, &target) {
		return false
	}
	return target.TextCode == sentinel.TextCode
}

func isDomainError(err error) bool {
	var domain *errors.Error
	if !errors.As(err, &domain) {
		return false
	}
	_, ok := domainTextCodes[domain.TextCode]
	return ok
}

var domainTextCodes = map[string]struct{}{
	TextCodeWeakPassword:           {},
	TextCodeDuplicateAccount:       {},
	TextCodeInvalidOrConsumedToken: {},
	TextCodeAccountDeleted:         {},
	TextCodeAccountNotVerified:     {},
	TextCodeAccountDisabled:        {},
	TextCodeAccountNotFound:        {},
	TextCodeAuthenticationFailed:   {},
	TextCodeNotAcknowledged:        {},
	TextCodeInvalidToken:           {},
	TextCodeInvalidSignature:       {},
	TextCodeTokenExpired:           {},
	TextCodeKeyRotatedOut:          {},
	TextCodeSubjectMismatch:        {},
	TextCodeUnknownTokenizer:       {},
	TextCodeGenerationConflict:     {},
	TextCodeInvalidMagicCode:       {},
	TextCodeImmutableClaim:         {},
	TextCodeInvalidDeviceID:        {},
	TextCodeProviderNotConfigured:  {},
	TextCodeInvalidAssertion:       {},
	TextCodeInvalidEmail:           {},
	TextCodePersistenceUnavailable: {},
	TextCodePartialUpdateFailure:   {},
}

// IsInvalidToken reports whether err is any token validation failure.
func IsInvalidToken(err error) bool {
	for _, kind := range []*errors.Error{
		ErrInvalidToken,
		ErrInvalidSignature,
		ErrTokenExpired,
		ErrKeyRotatedOut,
		ErrSubjectMismatch,
		ErrUnknownTokenizer,
	} {
		if IsKind(err, kind) {
			return true
		}
	}
	return false
}

// Fail returns a copy of sentinel with source as its cause and the given
// metadata attached.
func Fail(sentinel *errors.Error, source error, metadata map[string]any) error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = source
	if len(metadata) > 0 {
		return clone.WithMetadata(metadata)
	}
	return clone
}

// Failf is Fail with an overridden message.
func Failf(sentinel *errors.Error, source error, format string, args ...any) error {
	clone := sentinel.Clone()
	if clone == nil {
		return sentinel
	}
	clone.Source = source
	clone.Message = fmt.Sprintf(format, args...)
	return clone
}

// PersistenceError converts a storage error into ErrPersistenceUnavailable.
// Domain errors pass through untouched.
func PersistenceError(err error, operation string) error {
	if err == nil {
		return nil
	}
	if isDomainError(err) {
		return err
	}
	return Fail(ErrPersistenceUnavailable, err, map[string]any{"operation": operation})
}
