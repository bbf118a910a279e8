package bulwark

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Account is the aggregate root of the directory.
type Account struct {
	bun.BaseModel    `bun:"table:accounts,alias:acc"`
	ID               uuid.UUID         `bun:"id,pk,type:uuid" json:"id"`
	Email            string            `bun:"email,notnull,unique" json:"email"`
	PasswordHash     string            `bun:"password_hash,notnull" json:"-"`
	Salt             string            `bun:"salt,notnull" json:"-"`
	IsVerified       bool              `bun:"is_verified,notnull" json:"isVerified"`
	IsEnabled        bool              `bun:"is_enabled,notnull" json:"isEnabled"`
	IsDeleted        bool              `bun:"is_deleted,notnull" json:"isDeleted"`
	Created          time.Time         `bun:"created,notnull" json:"created"`
	Modified         time.Time         `bun:"modified,notnull" json:"modified"`
	SocialIdentities []*SocialIdentity `bun:"rel:has-many,join:id=account_id" json:"socialProviders,omitempty"`
}

// HasSocialProvider reports whether an identity for provider is linked.
func (a *Account) HasSocialProvider(provider string) bool {
	if a == nil {
		return false
	}
	for _, identity := range a.SocialIdentities {
		if identity != nil && identity.Provider == provider {
			return true
		}
	}
	return false
}

// SocialIdentity links an account to an external identity provider subject.
type SocialIdentity struct {
	bun.BaseModel `bun:"table:social_identities,alias:sid"`
	AccountID     uuid.UUID `bun:"account_id,pk,type:uuid" json:"-"`
	Provider      string    `bun:"provider,pk" json:"provider"`
	ExternalID    string    `bun:"external_id,notnull" json:"externalId"`
	Created       time.Time `bun:"created,notnull" json:"created"`
}

// VerificationToken is the single use token that activates a new account.
type VerificationToken struct {
	bun.BaseModel `bun:"table:verification_tokens,alias:vt"`
	Token         string    `bun:"token,pk" json:"token"`
	Email         string    `bun:"email,notnull" json:"email"`
	Created       time.Time `bun:"created,notnull" json:"created"`
}

// ForgotToken is the single use token that authorizes a password reset.
type ForgotToken struct {
	bun.BaseModel `bun:"table:forgot_tokens,alias:ft"`
	Token         string    `bun:"token,pk" json:"token"`
	Email         string    `bun:"email,notnull" json:"email"`
	Created       time.Time `bun:"created,notnull" json:"created"`
}

// MagicCode is a single use, time boxed passwordless login code.
type MagicCode struct {
	bun.BaseModel `bun:"table:magic_codes,alias:mc"`
	AccountID     uuid.UUID `bun:"account_id,pk,type:uuid" json:"accountId"`
	Code          string    `bun:"code,pk" json:"-"`
	Expires       time.Time `bun:"expires,notnull" json:"expires"`
	Attempts      int       `bun:"attempts,notnull" json:"-"`
}

// SigningKeyGeneration is one generation of signing key material. Keys are
// PEM encoded.
type SigningKeyGeneration struct {
	bun.BaseModel `bun:"table:signing_keys,alias:sk"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	Generation    int       `bun:"generation,notnull,unique" json:"generation"`
	PrivateKey    string    `bun:"private_key,notnull" json:"-"`
	PublicKey     string    `bun:"public_key,notnull" json:"publicKey"`
	Created       time.Time `bun:"created,notnull" json:"created"`
}

// AcknowledgedToken is the server trusted token pair for one device.
type AcknowledgedToken struct {
	bun.BaseModel `bun:"table:acknowledged_tokens,alias:ack"`
	AccountID     uuid.UUID `bun:"account_id,pk,type:uuid" json:"accountId"`
	DeviceID      string    `bun:"device_id,pk" json:"deviceId"`
	AccessToken   string    `bun:"access_token,notnull" json:"-"`
	RefreshToken  string    `bun:"refresh_token,notnull" json:"-"`
	Modified      time.Time `bun:"modified,notnull" json:"modified"`
}

// RetiredToken is a tombstone for a token pair that was renewed or revoked.
// PairID is the refresh token jti, which the access token carries as sid.
type RetiredToken struct {
	bun.BaseModel `bun:"table:retired_tokens,alias:rt"`
	PairID        string    `bun:"pair_id,pk" json:"pairId"`
	AccountID     uuid.UUID `bun:"account_id,notnull,type:uuid" json:"accountId"`
	DeviceID      string    `bun:"device_id,notnull" json:"deviceId"`
	Reason        string    `bun:"reason,notnull" json:"reason"`
	Expires       time.Time `bun:"expires,notnull" json:"expires"`
}

const (
	RetiredReasonRenewed = "renewed"
	RetiredReasonRevoked = "revoked"
)

// AccountRole is one ordered role grant.
type AccountRole struct {
	bun.BaseModel `bun:"table:account_roles,alias:ar"`
	AccountID     uuid.UUID `bun:"account_id,pk,type:uuid"`
	Role          string    `bun:"role,pk"`
	Position      int       `bun:"position,notnull"`
}

// AccountPermission is one ordered permission grant.
type AccountPermission struct {
	bun.BaseModel `bun:"table:account_permissions,alias:ap"`
	AccountID     uuid.UUID `bun:"account_id,pk,type:uuid"`
	Permission    string    `bun:"permission,pk"`
	Position      int       `bun:"position,notnull"`
}
