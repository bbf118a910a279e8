package bulwark

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	TokenUseAccess  = "access"
	TokenUseRefresh = "refresh"
)

// Claims is the payload of access and refresh tokens.
type Claims struct {
	jwt.RegisteredClaims
	Roles       []string       `json:"roles,omitempty"`
	Permissions []string       `json:"permissions,omitempty"`
	Generation  int            `json:"gen"`
	Tokenizer   string         `json:"tkn"`
	Use         string         `json:"use"`
	PairID      string         `json:"sid,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// AccountID parses the subject claim.
func (c *Claims) AccountID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// HasRole reports whether role was granted.
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// HasPermission reports whether permission was granted.
func (c *Claims) HasPermission(permission string) bool {
	return slices.Contains(c.Permissions, permission)
}

// Expires returns the expiration time or the zero time.
func (c *Claims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAtTime returns the issuance time or the zero time.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// RefreshPairID returns the identifier shared by both tokens of a pair.
// A refresh token is identified by its own jti.
func (c *Claims) RefreshPairID() string {
	if c.Use == TokenUseRefresh {
		return c.ID
	}
	return c.PairID
}
