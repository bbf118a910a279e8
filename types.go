package bulwark

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultTokenizerName is used when a caller does not name a tokenizer.
const DefaultTokenizerName = "default"

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Authenticated is an Issued token pair returned to a caller.
type Authenticated struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// AuthorizationSource supplies the opaque role and permission claims
// issued by an external authority. Sequences are returned in order.
type AuthorizationSource interface {
	ReadAccountRoles(ctx context.Context, accountID uuid.UUID) ([]string, error)
	ReadAccountPermissions(ctx context.Context, accountID uuid.UUID) ([]string, error)
}

// TokenIssuer mints and cryptographically validates token pairs.
type TokenIssuer interface {
	IssuePair(ctx context.Context, tokenizer string, accountID uuid.UUID, roles, permissions []string) (*Authenticated, error)
	ValidateAccessToken(ctx context.Context, accountID uuid.UUID, token string) (*Claims, error)
	ValidateRefreshToken(ctx context.Context, accountID uuid.UUID, token string) (*Claims, error)
}

// Clock returns the current time. Every component takes one so tests can
// pin time.
type Clock func() time.Time

func normalizeClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] BULWARK "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] BULWARK "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] BULWARK "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] BULWARK "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}
