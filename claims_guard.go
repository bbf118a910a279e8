package bulwark

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type protectedClaimsSnapshot struct {
	subject    string
	issuer     string
	id         string
	audience   []string
	issuedAt   time.Time
	expiresAt  time.Time
	generation int
	tokenizer  string
	use        string
	pairID     string
}

func captureProtectedClaims(claims *Claims) protectedClaimsSnapshot {
	var audienceCopy []string
	if len(claims.Audience) > 0 {
		audienceCopy = append(audienceCopy, claims.Audience...)
	}

	snap := protectedClaimsSnapshot{
		subject:    claims.Subject,
		issuer:     claims.Issuer,
		id:         claims.ID,
		audience:   audienceCopy,
		generation: claims.Generation,
		tokenizer:  claims.Tokenizer,
		use:        claims.Use,
		pairID:     claims.PairID,
	}
	if claims.IssuedAt != nil {
		snap.issuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		snap.expiresAt = claims.ExpiresAt.Time
	}
	return snap
}

func (snap protectedClaimsSnapshot) validate(claims *Claims) error {
	switch {
	case claims.Subject != snap.subject:
		return protectedClaimViolation("sub")
	case claims.Issuer != snap.issuer:
		return protectedClaimViolation("iss")
	case claims.ID != snap.id:
		return protectedClaimViolation("jti")
	case !audienceEqual(claims.Audience, snap.audience):
		return protectedClaimViolation("aud")
	case !dateEqual(claims.IssuedAt, snap.issuedAt):
		return protectedClaimViolation("iat")
	case !dateEqual(claims.ExpiresAt, snap.expiresAt):
		return protectedClaimViolation("exp")
	case claims.Generation != snap.generation:
		return protectedClaimViolation("gen")
	case claims.Tokenizer != snap.tokenizer:
		return protectedClaimViolation("tkn")
	case claims.Use != snap.use:
		return protectedClaimViolation("use")
	case claims.PairID != snap.pairID:
		return protectedClaimViolation("sid")
	}
	return nil
}

func dateEqual(date *jwt.NumericDate, expected time.Time) bool {
	if date == nil {
		return expected.IsZero()
	}
	return date.Time.Equal(expected)
}

func audienceEqual(a jwt.ClaimStrings, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func protectedClaimViolation(field string) error {
	clone := ErrImmutableClaimMutation.Clone()
	if clone == nil {
		return ErrImmutableClaimMutation
	}
	clone.Message = fmt.Sprintf("immutable claim mutated: %s", field)
	return clone.WithMetadata(map[string]any{"claim": field})
}
