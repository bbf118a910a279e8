package bulwark

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultAccessTokenTTL  = 30 * time.Minute
	DefaultRefreshTokenTTL = 24 * time.Hour
)

// TokenStrategy mints ES256 tokens with the current signing generation and
// validates them against the generation named in the kid header.
type TokenStrategy struct {
	keys       *SigningKeyStore
	accessTTL  time.Duration
	refreshTTL time.Duration
	clock      Clock
	logger     Logger

	mu         sync.RWMutex
	tokenizers map[string]Tokenizer
}

var _ TokenIssuer = (*TokenStrategy)(nil)

// NewTokenStrategy registers the default and compact tokenizers for the
// given issuer and audience.
func NewTokenStrategy(keys *SigningKeyStore, issuer string, audience ...string) *TokenStrategy {
	s := &TokenStrategy{
		keys:       keys,
		accessTTL:  DefaultAccessTokenTTL,
		refreshTTL: DefaultRefreshTokenTTL,
		clock:      time.Now,
		logger:     defLogger{},
		tokenizers: map[string]Tokenizer{},
	}
	s.WithTokenizer(DefaultTokenizer(issuer, audience...))
	s.WithTokenizer(CompactTokenizer(issuer, audience...))
	return s
}

func (s *TokenStrategy) WithAccessTTL(d time.Duration) *TokenStrategy {
	if d > 0 {
		s.accessTTL = d
	}
	return s
}

func (s *TokenStrategy) WithRefreshTTL(d time.Duration) *TokenStrategy {
	if d > 0 {
		s.refreshTTL = d
	}
	return s
}

func (s *TokenStrategy) WithClock(c Clock) *TokenStrategy {
	s.clock = normalizeClock(c)
	return s
}

func (s *TokenStrategy) WithLogger(l Logger) *TokenStrategy {
	s.logger = normalizeLogger(l)
	return s
}

// WithTokenizer registers or replaces a tokenizer by name.
func (s *TokenStrategy) WithTokenizer(t Tokenizer) *TokenStrategy {
	if t.Name == "" {
		return s
	}
	s.mu.Lock()
	s.tokenizers[t.Name] = t
	s.mu.Unlock()
	return s
}

// RefreshTTL is the lifetime of refresh tokens.
func (s *TokenStrategy) RefreshTTL() time.Duration {
	return s.refreshTTL
}

// Tokenizer resolves a tokenizer by name. An empty name resolves the
// default tokenizer.
func (s *TokenStrategy) Tokenizer(name string) (Tokenizer, error) {
	if name == "" {
		name = DefaultTokenizerName
	}
	s.mu.RLock()
	t, ok := s.tokenizers[name]
	s.mu.RUnlock()
	if !ok {
		return Tokenizer{}, Fail(ErrUnknownTokenizer, nil, map[string]any{"tokenizer": name})
	}
	return t, nil
}

// IssuePair mints a refresh token and an access token bound to it.
func (s *TokenStrategy) IssuePair(ctx context.Context, tokenizer string, accountID uuid.UUID, roles, permissions []string) (*Authenticated, error) {
	pairID := uuid.NewString()

	refresh, err := s.CreateRefreshToken(ctx, tokenizer, accountID, pairID)
	if err != nil {
		return nil, err
	}

	access, err := s.CreateAccessToken(ctx, tokenizer, accountID, roles, permissions, pairID)
	if err != nil {
		return nil, err
	}

	return &Authenticated{AccessToken: access, RefreshToken: refresh}, nil
}

// CreateAccessToken signs an access token. pairID is the jti of the
// refresh token issued alongside it.
func (s *TokenStrategy) CreateAccessToken(ctx context.Context, tokenizer string, accountID uuid.UUID, roles, permissions []string, pairID string) (string, error) {
	claims := &Claims{
		Roles:       append([]string(nil), roles...),
		Permissions: append([]string(nil), permissions...),
		Use:         TokenUseAccess,
		PairID:      pairID,
	}
	return s.sign(ctx, tokenizer, accountID, claims, s.accessTTL)
}

// CreateRefreshToken signs a refresh token whose jti is pairID. An empty
// pairID gets a fresh identifier.
func (s *TokenStrategy) CreateRefreshToken(ctx context.Context, tokenizer string, accountID uuid.UUID, pairID string) (string, error) {
	if pairID == "" {
		pairID = uuid.NewString()
	}
	claims := &Claims{Use: TokenUseRefresh}
	claims.ID = pairID
	return s.sign(ctx, tokenizer, accountID, claims, s.refreshTTL)
}

func (s *TokenStrategy) sign(ctx context.Context, tokenizerName string, accountID uuid.UUID, claims *Claims, ttl time.Duration) (string, error) {
	tokenizer, err := s.Tokenizer(tokenizerName)
	if err != nil {
		return "", err
	}

	key, err := s.keys.CurrentGeneration(ctx)
	if err != nil {
		return "", err
	}

	now := s.clock()
	claims.Subject = accountID.String()
	claims.Issuer = tokenizer.Issuer
	claims.Audience = append(jwt.ClaimStrings(nil), tokenizer.Audience...)
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	claims.Generation = key.Generation
	claims.Tokenizer = tokenizer.Name

	snapshot := captureProtectedClaims(claims)
	if err := normalizeClaimsDecorator(tokenizer.Decorator).Decorate(ctx, accountID, claims); err != nil {
		return "", err
	}
	if err := snapshot.validate(claims); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = strconv.Itoa(key.Generation)

	signed, err := token.SignedString(key.PrivateKey)
	if err != nil {
		return "", Fail(ErrInvalidToken, err, map[string]any{"operation": "sign"})
	}
	return signed, nil
}

// ValidateAccessToken verifies signature, expiry, issuer, audience and that
// the subject is accountID.
func (s *TokenStrategy) ValidateAccessToken(ctx context.Context, accountID uuid.UUID, token string) (*Claims, error) {
	return s.validate(ctx, accountID, token, TokenUseAccess)
}

// ValidateRefreshToken is the refresh token counterpart of
// ValidateAccessToken.
func (s *TokenStrategy) ValidateRefreshToken(ctx context.Context, accountID uuid.UUID, token string) (*Claims, error) {
	return s.validate(ctx, accountID, token, TokenUseRefresh)
}

// Parse validates a token without checking its subject.
func (s *TokenStrategy) Parse(ctx context.Context, token, use string) (*Claims, error) {
	return s.verify(ctx, token, use)
}

func (s *TokenStrategy) validate(ctx context.Context, accountID uuid.UUID, token, use string) (*Claims, error) {
	claims, err := s.verify(ctx, token, use)
	if err != nil {
		return nil, err
	}

	if claims.Subject != accountID.String() {
		return nil, Fail(ErrSubjectMismatch, nil, map[string]any{"use": use})
	}

	return claims, nil
}

func (s *TokenStrategy) verify(ctx context.Context, token, use string) (*Claims, error) {
	var keyErr error
	headerGeneration := 0

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		generation, err := strconv.Atoi(kid)
		if err != nil || generation <= 0 {
			keyErr = Fail(ErrInvalidToken, err, map[string]any{"reason": "missing signing generation"})
			return nil, keyErr
		}
		headerGeneration = generation

		key, err := s.keys.Generation(ctx, generation)
		if err != nil {
			keyErr = err
			return nil, err
		}
		return key.PublicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithTimeFunc(s.clock),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	if keyErr != nil {
		return nil, keyErr
	}

	if err != nil {
		return nil, s.mapValidationError(err)
	}

	if claims.Use != use {
		return nil, Fail(ErrInvalidToken, nil, map[string]any{"reason": "unexpected token use", "use": claims.Use})
	}

	if claims.Generation != headerGeneration {
		return nil, Fail(ErrInvalidToken, nil, map[string]any{"reason": "generation mismatch"})
	}

	tokenizer, err := s.Tokenizer(claims.Tokenizer)
	if err != nil {
		return nil, err
	}

	if claims.Issuer != tokenizer.Issuer {
		return nil, Fail(ErrInvalidToken, nil, map[string]any{"reason": "issuer mismatch"})
	}

	if !tokenizer.acceptsAudience(claims.Audience) {
		return nil, Fail(ErrInvalidToken, nil, map[string]any{"reason": "audience mismatch"})
	}

	return claims, nil
}

func (s *TokenStrategy) mapValidationError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return Fail(ErrInvalidSignature, err, nil)
	case errors.Is(err, jwt.ErrTokenExpired):
		return Fail(ErrTokenExpired, err, nil)
	default:
		s.logger.Debug("token validation failed: %v", err)
		return Fail(ErrInvalidToken, err, nil)
	}
}
