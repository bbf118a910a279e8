package social

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-bulwark"
)

const (
	defaultJWKSRefreshInterval = time.Hour
	defaultJWKSRateLimit       = 5 * time.Minute
	defaultJWKSTimeout         = 10 * time.Second
)

// IDTokenConfig describes an OpenID Connect issuer.
type IDTokenConfig struct {
	Provider string
	ClientID string
	JWKSURL  string
	Issuers  []string
	// UsernameFallback allows preferred_username as email when email is absent.
	UsernameFallback bool
}

// IDTokenValidator verifies RS256 ID tokens against a remote JWKS.
type IDTokenValidator struct {
	cfg     IDTokenConfig
	client  *http.Client
	logger  bulwark.Logger
	now     func() time.Time
	mu      sync.Mutex
	jwks    *keyfunc.JWKS
	keyfunc jwt.Keyfunc
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email             string `json:"email"`
	EmailVerified     any    `json:"email_verified"`
	PreferredUsername string `json:"preferred_username"`
	// DomainOwnerVerified is the Entra ID claim set when the tenant owns
	// the email domain.
	DomainOwnerVerified any `json:"xms_edov"`
}

func NewIDTokenValidator(cfg IDTokenConfig) (*IDTokenValidator, error) {
	if cfg.Provider == "" {
		return nil, fmt.Errorf("id token validator requires a provider name")
	}
	if cfg.ClientID == "" {
		return nil, bulwark.Fail(ErrProviderNotConfigured, nil, map[string]any{"provider": cfg.Provider})
	}
	return &IDTokenValidator{
		cfg:    cfg,
		client: &http.Client{Timeout: defaultJWKSTimeout},
		logger: bulwark.NewSlogLogger(nil),
		now:    time.Now,
	}, nil
}

// WithKeyfunc replaces the remote JWKS lookup.
func (v *IDTokenValidator) WithKeyfunc(fn jwt.Keyfunc) *IDTokenValidator {
	v.mu.Lock()
	v.keyfunc = fn
	v.mu.Unlock()
	return v
}

func (v *IDTokenValidator) WithHTTPClient(client *http.Client) *IDTokenValidator {
	if client != nil {
		v.client = client
	}
	return v
}

func (v *IDTokenValidator) WithLogger(logger bulwark.Logger) *IDTokenValidator {
	if logger != nil {
		v.logger = logger
	}
	return v
}

func (v *IDTokenValidator) WithClock(now func() time.Time) *IDTokenValidator {
	if now != nil {
		v.now = now
	}
	return v
}

func (v *IDTokenValidator) Provider() string {
	return v.cfg.Provider
}

func (v *IDTokenValidator) Validate(ctx context.Context, assertion string) (*Identity, error) {
	kf, err := v.lookup(ctx)
	if err != nil {
		return nil, err
	}

	claims := &idTokenClaims{}
	_, err = jwt.ParseWithClaims(assertion, claims, kf,
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(v.cfg.ClientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, InvalidAssertion(v.cfg.Provider, "id token rejected", err)
	}

	if !v.trustedIssuer(claims.Issuer) {
		return nil, InvalidAssertion(v.cfg.Provider, "untrusted issuer", nil)
	}

	if claims.Subject == "" {
		return nil, InvalidAssertion(v.cfg.Provider, "missing subject", nil)
	}

	email := claims.Email
	verified := truthy(claims.EmailVerified) || truthy(claims.DomainOwnerVerified)
	if email == "" && v.cfg.UsernameFallback && strings.Contains(claims.PreferredUsername, "@") {
		// preferred_username is tenant controlled and only counts as
		// verified through the domain owner claim.
		email = claims.PreferredUsername
		verified = truthy(claims.DomainOwnerVerified)
	}
	if email == "" {
		return nil, InvalidAssertion(v.cfg.Provider, "missing email", nil)
	}

	return &Identity{
		Provider:      v.cfg.Provider,
		ExternalID:    claims.Subject,
		Email:         strings.ToLower(strings.TrimSpace(email)),
		EmailVerified: verified,
	}, nil
}

// Close stops the background JWKS refresh.
func (v *IDTokenValidator) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.jwks != nil {
		v.jwks.EndBackground()
		v.jwks = nil
	}
	return nil
}

func (v *IDTokenValidator) lookup(ctx context.Context) (jwt.Keyfunc, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.keyfunc != nil {
		return v.keyfunc, nil
	}

	jwks, err := keyfunc.Get(v.cfg.JWKSURL, keyfunc.Options{
		Client:            v.client,
		Ctx:               context.WithoutCancel(ctx),
		RefreshInterval:   defaultJWKSRefreshInterval,
		RefreshRateLimit:  defaultJWKSRateLimit,
		RefreshTimeout:    defaultJWKSTimeout,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			v.logger.Warn("jwks refresh failed for %s: %v", v.cfg.Provider, err)
		},
	})
	if err != nil {
		return nil, &ProviderError{
			Provider:  v.cfg.Provider,
			Operation: "jwks",
			Err:       err,
		}
	}

	v.jwks = jwks
	v.keyfunc = jwks.Keyfunc
	return v.keyfunc, nil
}

func (v *IDTokenValidator) trustedIssuer(issuer string) bool {
	if len(v.cfg.Issuers) == 0 {
		return true
	}
	for _, candidate := range v.cfg.Issuers {
		if candidate == issuer {
			return true
		}
	}
	return false
}

func truthy(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true")
	default:
		return false
	}
}
