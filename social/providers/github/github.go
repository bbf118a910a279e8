package github

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-bulwark"
	"github.com/goliatone/go-bulwark/social"
)

const (
	DefaultAPIBaseURL = "https://api.github.com"
)

// Validator treats the assertion as a GitHub access token and resolves
// the identity behind it through the REST API.
type Validator struct {
	appName    string
	apiBaseURL string
	httpClient *http.Client
}

var _ social.Validator = (*Validator)(nil)

type user struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

type email struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// New returns a validator that identifies itself as appName.
func New(appName string) (*Validator, error) {
	if strings.TrimSpace(appName) == "" {
		return nil, bulwark.Fail(social.ErrProviderNotConfigured, nil, map[string]any{"provider": social.ProviderGitHub})
	}
	return &Validator{
		appName:    appName,
		apiBaseURL: DefaultAPIBaseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (v *Validator) WithAPIBaseURL(base string) *Validator {
	if base != "" {
		v.apiBaseURL = strings.TrimRight(base, "/")
	}
	return v
}

func (v *Validator) WithHTTPClient(client *http.Client) *Validator {
	if client != nil {
		v.httpClient = client
	}
	return v
}

func (v *Validator) Provider() string {
	return social.ProviderGitHub
}

func (v *Validator) Validate(ctx context.Context, assertion string) (*social.Identity, error) {
	u, err := v.fetchUser(ctx, assertion)
	if err != nil {
		return nil, err
	}
	if u.ID == 0 {
		return nil, social.InvalidAssertion(social.ProviderGitHub, "missing user id", nil)
	}

	primary, verified, err := v.fetchPrimaryEmail(ctx, assertion)
	if err != nil {
		return nil, err
	}
	if primary == "" {
		return nil, social.InvalidAssertion(social.ProviderGitHub, "missing email", nil)
	}

	return &social.Identity{
		Provider:      social.ProviderGitHub,
		ExternalID:    strconv.FormatInt(u.ID, 10),
		Email:         strings.ToLower(primary),
		EmailVerified: verified,
	}, nil
}

func (v *Validator) fetchUser(ctx context.Context, token string) (*user, error) {
	var out user
	if err := v.get(ctx, token, "/user", "user", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (v *Validator) fetchPrimaryEmail(ctx context.Context, token string) (string, bool, error) {
	var emails []email
	if err := v.get(ctx, token, "/user/emails", "emails", &emails); err != nil {
		return "", false, err
	}
	for _, e := range emails {
		if e.Primary {
			return e.Email, e.Verified, nil
		}
	}
	return "", false, nil
}

func (v *Validator) get(ctx context.Context, token, path, operation string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.apiBaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", v.appName)

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return &social.ProviderError{Provider: social.ProviderGitHub, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return social.InvalidAssertion(social.ProviderGitHub, "token rejected", &social.ProviderError{
			Provider:  social.ProviderGitHub,
			Operation: operation,
			Status:    resp.StatusCode,
		})
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &social.ProviderError{
			Provider:    social.ProviderGitHub,
			Operation:   operation,
			Status:      resp.StatusCode,
			Description: fmt.Sprintf("unexpected status %d", resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &social.ProviderError{Provider: social.ProviderGitHub, Operation: operation, Err: err}
	}
	return nil
}
