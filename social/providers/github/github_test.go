package github_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-bulwark"
	"github.com/goliatone/go-bulwark/social"
	"github.com/goliatone/go-bulwark/social/providers/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	authorized := func(w http.ResponseWriter, r *http.Request) bool {
		if r.Header.Get("Authorization") != "Bearer "+token {
			w.WriteHeader(http.StatusUnauthorized)
			return false
		}
		assert.Equal(t, "bulwark-test", r.Header.Get("User-Agent"))
		return true
	}
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		w.Write([]byte(`{"id": 4242, "login": "octo"}`))
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		if !authorized(w, r) {
			return
		}
		w.Write([]byte(`[{"email":"alt@example.com","primary":false,"verified":true},{"email":"Octo@Example.com","primary":true,"verified":true}]`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestValidatorResolvesPrimaryEmail(t *testing.T) {
	srv := newServer(t, "gho_valid")
	v, err := github.New("bulwark-test")
	require.NoError(t, err)
	v.WithAPIBaseURL(srv.URL).WithHTTPClient(srv.Client())

	identity, err := v.Validate(context.Background(), "gho_valid")
	require.NoError(t, err)
	assert.Equal(t, "4242", identity.ExternalID)
	assert.Equal(t, "octo@example.com", identity.Email)
	assert.True(t, identity.EmailVerified)
}

func TestValidatorRejectsBadToken(t *testing.T) {
	srv := newServer(t, "gho_valid")
	v, err := github.New("bulwark-test")
	require.NoError(t, err)
	v.WithAPIBaseURL(srv.URL).WithHTTPClient(srv.Client())

	_, err = v.Validate(context.Background(), "gho_other")
	assert.True(t, bulwark.IsKind(err, social.ErrInvalidAssertion))
}

func TestNewRequiresAppName(t *testing.T) {
	_, err := github.New(" ")
	assert.True(t, bulwark.IsKind(err, social.ErrProviderNotConfigured))
}
