package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atd-dts/mds-ingest/pkg/types"
)

func bearerProfile(token string) types.ProviderProfile {
	return types.ProviderProfile{
		Name:       "sample_co",
		ProviderID: 7,
		Version:    types.V030,
		APIBaseURL: "http://provider.local/mds",
		AuthType:   types.AuthBearer,
		Token:      token,
	}
}

// TestAuthenticateBearer tests that a static token becomes a Bearer header.
func TestAuthenticateBearer(t *testing.T) {
	c, err := New(bearerProfile("tok-abc"))
	require.NoError(t, err)

	require.NoError(t, c.Authenticate(context.Background()))
	assert.Equal(t, "Bearer tok-abc", c.headers.Get("Authorization"))
}

// TestAuthenticateBearerMissingToken tests that an empty token is an auth failure.
func TestAuthenticateBearerMissingToken(t *testing.T) {
	c, err := New(bearerProfile(""))
	require.NoError(t, err)

	err = c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailure)
}

// TestAuthenticateBasic tests the basic credential encoding.
func TestAuthenticateBasic(t *testing.T) {
	profile := bearerProfile("")
	profile.AuthType = types.AuthBasic
	profile.Username = "atd"
	profile.Password = "s3cret"

	c, err := New(profile)
	require.NoError(t, err)
	require.NoError(t, c.Authenticate(context.Background()))

	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("atd:s3cret"))
	assert.Equal(t, want, c.headers.Get("Authorization"))
}

// TestAuthenticateOAuth tests the client-credentials exchange.
func TestAuthenticateOAuth(t *testing.T) {
	var got tokenRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(tokenResponse{AccessToken: "issued-token", TokenType: "Bearer", ExpiresIn: 3600})
	}))
	defer srv.Close()

	profile := bearerProfile("")
	profile.AuthType = types.AuthOAuth
	profile.TokenURL = srv.URL
	profile.ClientID = "client-1"
	profile.ClientSecret = "secret-1"
	profile.Audience = "https://provider.local/api"
	profile.Scope = "trips:read"

	c, err := New(profile)
	require.NoError(t, err)
	require.NoError(t, c.Authenticate(context.Background()))

	assert.Equal(t, "client-1", got.ClientID)
	assert.Equal(t, "secret-1", got.ClientSecret)
	assert.Equal(t, "client_credentials", got.GrantType)
	assert.Equal(t, "https://provider.local/api", got.Audience)
	assert.Equal(t, "trips:read", got.Scope)
	assert.Equal(t, "Bearer issued-token", c.headers.Get("Authorization"))
}

// TestAuthenticateOAuthRejected tests that a failed exchange surfaces as an auth failure.
func TestAuthenticateOAuthRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"access_denied"}`, http.StatusForbidden)
	}))
	defer srv.Close()

	profile := bearerProfile("")
	profile.AuthType = types.AuthOAuth
	profile.TokenURL = srv.URL
	profile.ClientID = "client-1"
	profile.ClientSecret = "wrong"

	c, err := New(profile)
	require.NoError(t, err)

	err = c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailure)
	assert.Contains(t, err.Error(), "403")
}

// TestAuthenticateOAuthEmptyToken tests that an exchange without an access
// token is rejected.
func TestAuthenticateOAuthEmptyToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(tokenResponse{})
	}))
	defer srv.Close()

	profile := bearerProfile("")
	profile.AuthType = types.AuthOAuth
	profile.TokenURL = srv.URL

	c, err := New(profile)
	require.NoError(t, err)

	err = c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailure)
}

// TestAuthenticateCustom tests that a registered hook supplies headers.
func TestAuthenticateCustom(t *testing.T) {
	profile := bearerProfile("")
	profile.AuthType = types.AuthCustom

	fn := func(ctx context.Context, p types.ProviderProfile) (http.Header, error) {
		h := make(http.Header)
		h.Set("X-Api-Key", "key-for-"+p.Name)
		return h, nil
	}

	c, err := New(profile, WithAuthFunc(fn))
	require.NoError(t, err)
	require.NoError(t, c.Authenticate(context.Background()))

	assert.Equal(t, "key-for-sample_co", c.headers.Get("X-Api-Key"))
}

// TestAuthenticateCustomMissingFunc tests that the custom method without a
// hook is an auth failure.
func TestAuthenticateCustomMissingFunc(t *testing.T) {
	profile := bearerProfile("")
	profile.AuthType = types.AuthCustom

	c, err := New(profile)
	require.NoError(t, err)

	err = c.Authenticate(context.Background())
	assert.ErrorIs(t, err, ErrAuthFailure)
}
