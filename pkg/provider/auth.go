package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/atd-dts/mds-ingest/pkg/types"
)

// AuthFunc supplies request headers for providers whose authentication
// does not fit the built-in methods. It is invoked once per
// Authenticate call.
type AuthFunc func(ctx context.Context, profile types.ProviderProfile) (http.Header, error)

// tokenRequest is the client-credentials exchange body. Providers that
// delegate to an identity platform expect a JSON document, not a form.
type tokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	GrantType    string `json:"grant_type"`
	Audience     string `json:"audience,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Authenticate resolves the profile's auth method into request headers.
// For token-based methods this may perform a network exchange; for the
// rest it is purely local. It must be called before the first data
// request and may be called again to refresh a token.
func (c *Client) Authenticate(ctx context.Context) error {
	switch c.profile.AuthType {
	case types.AuthBearer:
		if c.profile.Token == "" {
			return fmt.Errorf("%w: bearer auth requires a token", ErrAuthFailure)
		}
		c.headers.Set("Authorization", "Bearer "+c.profile.Token)

	case types.AuthBasic:
		if c.profile.Username == "" {
			return fmt.Errorf("%w: basic auth requires a username", ErrAuthFailure)
		}
		cred := c.profile.Username + ":" + c.profile.Password
		c.headers.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(cred)))

	case types.AuthOAuth:
		token, err := c.exchangeToken(ctx)
		if err != nil {
			return err
		}
		c.headers.Set("Authorization", "Bearer "+token)

	case types.AuthCustom:
		if c.authFn == nil {
			return fmt.Errorf("%w: no custom authenticator registered for %q", ErrAuthFailure, c.profile.Name)
		}
		hdrs, err := c.authFn(ctx, c.profile)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAuthFailure, err)
		}
		for key, vals := range hdrs {
			for _, v := range vals {
				c.headers.Set(key, v)
			}
		}

	default:
		return fmt.Errorf("%w: unknown auth method %q", ErrAuthFailure, c.profile.AuthType)
	}

	c.authenticated = true
	return nil
}

// exchangeToken performs the client-credentials grant against the
// profile's token endpoint and returns the access token.
func (c *Client) exchangeToken(ctx context.Context) (string, error) {
	if c.profile.TokenURL == "" {
		return "", fmt.Errorf("%w: oauth auth requires a token url", ErrAuthFailure)
	}

	body, err := json.Marshal(tokenRequest{
		ClientID:     c.profile.ClientID,
		ClientSecret: c.profile.ClientSecret,
		GrantType:    "client_credentials",
		Audience:     c.profile.Audience,
		Scope:        c.profile.Scope,
	})
	if err != nil {
		return "", fmt.Errorf("encoding token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.profile.TokenURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: token exchange: %v", ErrAuthFailure, err)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return "", fmt.Errorf("%w: token endpoint returned %d: %s", ErrAuthFailure, res.StatusCode, bytes.TrimSpace(raw))
	}

	var tok tokenResponse
	if err := json.NewDecoder(res.Body).Decode(&tok); err != nil {
		return "", fmt.Errorf("%w: decoding token response: %v", ErrAuthFailure, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: token endpoint returned no access token", ErrAuthFailure)
	}
	return tok.AccessToken, nil
}
