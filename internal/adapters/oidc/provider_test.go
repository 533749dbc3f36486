package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/target/notekeeper/internal/ports"
)

// newDiscoveryServer serves a discovery document whose token endpoint always fails.
func newDiscoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/.well-known/openid-configuration":
			_ = json.NewEncoder(w).Encode(DiscoveryDocument{
				Issuer:                srv.URL,
				AuthorizationEndpoint: "https://idp.example.com/auth",
				TokenEndpoint:         srv.URL + "/token",
				UserinfoEndpoint:      srv.URL + "/userinfo",
				JwksURI:               srv.URL + "/jwks",
			})
		default:
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func createTestProvider(t *testing.T, scope string) *Provider {
	t.Helper()
	srv := newDiscoveryServer(t)
	p, err := NewProvider(context.Background(), ProviderConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		RedirectURL:  "http://localhost:8080/auth/sso/callback",
		Scope:        scope,
		DiscoveryURL: srv.URL + "/.well-known/openid-configuration",
	})
	require.NoError(t, err)
	return p
}

func TestNewProvider_Success(t *testing.T) {
	p := createTestProvider(t, "profile email")
	assert.Equal(t, "https://idp.example.com/auth", p.config.Endpoint.AuthURL)
	assert.Equal(t, []string{"openid", "profile", "email"}, p.config.Scopes)

	var _ ports.AuthProvider = p
}

func TestNewProvider_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config ProviderConfig
		errMsg string
	}{
		{"missing client ID", ProviderConfig{ClientSecret: "s", RedirectURL: "r", DiscoveryURL: "d"}, "client ID is required"},
		{"missing client secret", ProviderConfig{ClientID: "c", RedirectURL: "r", DiscoveryURL: "d"}, "client secret is required"},
		{"missing redirect URL", ProviderConfig{ClientID: "c", ClientSecret: "s", DiscoveryURL: "d"}, "redirect URL is required"},
		{"missing discovery URL", ProviderConfig{ClientID: "c", ClientSecret: "s", RedirectURL: "r"}, "discovery URL is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewProvider(context.Background(), tt.config)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestProvider_Begin(t *testing.T) {
	p := createTestProvider(t, "openid email")

	authURL, state, nonce, err := p.Begin(context.Background(), ports.BeginInput{RedirectURL: "/dashboard"})
	require.NoError(t, err)
	assert.NotEmpty(t, state)
	assert.NotEmpty(t, nonce)
	assert.NotEqual(t, state, nonce)
	assert.Contains(t, authURL, "https://idp.example.com/auth")
	assert.Contains(t, authURL, "client_id=test-client")
	assert.Contains(t, authURL, "state="+state)
	assert.Contains(t, authURL, "nonce="+nonce)

	_, _, _, err = p.Begin(context.Background(), ports.BeginInput{})
	require.Error(t, err)
}

func TestProvider_Exchange_ValidationErrors(t *testing.T) {
	p := createTestProvider(t, "openid")
	ctx := context.Background()

	_, err := p.Exchange(ctx, ports.ExchangeInput{State: "s", Nonce: "n"})
	require.ErrorContains(t, err, "authorization code is required")
	_, err = p.Exchange(ctx, ports.ExchangeInput{Code: "c", Nonce: "n"})
	require.ErrorContains(t, err, "state is required")
	_, err = p.Exchange(ctx, ports.ExchangeInput{Code: "c", State: "s"})
	require.ErrorContains(t, err, "nonce is required")
}

func TestProvider_Exchange_TokenEndpointFailure(t *testing.T) {
	p := createTestProvider(t, "openid")
	_, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "c", State: "s", Nonce: "n"})
	require.ErrorContains(t, err, "exchange code for token")
}

func TestGetIDTokenFromToken(t *testing.T) {
	tok := (&oauth2.Token{}).WithExtra(map[string]any{"id_token": "abc.def.ghi"})
	idTok, err := getIDTokenFromToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "abc.def.ghi", idTok)

	_, err = getIDTokenFromToken((&oauth2.Token{}).WithExtra(map[string]any{"not_id": "x"}))
	require.ErrorContains(t, err, "missing id_token")

	_, err = getIDTokenFromToken(nil)
	require.ErrorContains(t, err, "nil token")
}

func TestIdentityFromClaims(t *testing.T) {
	exp := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	yes, no := true, false

	id, err := identityFromClaims("sub-1", claims{Email: " Ann@Example.com ", EmailVerified: &yes, Name: "Ann"}, exp)
	require.NoError(t, err)
	assert.Equal(t, "sub-1", id.Subject)
	assert.Equal(t, "ann@example.com", id.Email)
	assert.Equal(t, "Ann", id.Name)
	assert.Equal(t, exp, id.ExpiresAt)

	_, err = identityFromClaims("sub-1", claims{Email: "a@example.com"}, exp)
	require.NoError(t, err)

	_, err = identityFromClaims("sub-1", claims{Email: "a@example.com", EmailVerified: &no}, exp)
	require.ErrorIs(t, err, ErrUnverifiedEmail)

	_, err = identityFromClaims("", claims{Email: "a@example.com"}, exp)
	require.Error(t, err)
	_, err = identityFromClaims("sub-1", claims{}, exp)
	require.Error(t, err)
}

func TestClaimsFill(t *testing.T) {
	yes := true
	c := claims{Name: "keep"}
	c.fill(claims{Email: "e@example.com", EmailVerified: &yes, Name: "other"})
	assert.Equal(t, "e@example.com", c.Email)
	assert.Equal(t, "keep", c.Name)
	require.NotNil(t, c.EmailVerified)
}
