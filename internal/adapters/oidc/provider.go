// Package oidc implements federated sign-in against an OpenID Connect provider.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/target/notekeeper/internal/data/cryptoutil"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/ports"
)

// ErrUnverifiedEmail is returned when the IdP reports the email as unverified.
var ErrUnverifiedEmail = errors.New("identity provider email is not verified")

// Provider implements ports.AuthProvider using OIDC/OAuth2.
type Provider struct {
	config     *oauth2.Config
	httpClient *http.Client

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

// ProviderConfig holds configuration for the OIDC provider.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // defaults to a client with a 30s timeout
}

// DiscoveryDocument is the subset of the OIDC discovery document we read.
type DiscoveryDocument struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	JwksURI               string `json:"jwks_uri"`
}

// NewProvider creates a new OIDC provider, fetching the discovery document once.
func NewProvider(ctx context.Context, config ProviderConfig) (*Provider, error) {
	switch {
	case config.ClientID == "":
		return nil, errors.New("client ID is required")
	case config.ClientSecret == "":
		return nil, errors.New("client secret is required")
	case config.RedirectURL == "":
		return nil, errors.New("redirect URL is required")
	case config.DiscoveryURL == "":
		return nil, errors.New("discovery URL is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = gooidc.ClientContext(ctx, httpClient)
	issuer := strings.TrimSuffix(config.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	scopes := strings.Fields(config.Scope)
	if !slices.Contains(scopes, gooidc.ScopeOpenID) {
		scopes = append([]string{gooidc.ScopeOpenID}, scopes...)
	}

	return &Provider{
		httpClient:   httpClient,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: config.ClientID}),
		config: &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			RedirectURL:  config.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
	}, nil
}

// Begin returns the IdP authorization URL with a fresh state and nonce.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state, err := cryptoutil.RandomToken(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := cryptoutil.RandomToken(24)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	// redirect_uri must match the configured RedirectURL exactly, so it is not overridden
	authURL := p.config.AuthCodeURL(state,
		gooidc.Nonce(nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
	return authURL, state, nonce, nil
}

// Exchange trades the authorization code for tokens and returns the verified identity.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.FederatedIdentity, error) {
	switch {
	case in.Code == "":
		return domainauth.FederatedIdentity{}, errors.New("authorization code is required")
	case in.State == "":
		return domainauth.FederatedIdentity{}, errors.New("state is required")
	case in.Nonce == "":
		return domainauth.FederatedIdentity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.httpClient)
	token, err := p.config.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.FederatedIdentity{}, fmt.Errorf("exchange code for token: %w", err)
	}

	rawID, err := getIDTokenFromToken(token)
	if err != nil {
		return domainauth.FederatedIdentity{}, err
	}
	idTok, err := p.verifier.Verify(ctx, rawID)
	if err != nil {
		return domainauth.FederatedIdentity{}, fmt.Errorf("verify id_token: %w", err)
	}
	if idTok.Nonce != in.Nonce {
		return domainauth.FederatedIdentity{}, errors.New("invalid nonce")
	}

	var c claims
	if err := idTok.Claims(&c); err != nil {
		return domainauth.FederatedIdentity{}, fmt.Errorf("parse id_token claims: %w", err)
	}
	if c.Email == "" {
		ui, uiErr := p.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if uiErr != nil {
			return domainauth.FederatedIdentity{}, fmt.Errorf("get user info: %w", uiErr)
		}
		var extra claims
		if err := ui.Claims(&extra); err != nil {
			return domainauth.FederatedIdentity{}, fmt.Errorf("decode user info: %w", err)
		}
		c.fill(extra)
	}

	expiresAt := idTok.Expiry
	if !token.Expiry.IsZero() {
		expiresAt = token.Expiry
	}
	return identityFromClaims(idTok.Subject, c, expiresAt)
}

// claims are the standard profile claims read from the id_token or userinfo.
type claims struct {
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

func (c *claims) fill(other claims) {
	if c.Email == "" {
		c.Email = other.Email
		c.EmailVerified = other.EmailVerified
	}
	if c.Name == "" {
		c.Name = other.Name
	}
}

// identityFromClaims builds the federated identity. A missing email_verified
// claim is accepted; an explicit false is not.
func identityFromClaims(subject string, c claims, expiresAt time.Time) (domainauth.FederatedIdentity, error) {
	if subject == "" {
		return domainauth.FederatedIdentity{}, errors.New("id_token has no subject")
	}
	if c.Email == "" {
		return domainauth.FederatedIdentity{}, errors.New("identity provider returned no email")
	}
	if c.EmailVerified != nil && !*c.EmailVerified {
		return domainauth.FederatedIdentity{}, ErrUnverifiedEmail
	}
	return domainauth.FederatedIdentity{
		Subject:   subject,
		Email:     strings.ToLower(strings.TrimSpace(c.Email)),
		Name:      c.Name,
		ExpiresAt: expiresAt,
	}, nil
}

// getIDTokenFromToken extracts the id_token from oauth2.Token.
func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	s, ok := tok.Extra("id_token").(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
