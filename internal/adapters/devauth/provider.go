// Package devauth provides a config-driven AuthProvider for local development.
// It skips the IdP round trip and always signs in the configured identity.
package devauth

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/target/notekeeper/internal/data/cryptoutil"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"github.com/target/notekeeper/internal/ports"
)

// CallbackPath is where Begin sends the browser.
const CallbackPath = "/auth/sso/callback"

// Config controls the dev auth provider behavior.
type Config struct {
	Subject         string
	Email           string
	Name            string
	SessionDuration time.Duration // default 8h when zero
}

// Provider implements ports.AuthProvider for local development.
type Provider struct {
	identity        domainauth.FederatedIdentity
	sessionDuration time.Duration
	now             func() time.Time
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if cfg.Subject == "" {
		return nil, errors.New("dev auth: Subject is required")
	}
	if cfg.Email == "" {
		return nil, errors.New("dev auth: Email is required")
	}
	dur := cfg.SessionDuration
	if dur == 0 {
		dur = 8 * time.Hour
	}
	return &Provider{
		identity: domainauth.FederatedIdentity{
			Subject: cfg.Subject,
			Email:   cfg.Email,
			Name:    cfg.Name,
		},
		sessionDuration: dur,
		now:             time.Now,
	}, nil
}

// Begin returns the local callback URL with a fresh state and nonce.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, err := cryptoutil.RandomToken(18)
	if err != nil {
		return "", "", "", fmt.Errorf("generate state: %w", err)
	}
	nonce, err := cryptoutil.RandomToken(18)
	if err != nil {
		return "", "", "", fmt.Errorf("generate nonce: %w", err)
	}
	q := url.Values{"code": {"dev"}, "state": {state}}
	return CallbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange returns the configured identity. State and nonce are checked by the caller.
func (p *Provider) Exchange(_ context.Context, _ ports.ExchangeInput) (domainauth.FederatedIdentity, error) {
	id := p.identity
	id.ExpiresAt = p.now().Add(p.sessionDuration)
	return id, nil
}
