// Package core holds the repository ports and the small cache-backed policies
// shared by the notekeeper services.
package core

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// CacheRepository defines the interface for caching operations.
type CacheRepository interface {
	// Set stores a value with the given TTL. A zero TTL never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Get returns nil when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete reports whether the key existed.
	Delete(ctx context.Context, key string) (bool, error)
	// Incr increments a counter, setting ttl when the counter is created.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Health(ctx context.Context) error
}

// SignInThrottle counts failed sign-ins per email in a fixed window.
type SignInThrottle struct {
	cache  CacheRepository
	max    int
	window time.Duration
}

// SignInThrottleOptions bundles dependencies for NewSignInThrottle.
type SignInThrottleOptions struct {
	Cache       CacheRepository
	MaxFailures int           // zero disables throttling
	Window      time.Duration // how long failures are remembered
}

// NewSignInThrottle creates a SignInThrottle. A nil cache disables it.
func NewSignInThrottle(opts SignInThrottleOptions) *SignInThrottle {
	window := opts.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &SignInThrottle{cache: opts.Cache, max: opts.MaxFailures, window: window}
}

func (t *SignInThrottle) enabled() bool { return t != nil && t.cache != nil && t.max > 0 }

// Locked reports whether email has reached the failure limit.
func (t *SignInThrottle) Locked(ctx context.Context, email string) (bool, error) {
	if !t.enabled() {
		return false, nil
	}
	v, err := t.cache.Get(ctx, t.key(email))
	if err != nil || v == nil {
		return false, err
	}
	n, err := strconv.Atoi(string(v))
	if err != nil {
		return false, nil //nolint:nilerr // a corrupt counter does not lock the account
	}
	return n >= t.max, nil
}

// RecordFailure counts a failed attempt and returns the running total.
func (t *SignInThrottle) RecordFailure(ctx context.Context, email string) (int64, error) {
	if !t.enabled() {
		return 0, nil
	}
	return t.cache.Incr(ctx, t.key(email), t.window)
}

// Reset clears the failure count after a successful sign-in.
func (t *SignInThrottle) Reset(ctx context.Context, email string) error {
	if !t.enabled() {
		return nil
	}
	_, err := t.cache.Delete(ctx, t.key(email))
	return err
}

func (t *SignInThrottle) key(email string) string {
	return "signin:failures:" + strings.ToLower(strings.TrimSpace(email))
}
