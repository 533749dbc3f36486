// Package redis provides Redis-based adapters for notekeeper: the session
// store and the auth event bus.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/target/notekeeper/internal/domain/auth"
)

const defaultSessionPrefix = "notekeeper:"

// SessionStore is a Redis-based session store. A session lives until its
// refresh token expires; a refresh-token index and a per-user set are kept
// alongside it.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewSessionStore creates a new Redis-based session store.
func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return NewSessionStoreWithPrefix(client, defaultSessionPrefix)
}

// NewSessionStoreWithPrefix creates a Redis session store with a custom key prefix.
func NewSessionStoreWithPrefix(client redis.UniversalClient, prefix string) *SessionStore {
	return &SessionStore{client: client, prefix: prefix, now: time.Now}
}

func (s *SessionStore) sessionKey(id string) string  { return s.prefix + "session:" + id }
func (s *SessionStore) refreshKey(tok string) string { return s.prefix + "refresh:" + tok }
func (s *SessionStore) userKey(userID string) string { return s.prefix + "user-sessions:" + userID }

// Save stores sess, replacing any previous version and its refresh token.
func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errors.New("session ID cannot be empty")
	}
	ttl := lifetime(sess).Sub(s.now())
	if ttl <= 0 {
		return errors.New("session is expired")
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	prev, err := s.load(ctx, sess.ID)
	if err != nil && !errors.Is(err, domainauth.ErrSessionNotFound) {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev.RefreshToken != "" && prev.RefreshToken != sess.RefreshToken {
			p.Del(ctx, s.refreshKey(prev.RefreshToken))
		}
		p.Set(ctx, s.sessionKey(sess.ID), data, ttl)
		if sess.RefreshToken != "" {
			p.Set(ctx, s.refreshKey(sess.RefreshToken), sess.ID, ttl)
		}
		if sess.UserID != "" {
			p.SAdd(ctx, s.userKey(sess.UserID), sess.ID)
			p.ExpireGT(ctx, s.userKey(sess.UserID), ttl)
			p.ExpireNX(ctx, s.userKey(sess.UserID), ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save session: %w", err)
	}
	return nil
}

// Get returns the session with id. Sessions past their lifetime are removed
// and reported as ErrSessionNotFound.
func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	sess, err := s.load(ctx, id)
	if err != nil {
		return domainauth.Session{}, err
	}
	if !s.now().Before(lifetime(sess)) {
		if deleteErr := s.Delete(ctx, id); deleteErr != nil {
			return domainauth.Session{}, fmt.Errorf("cleanup expired session: %w", deleteErr)
		}
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return sess, nil
}

// GetByRefreshToken resolves a refresh token to its session.
func (s *SessionStore) GetByRefreshToken(ctx context.Context, token string) (domainauth.Session, error) {
	if token == "" {
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	id, err := s.client.Get(ctx, s.refreshKey(token)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, domainauth.ErrSessionNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return domainauth.Session{}, err
	}
	if sess.RefreshToken != token {
		// rotated away
		return domainauth.Session{}, domainauth.ErrSessionNotFound
	}
	return sess, nil
}

// Delete removes a session and its indexes. Missing sessions are not an error.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	sess, err := s.load(ctx, id)
	if errors.Is(err, domainauth.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		s.queueDelete(ctx, p, sess)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// DeleteByUser removes every session of userID and returns the removed IDs.
func (s *SessionStore) DeleteByUser(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, nil
	}
	ids, err := s.client.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}

	var removed []string
	for _, id := range ids {
		sess, loadErr := s.load(ctx, id)
		if errors.Is(loadErr, domainauth.ErrSessionNotFound) {
			continue
		}
		if loadErr != nil {
			return removed, loadErr
		}
		if _, pipeErr := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
			s.queueDelete(ctx, p, sess)
			return nil
		}); pipeErr != nil {
			return removed, fmt.Errorf("redis delete session: %w", pipeErr)
		}
		removed = append(removed, id)
	}
	if err := s.client.Del(ctx, s.userKey(userID)).Err(); err != nil {
		return removed, fmt.Errorf("redis del: %w", err)
	}
	return removed, nil
}

func (s *SessionStore) queueDelete(ctx context.Context, p redis.Pipeliner, sess domainauth.Session) {
	p.Del(ctx, s.sessionKey(sess.ID))
	if sess.RefreshToken != "" {
		p.Del(ctx, s.refreshKey(sess.RefreshToken))
	}
	if sess.UserID != "" {
		p.SRem(ctx, s.userKey(sess.UserID), sess.ID)
	}
}

func (s *SessionStore) load(ctx context.Context, id string) (domainauth.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domainauth.Session{}, domainauth.ErrSessionNotFound
		}
		return domainauth.Session{}, fmt.Errorf("redis get: %w", err)
	}
	var sess domainauth.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return sess, nil
}

// lifetime is the instant after which a session can no longer be used or refreshed.
func lifetime(sess domainauth.Session) time.Time {
	if sess.RefreshExpiresAt.After(sess.ExpiresAt) {
		return sess.RefreshExpiresAt
	}
	return sess.ExpiresAt
}
