// Package boltsession persists the CLI's current session in a bbolt file.
package boltsession

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/target/notekeeper/internal/data/cryptoutil"
	domainauth "github.com/target/notekeeper/internal/domain/auth"
	"go.etcd.io/bbolt"
)

var (
	bucketName = []byte("auth")
	currentKey = []byte("current_session")
)

// ErrCorrupt is returned by Load when the stored session cannot be decoded.
var ErrCorrupt = errors.New("stored session is unreadable")

// Store keeps at most one session.
type Store struct {
	db  *bbolt.DB
	enc cryptoutil.Encryptor
}

// Open opens (creating if needed) the session database at path. A nil
// encryptor stores sessions unencrypted.
func Open(path string, enc cryptoutil.Encryptor) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	if enc == nil {
		enc = cryptoutil.NoopEncryptor{}
	}
	return &Store{db: db, enc: enc}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored session, or nil when there is none.
func (s *Store) Load() (*domainauth.Session, error) {
	var raw []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		if v := b.Get(currentKey); v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || raw == nil {
		return nil, err
	}

	plain, err := s.enc.Decrypt(string(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	var sess domainauth.Session
	if err := json.Unmarshal(plain, &sess); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return &sess, nil
}

// Save replaces the stored session.
func (s *Store) Save(sess domainauth.Session) error {
	plain, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	sealed, err := s.enc.Encrypt(plain)
	if err != nil {
		return fmt.Errorf("encrypt session: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put(currentKey, []byte(sealed))
	})
}

// Clear removes the stored session. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.Delete(currentKey)
	})
}
