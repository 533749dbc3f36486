package bootstrap

import (
	"encoding/hex"
	"log/slog"

	"github.com/target/notekeeper/internal/data/cryptoutil"
)

// CreateEncryptor returns the encryptor for the CLI's stored session. A
// 64-character hex key is used as-is; any other value is treated as a
// passphrase. An empty or unusable key stores sessions unencrypted.
//
//nolint:ireturn // Returning interface is intentional for encryptor abstraction
func CreateEncryptor(key string, logger *slog.Logger) cryptoutil.Encryptor {
	if key == "" {
		if logger != nil {
			logger.Debug("NOTEKEEPER_SESSION_KEY is empty, stored session is not encrypted")
		}
		return cryptoutil.NoopEncryptor{}
	}

	if decoded, err := hex.DecodeString(key); err == nil && len(decoded) == 32 {
		if enc, encErr := cryptoutil.NewAESGCMEncryptor(decoded); encErr == nil {
			return enc
		}
	}

	enc, err := cryptoutil.NewEncryptorFromPassphrase(key)
	if err != nil {
		if logger != nil {
			logger.Warn("failed to create session encryptor, using noop encryptor", "error", err)
		}
		return cryptoutil.NoopEncryptor{}
	}
	return enc
}
