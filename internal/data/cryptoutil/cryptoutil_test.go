package cryptoutil

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAESGCMEncryptor_EncryptDecrypt(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	enc, err := NewAESGCMEncryptor(key)
	require.NoError(t, err)

	plaintext := []byte(`{"access_token":"abc"}`)
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ciphertext, "v1:"))
	assert.NotContains(t, ciphertext, "access_token")

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESGCMEncryptor_ReadsNoopValues(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	enc, err := NewAESGCMEncryptor(key)
	require.NoError(t, err)

	// written before a key was configured
	plaintext := []byte("stored session")
	noopCiphertext := noopPrefix + base64.StdEncoding.EncodeToString(plaintext)

	decrypted, err := enc.Decrypt(noopCiphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestAESGCMEncryptor_InvalidKey(t *testing.T) {
	// Key too short
	_, err := NewAESGCMEncryptor([]byte("short"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 32 bytes")

	// Key too long
	_, err = NewAESGCMEncryptor(make([]byte, 64))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be 32 bytes")
}

func TestAESGCMEncryptor_InvalidCiphertext(t *testing.T) {
	key := make([]byte, 32)
	enc, err := NewAESGCMEncryptor(key)
	require.NoError(t, err)

	// Unknown version
	_, err = enc.Decrypt("v2:somedata")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown ciphertext version")

	// Invalid base64
	_, err = enc.Decrypt("v1:!!!invalid!!!")
	require.Error(t, err)

	// Ciphertext too short
	_, err = enc.Decrypt("v1:" + base64.StdEncoding.EncodeToString([]byte("x")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ciphertext too short")
}

func TestNoopEncryptor_EncryptDecrypt(t *testing.T) {
	enc := NoopEncryptor{}

	plaintext := []byte("test value")
	ciphertext, err := enc.Encrypt(plaintext)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(ciphertext, "noop:"))

	decrypted, err := enc.Decrypt(ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestNoopEncryptor_InvalidCiphertext(t *testing.T) {
	enc := NoopEncryptor{}

	// Missing noop prefix
	_, err := enc.Decrypt("v1:somedata")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid noop ciphertext")
}

func TestNewEncryptorFromPassphrase(t *testing.T) {
	enc, err := NewEncryptorFromPassphrase("")
	require.NoError(t, err)
	assert.IsType(t, NoopEncryptor{}, enc)

	enc, err = NewEncryptorFromPassphrase("hunter2")
	require.NoError(t, err)
	ct, err := enc.Encrypt([]byte("x"))
	require.NoError(t, err)

	same, err := NewEncryptorFromPassphrase("hunter2")
	require.NoError(t, err)
	pt, err := same.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), pt)

	other, err := NewEncryptorFromPassphrase("other")
	require.NoError(t, err)
	_, err = other.Decrypt(ct)
	require.Error(t, err)
}
