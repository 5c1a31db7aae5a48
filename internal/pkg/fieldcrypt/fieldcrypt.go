// Package fieldcrypt encrypts sensitive columns (webhook endpoint secrets)
// with AES-256-GCM under a key derived from the configured master secret.
//
// Stored values look like "enc:v1:<base64(nonce+ciphertext)>".
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const prefix = "enc:v1:"

// Encryptor is safe for concurrent use.
type Encryptor struct {
	gcm cipher.AEAD
}

// New derives a purpose-bound AES-256 key from masterSecret using HKDF.
func New(masterSecret []byte, purpose string) (*Encryptor, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("fieldcrypt: empty master secret")
	}
	r := hkdf.New(sha256.New, masterSecret, []byte("notifyd-field-encryption"), []byte(purpose))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("fieldcrypt: key derivation failed: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	return &Encryptor{gcm: gcm}, nil
}

func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("fieldcrypt: failed to generate nonce: %w", err)
	}
	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the prefix are rejected, since a
// plaintext secret in the store means the row was written outside this service.
func (e *Encryptor) Decrypt(stored string) (string, error) {
	if !strings.HasPrefix(stored, prefix) {
		return "", errors.New("fieldcrypt: value is not encrypted")
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, prefix))
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: invalid base64: %w", err)
	}
	nonceSize := e.gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("fieldcrypt: ciphertext too short")
	}
	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: decryption failed: %w", err)
	}
	return string(plaintext), nil
}

func IsEncrypted(v string) bool {
	return strings.HasPrefix(v, prefix)
}
