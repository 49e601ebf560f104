// Package crypto seals personal fields (feedback contact details) before they
// reach Postgres.
//
// Sealed values carry an "enc:" prefix. Open passes unprefixed values through
// unchanged, so rows written before a key was configured stay readable.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const sealedPrefix = "enc:"

var ErrNoKey = errors.New("value is sealed but no key is configured")

// Cipher seals and opens single string fields. Empty strings are never sealed.
type Cipher interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// Plaintext stores values as given (development and tests).
type Plaintext struct{}

func (Plaintext) Seal(plaintext string) (string, error) { return plaintext, nil }

func (Plaintext) Open(stored string) (string, error) {
	if IsSealed(stored) {
		return "", ErrNoKey
	}
	return stored, nil
}

// IsSealed reports whether stored was produced by an AESGCM cipher.
func IsSealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}

type AESGCM struct {
	gcm cipher.AEAD
}

// NewAESGCM expects a hex-encoded 32-byte key (AES-256).
func NewAESGCM(hexKey string) (*AESGCM, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key hex: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &AESGCM{gcm: gcm}, nil
}

func (c *AESGCM) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// nonce || ciphertext || tag
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + hex.EncodeToString(sealed), nil
}

func (c *AESGCM) Open(stored string) (string, error) {
	if !IsSealed(stored) {
		return stored, nil
	}

	buffer, err := hex.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}

	nonceSize := c.gcm.NonceSize()
	if len(buffer) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, sealed := buffer[:nonceSize], buffer[nonceSize:]
	plain, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}

	return string(plain), nil
}
