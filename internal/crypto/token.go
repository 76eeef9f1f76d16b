package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrInvalidCiphertext = errors.New("invalid token ciphertext")

// TokenCipher encrypts OAuth tokens at rest with AES-GCM under a single
// process-wide key. Ciphertext format: base64(nonce || sealed).
type TokenCipher struct {
	gcm cipher.AEAD
}

// NewTokenCipher accepts a base64-encoded or raw key and normalizes it to an
// AES key size.
func NewTokenCipher(key string) (*TokenCipher, error) {
	keyBytes := normalizeKey(key)
	if len(keyBytes) == 0 {
		return nil, errors.New("encryption key is empty or too short (need at least 16 bytes)")
	}
	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{gcm: gcm}, nil
}

func (c *TokenCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := c.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (c *TokenCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	if len(raw) < c.gcm.NonceSize() {
		return "", ErrInvalidCiphertext
	}
	nonce, sealed := raw[:c.gcm.NonceSize()], raw[c.gcm.NonceSize():]
	plain, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return string(plain), nil
}

func normalizeKey(k string) []byte {
	k = strings.TrimSpace(k)
	if k == "" {
		return nil
	}
	// Prefer base64 key. fallback to raw bytes.
	keyBytes, err := base64.StdEncoding.DecodeString(k)
	if err != nil {
		keyBytes = []byte(k)
	}
	switch len(keyBytes) {
	case 16, 24, 32:
		return keyBytes
	}
	if len(keyBytes) < 16 {
		return nil
	}
	if len(keyBytes) < 24 {
		return keyBytes[:16]
	}
	if len(keyBytes) < 32 {
		return keyBytes[:24]
	}
	return keyBytes[:32]
}
