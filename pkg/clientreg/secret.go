package clientreg

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// secretBytes is the length of generated client secrets before encoding
const secretBytes = 32

// GenerateClientSecret returns a new cryptographically random client
// secret. The value is never logged.
func GenerateClientSecret() (string, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// SecretCipher encrypts client secrets at rest with AES-256-GCM.
// The key is derived from the configured passphrase with PBKDF2 so the
// same passphrase always yields the same key across instances.
type SecretCipher struct {
	key []byte
}

// NewSecretCipher creates a cipher from the configured passphrase
func NewSecretCipher(passphrase string) (*SecretCipher, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("secret encryption passphrase cannot be empty")
	}

	salt := []byte("client-secret-at-rest")
	key := pbkdf2.Key([]byte(passphrase), salt, 10000, 32, sha256.New)

	return &SecretCipher{key: key}, nil
}

// Encrypt encrypts the given plaintext secret
func (c *SecretCipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext cannot be empty")
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt decrypts a secret previously produced by Encrypt
func (c *SecretCipher) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	if len(raw) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}

	return string(plaintext), nil
}
