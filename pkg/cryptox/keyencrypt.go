package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

// SecretCipher encrypts and decrypts per-account authorization keys with
// AES-256-GCM under a process-wide master key. Construct one at startup and
// pass it to whatever needs it; there is no package-level instance.
type SecretCipher struct {
	aead cipher.AEAD
}

// NewSecretCipher derives a 32-byte AES key from the given key material via
// SHA-256 and returns a ready cipher.
func NewSecretCipher(keyMaterial []byte) (*SecretCipher, error) {
	if len(keyMaterial) == 0 {
		return nil, fmt.Errorf("cryptox: empty master key material")
	}

	derived := sha256.Sum256(keyMaterial)
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}

	return &SecretCipher{aead: aead}, nil
}

// Encrypt seals the plaintext. Output layout: [nonce][ciphertext+tag].
func (c *SecretCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens data produced by Encrypt, verifying the auth tag.
func (c *SecretCipher) Decrypt(sealed []byte) ([]byte, error) {
	nonceSize := c.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("cryptox: ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decryption failed: %w", err)
	}
	return plaintext, nil
}
