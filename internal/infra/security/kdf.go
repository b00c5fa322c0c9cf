package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// DeriveKey stretches a passphrase into fixed-length key material with
// PBKDF2-SHA256. Used for at-rest field encryption keys, never for
// connection sessions.
func DeriveKey(passphrase string, salt []byte, iterations, keyLength int) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, iterations, keyLength, sha256.New)
}

// FieldCipher encrypts individual datastore fields with AES-GCM over a
// derived key. The nonce is prepended to each ciphertext.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher builds a field cipher from derived key material.
func NewFieldCipher(key []byte) (*FieldCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create field cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &FieldCipher{aead: aead}, nil
}

// Seal encrypts a field value.
func (c *FieldCipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a field value produced by Seal.
func (c *FieldCipher) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < c.aead.NonceSize() {
		return nil, errors.New("field cipher: ciphertext too short")
	}
	nonce, sealed := ciphertext[:c.aead.NonceSize()], ciphertext[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("field cipher: %w", err)
	}
	return plain, nil
}
