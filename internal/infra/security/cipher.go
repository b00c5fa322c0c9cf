package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

var (
	errInvalidPadding    = errors.New("cipher: invalid pkcs7 padding")
	errInvalidCiphertext = errors.New("cipher: ciphertext not block-aligned")
)

// SessionCipher is the per-connection AES-CBC cipher established during the
// handshake. Key and IV are chosen by the client and arrive RSA-wrapped.
type SessionCipher struct {
	block cipher.Block
	iv    []byte
}

// NewSessionCipher validates the key material and returns a cipher handle.
func NewSessionCipher(key, iv []byte) (*SessionCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create aes cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("cipher: iv must be %d bytes, got %d", aes.BlockSize, len(iv))
	}

	return &SessionCipher{block: block, iv: append([]byte(nil), iv...)}, nil
}

// Encrypt applies PKCS7 padding and encrypts in CBC mode.
func (c *SessionCipher) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("cipher: nothing to encrypt")
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(c.block, c.iv).CryptBlocks(out, padded)
	return out, nil
}

// Decrypt reverses Encrypt and strips the padding.
func (c *SessionCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errInvalidCiphertext
	}

	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(c.block, c.iv).CryptBlocks(out, ciphertext)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	pad := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(pad)}, pad)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 {
		return nil, errInvalidPadding
	}

	pad := int(data[len(data)-1])
	if pad == 0 || pad > blockSize || pad > len(data) {
		return nil, errInvalidPadding
	}
	for _, b := range data[len(data)-pad:] {
		if int(b) != pad {
			return nil, errInvalidPadding
		}
	}
	return data[:len(data)-pad], nil
}
