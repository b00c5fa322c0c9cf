package security

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
)

const keypairBits = 2048

// Keypair holds the process-wide RSA keypair used to bootstrap sessions.
// It is generated once at startup; only the public half ever leaves the
// process.
type Keypair struct {
	private *rsa.PrivateKey
}

// GenerateKeypair creates the server keypair. Failure is fatal to startup.
func GenerateKeypair() (*Keypair, error) {
	key, err := rsa.GenerateKey(rand.Reader, keypairBits)
	if err != nil {
		return nil, fmt.Errorf("generate rsa keypair: %w", err)
	}
	return &Keypair{private: key}, nil
}

// PublicKeyParams exports the public key as base64 modulus and exponent,
// the form the handshake payload carries.
func (k *Keypair) PublicKeyParams() (modulus, exponent string) {
	pub := k.private.PublicKey
	modulus = base64.StdEncoding.EncodeToString(pub.N.Bytes())
	exponent = base64.StdEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes())
	return modulus, exponent
}

// Decrypt unwraps a PKCS1v15-encrypted handshake payload.
func (k *Keypair) Decrypt(ciphertext []byte) ([]byte, error) {
	plain, err := rsa.DecryptPKCS1v15(rand.Reader, k.private, ciphertext)
	if err != nil {
		return nil, fmt.Errorf("rsa decrypt: %w", err)
	}
	return plain, nil
}

// Encrypt wraps data with the public key. Only used by tests and clients;
// the server itself never RSA-encrypts.
func (k *Keypair) Encrypt(plaintext []byte) ([]byte, error) {
	out, err := rsa.EncryptPKCS1v15(rand.Reader, &k.private.PublicKey, plaintext)
	if err != nil {
		return nil, fmt.Errorf("rsa encrypt: %w", err)
	}
	return out, nil
}
