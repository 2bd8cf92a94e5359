package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"
)

// CipherAlgorithm names the AEAD used to wrap key material locally.
type CipherAlgorithm string

// Supported wrapping ciphers.
const (
	AESGCM   CipherAlgorithm = "aes-gcm"
	ChaCha20 CipherAlgorithm = "chacha20-poly1305"
)

// NewCipher creates an AEAD cipher instance for the specified algorithm.
// Returns ErrInvalidKeySize if key is not 32 bytes or ErrUnsupportedKeyAlgorithm if algorithm is unknown.
func NewCipher(key []byte, alg CipherAlgorithm) (AEAD, error) {
	if len(key) != 32 {
		return nil, keysDomain.ErrInvalidKeySize
	}

	var (
		aead cipher.AEAD
		err  error
	)
	switch alg {
	case AESGCM:
		block, blockErr := aes.NewCipher(key)
		if blockErr != nil {
			return nil, fmt.Errorf("failed to create AES cipher: %w", blockErr)
		}
		aead, err = cipher.NewGCM(block)
	case ChaCha20:
		aead, err = chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("%w: %q", keysDomain.ErrUnsupportedKeyAlgorithm, alg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s cipher: %w", alg, err)
	}
	return &aeadCipher{aead: aead}, nil
}

// aeadCipher is stateless and safe for concurrent use. Each encryption draws a fresh
// random 12-byte nonce.
type aeadCipher struct {
	aead cipher.AEAD
}

func (a *aeadCipher) Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error) {
	nonce = make([]byte, a.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = a.aead.Seal(nil, nonce, plaintext, aad)
	return ciphertext, nonce, nil
}

func (a *aeadCipher) Decrypt(ciphertext, nonce, aad []byte) ([]byte, error) {
	if len(nonce) != a.aead.NonceSize() {
		return nil, keysDomain.ErrUnwrapFailed
	}
	plaintext, err := a.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, keysDomain.ErrUnwrapFailed
	}
	return plaintext, nil
}
