// Package service provides the cryptographic primitives behind key management:
// asymmetric signers, HKDF key derivation and wrapping of private material at rest.
package service

import (
	"context"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"
)

// Signer signs and verifies with one key. Verification reports false on any mismatch
// instead of returning an error.
type Signer interface {
	// Sign returns a signature over data.
	Sign(data []byte) ([]byte, error)

	// Verify reports whether sig is a valid signature over data.
	Verify(data, sig []byte) bool

	// Algorithm returns the signing algorithm.
	Algorithm() keysDomain.Algorithm

	// PublicKeyPEM returns the PKIX public key as a PEM block.
	PublicKeyPEM() ([]byte, error)
}

// AEAD defines the interface for Authenticated Encryption with Associated Data.
type AEAD interface {
	// Encrypt encrypts plaintext with optional AAD and returns ciphertext and nonce.
	Encrypt(plaintext, aad []byte) (ciphertext, nonce []byte, err error)

	// Decrypt decrypts ciphertext using the provided nonce and AAD.
	Decrypt(ciphertext, nonce, aad []byte) ([]byte, error)
}

// KeyWrapper protects private key material at rest. The AAD binds wrapped material to
// its key id so it cannot be swapped between records.
type KeyWrapper interface {
	// Wrap encrypts plaintext.
	Wrap(ctx context.Context, plaintext, aad []byte) ([]byte, error)

	// Unwrap reverses Wrap. Tampered input fails with ErrUnwrapFailed.
	Unwrap(ctx context.Context, wrapped, aad []byte) ([]byte, error)

	// Name identifies the wrapper in logs.
	Name() string

	// Close releases provider resources.
	Close() error
}
