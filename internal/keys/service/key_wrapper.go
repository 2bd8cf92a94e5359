package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"

	"gocloud.dev/secrets"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"

	// Register all KMS provider drivers
	_ "gocloud.dev/secrets/awskms"
	_ "gocloud.dev/secrets/azurekeyvault"
	_ "gocloud.dev/secrets/gcpkms"
	_ "gocloud.dev/secrets/hashivault"
	_ "gocloud.dev/secrets/localsecrets"
)

type noopWrapper struct{}

// NewNoopWrapper stores material as-is. Intended for development and tests.
func NewNoopWrapper() KeyWrapper {
	return noopWrapper{}
}

func (noopWrapper) Wrap(_ context.Context, plaintext, _ []byte) ([]byte, error) {
	return append([]byte(nil), plaintext...), nil
}

func (noopWrapper) Unwrap(_ context.Context, wrapped, _ []byte) ([]byte, error) {
	return append([]byte(nil), wrapped...), nil
}

func (noopWrapper) Name() string { return "none" }

func (noopWrapper) Close() error { return nil }

// AEADWrapper wraps material with a local 32-byte key. The output layout is
// algorithm-id byte || nonce || ciphertext.
type AEADWrapper struct {
	alg    CipherAlgorithm
	cipher AEAD
}

var cipherIDs = map[CipherAlgorithm]byte{AESGCM: 1, ChaCha20: 2}

// NewAEADWrapper creates a local wrapper. The key is copied by the cipher.
func NewAEADWrapper(key []byte, alg CipherAlgorithm) (*AEADWrapper, error) {
	c, err := NewCipher(key, alg)
	if err != nil {
		return nil, err
	}
	return &AEADWrapper{alg: alg, cipher: c}, nil
}

// Wrap implements KeyWrapper.
func (w *AEADWrapper) Wrap(_ context.Context, plaintext, aad []byte) ([]byte, error) {
	ciphertext, nonce, err := w.cipher.Encrypt(plaintext, aad)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+len(nonce)+len(ciphertext))
	out = append(out, cipherIDs[w.alg])
	out = append(out, nonce...)
	return append(out, ciphertext...), nil
}

// Unwrap implements KeyWrapper.
func (w *AEADWrapper) Unwrap(_ context.Context, wrapped, aad []byte) ([]byte, error) {
	const nonceSize = 12
	if len(wrapped) < 1+nonceSize || wrapped[0] != cipherIDs[w.alg] {
		return nil, keysDomain.ErrUnwrapFailed
	}
	return w.cipher.Decrypt(wrapped[1+nonceSize:], wrapped[1:1+nonceSize], aad)
}

// Name implements KeyWrapper.
func (w *AEADWrapper) Name() string { return "aead-" + string(w.alg) }

// Close implements KeyWrapper.
func (w *AEADWrapper) Close() error { return nil }

// KMSWrapper wraps material with a gocloud.dev secrets keeper (awskms, gcpkms,
// azurekeyvault, hashivault or base64key). Keepers do not take AAD, so the AAD is sealed
// inside the ciphertext as a length-prefixed header and compared on unwrap.
type KMSWrapper struct {
	keeper *secrets.Keeper
}

// OpenKMSWrapper opens a keeper for keyURI.
func OpenKMSWrapper(ctx context.Context, keyURI string) (*KMSWrapper, error) {
	keeper, err := secrets.OpenKeeper(ctx, keyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}
	return &KMSWrapper{keeper: keeper}, nil
}

// Wrap implements KeyWrapper.
func (w *KMSWrapper) Wrap(ctx context.Context, plaintext, aad []byte) ([]byte, error) {
	framed := make([]byte, 4, 4+len(aad)+len(plaintext))
	binary.BigEndian.PutUint32(framed, uint32(len(aad)))
	framed = append(framed, aad...)
	framed = append(framed, plaintext...)
	defer keysDomain.Zero(framed)

	ciphertext, err := w.keeper.Encrypt(ctx, framed)
	if err != nil {
		return nil, fmt.Errorf("kms encrypt: %w", err)
	}
	return ciphertext, nil
}

// Unwrap implements KeyWrapper.
func (w *KMSWrapper) Unwrap(ctx context.Context, wrapped, aad []byte) ([]byte, error) {
	framed, err := w.keeper.Decrypt(ctx, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", keysDomain.ErrUnwrapFailed, err)
	}
	defer keysDomain.Zero(framed)

	if len(framed) < 4 {
		return nil, keysDomain.ErrUnwrapFailed
	}
	n := int(binary.BigEndian.Uint32(framed))
	if len(framed) < 4+n || !bytes.Equal(framed[4:4+n], aad) {
		return nil, keysDomain.ErrUnwrapFailed
	}
	return append([]byte(nil), framed[4+n:]...), nil
}

// Name implements KeyWrapper.
func (w *KMSWrapper) Name() string { return "kms" }

// Close implements KeyWrapper.
func (w *KMSWrapper) Close() error {
	return w.keeper.Close()
}
