package service

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"
)

// DeriveKey uses HKDF-SHA256 to derive a 32-byte key from master material.
// The info string binds the output to the purpose and key id, versioned for future changes.
func DeriveKey(master []byte, purpose, keyID string) ([]byte, error) {
	if len(master) != 32 {
		return nil, keysDomain.ErrInvalidKeySize
	}
	info := []byte("provenance-key-derivation-v1|" + purpose + "|" + keyID)
	reader := hkdf.New(sha256.New, master, nil, info)

	key := make([]byte, 32)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, err
	}
	return key, nil
}
