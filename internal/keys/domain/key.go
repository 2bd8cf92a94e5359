// Package domain defines key metadata, lifecycle states and the persisted key record layout.
package domain

import (
	"fmt"
	"maps"
	"time"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/provenance/internal/validation"
)

// KeyType classifies what a key is used for.
type KeyType string

// Key types.
const (
	KeyTypeSigning    KeyType = "signing"
	KeyTypeEncryption KeyType = "encryption"
	KeyTypeMaster     KeyType = "master"
)

// Valid reports whether t is a known key type.
func (t KeyType) Valid() bool {
	switch t {
	case KeyTypeSigning, KeyTypeEncryption, KeyTypeMaster:
		return true
	}
	return false
}

// Status is a key's lifecycle state.
type Status string

// Key statuses. Revoked is terminal.
const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
	StatusRevoked Status = "revoked"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusActive, StatusRetired, StatusRevoked:
		return true
	}
	return false
}

// CanTransition reports whether a key may move from s to next.
//
//	pending -> active | revoked
//	active  -> retired | revoked
//	retired -> revoked
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusActive || next == StatusRevoked
	case StatusActive:
		return next == StatusRetired || next == StatusRevoked
	case StatusRetired:
		return next == StatusRevoked
	}
	return false
}

// Algorithm names the key algorithm.
type Algorithm string

// Key algorithms.
const (
	Ed25519   Algorithm = "ed25519"
	ECDSAP256 Algorithm = "ecdsa-p256"
	// Symmetric256 is 32 bytes of key material for master and encryption keys.
	Symmetric256 Algorithm = "symmetric-256"
)

// DefaultSigningAlgorithm is used when a caller does not choose one.
const DefaultSigningAlgorithm = Ed25519

// ParseSigningAlgorithm maps a name to a signing algorithm. Empty means the default.
func ParseSigningAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case "":
		return DefaultSigningAlgorithm, nil
	case Ed25519, ECDSAP256:
		return Algorithm(name), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedKeyAlgorithm, name)
}

// KeyMetadata describes a key without its material.
type KeyMetadata struct {
	KeyID       string            `json:"key_id"`
	KeyType     KeyType           `json:"key_type"`
	Algorithm   Algorithm         `json:"algorithm"`
	Status      Status            `json:"status"`
	Purpose     string            `json:"purpose"`
	CreatedAt   time.Time         `json:"created_at"`
	ActivatedAt *time.Time        `json:"activated_at,omitempty"`
	ExpiresAt   *time.Time        `json:"expires_at,omitempty"`
	RetiredAt   *time.Time        `json:"retired_at,omitempty"`
	RevokedAt   *time.Time        `json:"revoked_at,omitempty"`
	PurgedAt    *time.Time        `json:"purged_at,omitempty"`
	ParentKeyID string            `json:"parent_key_id,omitempty"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// Validate checks the metadata fields.
func (m *KeyMetadata) Validate() error {
	err := validation.ValidateStruct(m,
		validation.Field(&m.KeyID, validation.Required, customValidation.Identifier),
		validation.Field(&m.KeyType, validation.Required, validation.By(func(any) error {
			if !m.KeyType.Valid() {
				return fmt.Errorf("unknown key type %q", m.KeyType)
			}
			return nil
		})),
		validation.Field(&m.Status, validation.Required, validation.By(func(any) error {
			if !m.Status.Valid() {
				return fmt.Errorf("unknown status %q", m.Status)
			}
			return nil
		})),
		validation.Field(&m.Algorithm, validation.Required),
		validation.Field(&m.Purpose, validation.Required, customValidation.Identifier),
		validation.Field(&m.CreatedAt, validation.Required),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, customValidation.WrapValidationError(err))
	}
	return nil
}

// ExpiredAt reports whether the key is expired at t.
func (m *KeyMetadata) ExpiredAt(t time.Time) bool {
	return m.ExpiresAt != nil && !t.Before(*m.ExpiresAt)
}

// UsableAt reports whether the key is active and unexpired at t.
func (m *KeyMetadata) UsableAt(t time.Time) bool {
	return m.Status == StatusActive && !m.ExpiredAt(t)
}

// Clone returns a deep copy.
func (m KeyMetadata) Clone() KeyMetadata {
	c := m
	for _, p := range []**time.Time{&c.ActivatedAt, &c.ExpiresAt, &c.RetiredAt, &c.RevokedAt, &c.PurgedAt} {
		if *p != nil {
			v := **p
			*p = &v
		}
	}
	c.Tags = maps.Clone(m.Tags)
	return c
}

// KeyBundle is the persisted key record. Private and symmetric material are stored
// wrapped by the configured key wrapper; public material is a PKIX PEM block.
type KeyBundle struct {
	Metadata             KeyMetadata `json:"metadata"`
	PrivateKeyMaterial   []byte      `json:"private_key_material,omitempty"`
	PublicKeyMaterial    []byte      `json:"public_key_material,omitempty"`
	SymmetricKeyMaterial []byte      `json:"symmetric_key_material,omitempty"`
}

// Clone returns a deep copy.
func (b *KeyBundle) Clone() *KeyBundle {
	return &KeyBundle{
		Metadata:             b.Metadata.Clone(),
		PrivateKeyMaterial:   append([]byte(nil), b.PrivateKeyMaterial...),
		PublicKeyMaterial:    append([]byte(nil), b.PublicKeyMaterial...),
		SymmetricKeyMaterial: append([]byte(nil), b.SymmetricKeyMaterial...),
	}
}

// HasSecretMaterial reports whether private or symmetric material is still present.
func (b *KeyBundle) HasSecretMaterial() bool {
	return len(b.PrivateKeyMaterial) > 0 || len(b.SymmetricKeyMaterial) > 0
}

// PublicKey is the exportable view of a signing key.
type PublicKey struct {
	KeyID        string     `json:"key_id"`
	Algorithm    Algorithm  `json:"algorithm"`
	Status       Status     `json:"status"`
	Purpose      string     `json:"purpose"`
	PublicKeyPEM string     `json:"public_key_pem"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// ListFilter narrows key listings. Zero values match everything.
type ListFilter struct {
	Purpose string
	KeyType KeyType
	Status  Status
}

// Matches reports whether m satisfies the filter.
func (f ListFilter) Matches(m *KeyMetadata) bool {
	if f.Purpose != "" && m.Purpose != f.Purpose {
		return false
	}
	if f.KeyType != "" && m.KeyType != f.KeyType {
		return false
	}
	if f.Status != "" && m.Status != f.Status {
		return false
	}
	return true
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
