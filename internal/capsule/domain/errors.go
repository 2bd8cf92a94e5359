package domain

import (
	"github.com/allisson/provenance/internal/errors"
)

// Capsule errors.
var (
	// ErrInvalidCapsule indicates a capsule is structurally incomplete or cannot be decoded.
	ErrInvalidCapsule = errors.Wrap(errors.ErrInvalidInput, "invalid capsule")

	// ErrCapsuleNotFound indicates no published capsule exists under the key.
	ErrCapsuleNotFound = errors.Wrap(errors.ErrNotFound, "capsule not found")
)
