package domain

import (
	apperrors "github.com/allisson/provenance/internal/errors"
)

// Ledger errors.
var (
	// ErrDuplicateLeaf indicates the leaf hash is already part of the ledger.
	ErrDuplicateLeaf = apperrors.Wrap(apperrors.ErrConflict, "duplicate leaf")

	// ErrLeafNotFound indicates the leaf hash is not part of the ledger.
	ErrLeafNotFound = apperrors.Wrap(apperrors.ErrNotFound, "leaf not found")

	// ErrInvalidLeafHash indicates a leaf hash that is not a digest of the ledger algorithm.
	ErrInvalidLeafHash = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid leaf hash")

	// ErrInvalidSide indicates an unknown proof side on the wire.
	ErrInvalidSide = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid proof side")

	// ErrCorruptReplay indicates stored leaves could not be replayed into the tree.
	ErrCorruptReplay = apperrors.Wrap(apperrors.ErrStorage, "corrupt ledger replay")
)
