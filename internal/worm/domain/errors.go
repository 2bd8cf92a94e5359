package domain

import (
	apperrors "github.com/allisson/provenance/internal/errors"
)

// WORM store errors.
var (
	// ErrDuplicateRecord indicates a record with the same id was already committed.
	ErrDuplicateRecord = apperrors.Wrap(apperrors.ErrConflict, "duplicate record")

	// ErrRecordNotFound indicates no record exists with the requested id.
	ErrRecordNotFound = apperrors.Wrap(apperrors.ErrNotFound, "record not found")

	// ErrStorageIO indicates a durable read or write failed.
	ErrStorageIO = apperrors.Wrap(apperrors.ErrStorage, "storage i/o error")

	// ErrContentHashMismatch indicates a stored record no longer matches its content hash.
	ErrContentHashMismatch = apperrors.Wrap(apperrors.ErrStorage, "content hash mismatch")

	// ErrStoreClosed indicates the store was used after Close.
	ErrStoreClosed = apperrors.Wrap(apperrors.ErrStorage, "store closed")

	// ErrInvalidRecord indicates a record is missing its id, type or data.
	ErrInvalidRecord = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid record")
)
