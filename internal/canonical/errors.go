package canonical

import (
	"fmt"
	"strings"

	apperrors "github.com/allisson/provenance/internal/errors"
)

var (
	// ErrMissingFields indicates required metadata fields are absent for a record type.
	ErrMissingFields = apperrors.Wrap(apperrors.ErrInvalidInput, "missing required fields")

	// ErrUnknownRecordType indicates a record type without a registered schema.
	ErrUnknownRecordType = apperrors.Wrap(apperrors.ErrInvalidInput, "unknown record type")

	// ErrUnsupportedAlgorithm indicates the requested hash algorithm is not available.
	ErrUnsupportedAlgorithm = apperrors.Wrap(apperrors.ErrUnsupported, "unsupported hash algorithm")

	// ErrNotCanonicalizable indicates a value cannot be represented as canonical JSON.
	ErrNotCanonicalizable = apperrors.Wrap(apperrors.ErrInvalidInput, "value cannot be canonicalized")
)

// MissingFieldsError lists every required field absent from a metadata document.
type MissingFieldsError struct {
	RecordType RecordType
	Fields     []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("missing required fields for %s: %s", e.RecordType, strings.Join(e.Fields, ", "))
}

// Unwrap makes the error match ErrMissingFields and ErrInvalidInput.
func (e *MissingFieldsError) Unwrap() error {
	return ErrMissingFields
}

// UnsupportedAlgorithmError reports the requested algorithm and the ones available at runtime.
type UnsupportedAlgorithmError struct {
	Requested string
	Available []Algorithm
}

func (e *UnsupportedAlgorithmError) Error() string {
	names := make([]string, 0, len(e.Available))
	for _, alg := range e.Available {
		names = append(names, string(alg))
	}
	return fmt.Sprintf("unsupported hash algorithm %q (available: %s)", e.Requested, strings.Join(names, ", "))
}

// Unwrap makes the error match ErrUnsupportedAlgorithm and ErrUnsupported.
func (e *UnsupportedAlgorithmError) Unwrap() error {
	return ErrUnsupportedAlgorithm
}
