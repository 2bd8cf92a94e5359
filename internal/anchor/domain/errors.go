package domain

import (
	"github.com/allisson/provenance/internal/errors"
)

// Anchor errors.
var (
	// ErrAnchorNotFound indicates no anchor exists for the root and policy.
	ErrAnchorNotFound = errors.Wrap(errors.ErrNotFound, "anchor not found")

	// ErrInvalidAnchor indicates an anchor record failed validation.
	ErrInvalidAnchor = errors.Wrap(errors.ErrInvalidInput, "invalid anchor")

	// ErrExternalAnchorUnavailable indicates the policy requires external timestamping but
	// no external anchorer is configured.
	ErrExternalAnchorUnavailable = errors.Wrap(errors.ErrUnsupported, "external anchoring unavailable")

	// ErrExternalAnchorFailed indicates the external anchorer rejected or failed the request.
	ErrExternalAnchorFailed = errors.Wrap(errors.ErrStorage, "external anchoring failed")
)
