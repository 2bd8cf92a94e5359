package usecase

import (
	"context"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
)

// Signer signs with the active key of a purpose and verifies by key id.
type Signer interface {
	Sign(ctx context.Context, purpose string, data []byte) ([]byte, string, error)
	Verify(id string, data, sig []byte) bool
}

// ExternalAnchorer submits a signed anchor to an external timestamping or publication
// service and returns its receipt.
type ExternalAnchorer interface {
	Anchor(ctx context.Context, anchor *anchorDomain.AnchorRecord) (*anchorDomain.ExternalAnchor, error)
}
