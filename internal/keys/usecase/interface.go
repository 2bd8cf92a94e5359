package usecase

import (
	"context"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"
)

// KeyRepository persists key bundles. Save must apply all bundles atomically.
type KeyRepository interface {
	Load(ctx context.Context) ([]*keysDomain.KeyBundle, error)
	Save(ctx context.Context, bundles ...*keysDomain.KeyBundle) error
}
