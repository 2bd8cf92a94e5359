// Package repository persists key bundles.
package repository

import (
	"context"
	"sync"

	keysDomain "github.com/allisson/provenance/internal/keys/domain"
)

// MemoryRepository keeps key bundles in process memory.
type MemoryRepository struct {
	mu      sync.Mutex
	bundles map[string]*keysDomain.KeyBundle
	order   []string
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bundles: make(map[string]*keysDomain.KeyBundle)}
}

// Load returns copies of every bundle in creation order.
func (r *MemoryRepository) Load(ctx context.Context) ([]*keysDomain.KeyBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*keysDomain.KeyBundle, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.bundles[id].Clone())
	}
	return out, nil
}

// Save upserts all bundles at once.
func (r *MemoryRepository) Save(ctx context.Context, bundles ...*keysDomain.KeyBundle) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, b := range bundles {
		id := b.Metadata.KeyID
		if _, ok := r.bundles[id]; !ok {
			r.order = append(r.order, id)
		}
		r.bundles[id] = b.Clone()
	}
	return nil
}
