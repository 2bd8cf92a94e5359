// Package repository provides policy storage: an in-memory registry and a YAML
// directory loader with hot reload.
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	policyDomain "github.com/allisson/provenance/internal/policy/domain"
)

type policyEntry struct {
	policy      *policyDomain.Policy
	fingerprint string
	sealed      bool
}

// MemoryRepository holds policies in memory. A sealed policy can no longer change: a
// Put with a different fingerprint fails with ErrPolicyImmutable.
type MemoryRepository struct {
	mu       sync.RWMutex
	policies map[string]*policyEntry
}

// NewMemoryRepository creates a repository seeded with the given policies.
func NewMemoryRepository(policies ...*policyDomain.Policy) (*MemoryRepository, error) {
	r := &MemoryRepository{policies: make(map[string]*policyEntry)}
	for _, p := range policies {
		if err := r.Put(context.Background(), p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func newEntry(p *policyDomain.Policy) (*policyEntry, error) {
	c := p.Clone()
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	fingerprint, err := c.Fingerprint()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", policyDomain.ErrInvalidPolicy, err)
	}
	return &policyEntry{policy: c, fingerprint: fingerprint}, nil
}

// Get returns a copy of the policy.
func (r *MemoryRepository) Get(ctx context.Context, id string) (*policyDomain.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.policies[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", policyDomain.ErrPolicyNotFound, id)
	}
	return e.policy.Clone(), nil
}

// List returns copies of all policies sorted by id.
func (r *MemoryRepository) List(ctx context.Context) ([]*policyDomain.Policy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*policyDomain.Policy, 0, len(r.policies))
	for _, e := range r.policies {
		out = append(out, e.policy.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out, nil
}

// Put validates, normalizes and stores the policy.
func (r *MemoryRepository) Put(ctx context.Context, p *policyDomain.Policy) error {
	entry, err := newEntry(p)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putLocked(entry)
}

func (r *MemoryRepository) putLocked(entry *policyEntry) error {
	id := entry.policy.PolicyID
	if existing, ok := r.policies[id]; ok && existing.sealed {
		if existing.fingerprint != entry.fingerprint {
			return fmt.Errorf("%w: %s", policyDomain.ErrPolicyImmutable, id)
		}
		return nil
	}
	r.policies[id] = entry
	return nil
}

// Seal freezes the policy and returns its fingerprint. Sealing is idempotent.
func (r *MemoryRepository) Seal(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.policies[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", policyDomain.ErrPolicyNotFound, id)
	}
	e.sealed = true
	return e.fingerprint, nil
}

// IsSealed reports whether the policy has been sealed.
func (r *MemoryRepository) IsSealed(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.policies[id]
	return ok && e.sealed
}

// replace swaps the policy set in one step. Sealed policies missing from next are
// kept; a sealed policy whose content changed aborts the whole swap.
func (r *MemoryRepository) replace(next map[string]*policyEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, e := range r.policies {
		if !e.sealed {
			continue
		}
		candidate, ok := next[id]
		if !ok {
			next[id] = e
			continue
		}
		if candidate.fingerprint != e.fingerprint {
			return fmt.Errorf("%w: %s", policyDomain.ErrPolicyImmutable, id)
		}
		next[id] = e
	}
	r.policies = next
	return nil
}
