// Package repository implements WORM record stores for in-memory, Badger and SQL backends.
package repository

import (
	"context"
	"fmt"
	"sync"

	wormDomain "github.com/allisson/provenance/internal/worm/domain"
)

// MemoryStore keeps records in process memory. It honors the WORM contract but not durability.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*wormDomain.Record
	index   map[string]int
	closed  bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{index: make(map[string]int)}
}

// Append adds the record unless its id is already present.
func (s *MemoryStore) Append(ctx context.Context, record *wormDomain.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", wormDomain.ErrStoreClosed
	}
	if _, exists := s.index[record.ID]; exists {
		return "", fmt.Errorf("%w: %s", wormDomain.ErrDuplicateRecord, record.ID)
	}

	stored := record.Clone()
	stored.Sequence = uint64(len(s.records) + 1)
	s.index[stored.ID] = len(s.records)
	s.records = append(s.records, stored)
	record.Sequence = stored.Sequence
	return stored.ID, nil
}

// Get returns a copy of the record with the given id.
func (s *MemoryStore) Get(ctx context.Context, id string) (*wormDomain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, wormDomain.ErrStoreClosed
	}
	i, ok := s.index[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", wormDomain.ErrRecordNotFound, id)
	}
	record := s.records[i].Clone()
	if err := record.Verify(); err != nil {
		return nil, err
	}
	return record, nil
}

// List returns copies of matching records in insertion order.
func (s *MemoryStore) List(ctx context.Context, filter wormDomain.ListFilter) ([]*wormDomain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, wormDomain.ErrStoreClosed
	}
	out := make([]*wormDomain.Record, 0)
	for _, r := range s.records {
		if !filter.Matches(r) {
			continue
		}
		c := r.Clone()
		if err := c.Verify(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
