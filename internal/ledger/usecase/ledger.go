// Package usecase implements the Merkle ledger: an append-only sequence of leaf hashes
// persisted through a WORM store and replayed into memory on startup.
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/allisson/provenance/internal/canonical"
	ledgerDomain "github.com/allisson/provenance/internal/ledger/domain"
	ledgerService "github.com/allisson/provenance/internal/ledger/service"
	wormDomain "github.com/allisson/provenance/internal/worm/domain"
)

// Config configures a Ledger.
type Config struct {
	// LedgerID scopes the leaf records replayed from the store.
	LedgerID string
	// Algorithm is the leaf and node hash algorithm.
	Algorithm canonical.Algorithm
	// Store persists leaves. Required.
	Store wormDomain.Store
	// Cache holds inclusion proofs. Nil disables caching.
	Cache ProofCache
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Ledger is a WORM Merkle ledger. Appends are serialized under an exclusive lock covering
// the duplicate check, the durable write and the tree update; reads share a reader lock.
type Ledger struct {
	mu        sync.RWMutex
	id        string
	algorithm canonical.Algorithm
	store     wormDomain.Store
	tree      *ledgerService.Tree
	index     map[string]int
	leaves    []ledgerDomain.Leaf
	version   uint64
	cache     ProofCache
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a ledger and replays its leaves from the store in commit order.
func New(ctx context.Context, cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, errors.New("ledger store is required")
	}
	if cfg.LedgerID == "" {
		return nil, errors.New("ledger id is required")
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = canonical.DefaultAlgorithm
	}
	if cfg.Cache == nil {
		cfg.Cache = NewNoopProofCache()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	tree, err := ledgerService.NewTree(cfg.Algorithm)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		id:        cfg.LedgerID,
		algorithm: cfg.Algorithm,
		store:     cfg.Store,
		tree:      tree,
		index:     make(map[string]int),
		cache:     cfg.Cache,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if err := l.replay(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *Ledger) replay(ctx context.Context) error {
	records, err := l.store.List(ctx, wormDomain.ListFilter{
		RecordType: wormDomain.RecordTypeLeaf,
		IDPrefix:   ledgerDomain.LeafRecordPrefix(l.id),
	})
	if err != nil {
		return err
	}

	for _, record := range records {
		var payload ledgerDomain.LeafPayload
		if err := record.Decode(&payload); err != nil {
			return fmt.Errorf("%w: record %s: %v", ledgerDomain.ErrCorruptReplay, record.ID, err)
		}
		// Ids of other ledgers can share this prefix when ledger ids contain ':'.
		if payload.LedgerID != l.id {
			continue
		}
		if record.ID != ledgerDomain.LeafRecordID(l.id, payload.LeafHash) {
			return fmt.Errorf("%w: record %s does not match leaf %s", ledgerDomain.ErrCorruptReplay, record.ID, payload.LeafHash)
		}
		if payload.Algorithm != l.algorithm {
			return fmt.Errorf(
				"%w: leaf %s was hashed with %s, ledger uses %s",
				ledgerDomain.ErrCorruptReplay, payload.LeafHash, payload.Algorithm, l.algorithm,
			)
		}
		if _, exists := l.index[payload.LeafHash]; exists {
			return fmt.Errorf("%w: leaf %s replayed twice", ledgerDomain.ErrCorruptReplay, payload.LeafHash)
		}
		if err := l.appendInMemory(payload.LeafHash, payload.Metadata); err != nil {
			return fmt.Errorf("%w: %v", ledgerDomain.ErrCorruptReplay, err)
		}
	}

	root, err := l.tree.Root()
	if err != nil {
		return err
	}
	l.logger.Info("ledger replayed",
		slog.String("ledger_id", l.id),
		slog.Int("leaves", len(l.leaves)),
		slog.String("root", root),
	)
	return nil
}

func (l *Ledger) appendInMemory(leafHash string, metadata json.RawMessage) error {
	leaf, err := ledgerService.DecodeLeaf(l.algorithm, leafHash)
	if err != nil {
		return err
	}
	if err := l.tree.Append(leaf); err != nil {
		return err
	}
	l.index[leafHash] = len(l.leaves)
	l.leaves = append(l.leaves, ledgerDomain.Leaf{Hash: leafHash, Metadata: metadata, Index: len(l.leaves)})
	l.version++
	return nil
}

// Append durably records leafHash with its metadata and returns the new root.
// A leaf already present yields ErrDuplicateLeaf and leaves the ledger untouched.
func (l *Ledger) Append(ctx context.Context, leafHash string, metadata any) (string, error) {
	if _, err := ledgerService.DecodeLeaf(l.algorithm, leafHash); err != nil {
		return "", err
	}
	if metadata == nil {
		metadata = map[string]any{}
	}
	canonicalMetadata, err := canonical.Canonicalize(metadata)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.index[leafHash]; exists {
		return "", fmt.Errorf("%w: %s", ledgerDomain.ErrDuplicateLeaf, leafHash)
	}

	record, err := wormDomain.NewRecord(
		ledgerDomain.LeafRecordID(l.id, leafHash),
		wormDomain.RecordTypeLeaf,
		ledgerDomain.LeafPayload{
			LedgerID:  l.id,
			LeafHash:  leafHash,
			Algorithm: l.algorithm,
			Metadata:  canonicalMetadata,
		},
		l.now(),
	)
	if err != nil {
		return "", err
	}
	if _, err := l.store.Append(ctx, record); err != nil {
		if errors.Is(err, wormDomain.ErrDuplicateRecord) {
			return "", fmt.Errorf("%w: %s", ledgerDomain.ErrDuplicateLeaf, leafHash)
		}
		return "", err
	}

	if err := l.appendInMemory(leafHash, canonicalMetadata); err != nil {
		return "", err
	}
	l.cache.Invalidate()
	root, err := l.tree.Root()
	if err != nil {
		return "", err
	}
	l.logger.Debug("leaf appended",
		slog.String("ledger_id", l.id),
		slog.String("leaf_hash", leafHash),
		slog.Int("index", len(l.leaves)-1),
		slog.String("root", root),
	)
	return root, nil
}

// Root returns the current root.
func (l *Ledger) Root() (string, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.tree.Root()
}

// Proof returns the inclusion proof of leafHash against the current root.
func (l *Ledger) Proof(leafHash string) (ledgerDomain.Proof, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.index[leafHash]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ledgerDomain.ErrLeafNotFound, leafHash)
	}
	if proof, hit := l.cache.Get(l.version, leafHash); hit {
		return proof, nil
	}
	proof, err := l.tree.Proof(idx)
	if err != nil {
		return nil, err
	}
	l.cache.Set(l.version, leafHash, proof)
	return proof.Clone(), nil
}

// ProofWithRoot returns the proof and the root it verifies against, read atomically.
func (l *Ledger) ProofWithRoot(leafHash string) (ledgerDomain.Proof, string, error) {
	proof, root, _, err := l.ProofSnapshot(leafHash)
	return proof, root, err
}

// ProofSnapshot returns the proof together with the root and leaf count it was
// computed against.
func (l *Ledger) ProofSnapshot(leafHash string) (ledgerDomain.Proof, string, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.index[leafHash]
	if !ok {
		return nil, "", 0, fmt.Errorf("%w: %s", ledgerDomain.ErrLeafNotFound, leafHash)
	}
	root, err := l.tree.Root()
	if err != nil {
		return nil, "", 0, err
	}
	if proof, hit := l.cache.Get(l.version, leafHash); hit {
		return proof, root, len(l.leaves), nil
	}
	proof, err := l.tree.Proof(idx)
	if err != nil {
		return nil, "", 0, err
	}
	l.cache.Set(l.version, leafHash, proof)
	return proof.Clone(), root, len(l.leaves), nil
}

// Snapshot returns the root and leaf count, read atomically.
func (l *Ledger) Snapshot() (string, int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	root, err := l.tree.Root()
	if err != nil {
		return "", 0, err
	}
	return root, len(l.leaves), nil
}

// Verify checks a proof with the ledger's algorithm. It does not consult ledger state.
func (l *Ledger) Verify(leafHash string, proof ledgerDomain.Proof, root string) bool {
	return ledgerService.Verify(l.algorithm, leafHash, proof, root)
}

// Contains reports whether leafHash is in the ledger.
func (l *Ledger) Contains(leafHash string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.index[leafHash]
	return ok
}

// Leaf returns the leaf and its metadata.
func (l *Ledger) Leaf(leafHash string) (ledgerDomain.Leaf, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	idx, ok := l.index[leafHash]
	if !ok {
		return ledgerDomain.Leaf{}, fmt.Errorf("%w: %s", ledgerDomain.ErrLeafNotFound, leafHash)
	}
	leaf := l.leaves[idx]
	leaf.Metadata = append(json.RawMessage(nil), leaf.Metadata...)
	return leaf, nil
}

// LeafHashes returns the ordered leaf hashes.
func (l *Ledger) LeafHashes() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]string, len(l.leaves))
	for i, leaf := range l.leaves {
		out[i] = leaf.Hash
	}
	return out
}

// Len returns the number of leaves.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.leaves)
}

// Version increments on every append and identifies a tree state.
func (l *Ledger) Version() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.version
}

// ID returns the ledger id.
func (l *Ledger) ID() string {
	return l.id
}

// Algorithm returns the hash algorithm.
func (l *Ledger) Algorithm() canonical.Algorithm {
	return l.algorithm
}

// Close releases the proof cache. The store is owned by the caller.
func (l *Ledger) Close() {
	l.cache.Close()
}
