package usecase

import (
	"strconv"

	"github.com/dgraph-io/ristretto/v2"

	ledgerDomain "github.com/allisson/provenance/internal/ledger/domain"
)

// ProofCache stores inclusion proofs keyed by tree version and leaf hash.
type ProofCache interface {
	Get(version uint64, leafHash string) (ledgerDomain.Proof, bool)
	Set(version uint64, leafHash string, proof ledgerDomain.Proof)
	// Invalidate drops every cached proof. Called after each append.
	Invalidate()
	Close()
}

func proofCacheKey(version uint64, leafHash string) string {
	return strconv.FormatUint(version, 10) + ":" + leafHash
}

// RistrettoProofCache is a bounded admission-controlled cache backed by ristretto.
// Each proof costs 1, so maxProofs bounds the number of entries.
type RistrettoProofCache struct {
	cache *ristretto.Cache[string, ledgerDomain.Proof]
}

// NewRistrettoProofCache creates a cache holding roughly maxProofs proofs.
func NewRistrettoProofCache(maxProofs int) (*RistrettoProofCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, ledgerDomain.Proof]{
		NumCounters:        int64(maxProofs) * 10,
		MaxCost:            int64(maxProofs),
		BufferItems:        64,
		// Costs count proofs, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &RistrettoProofCache{cache: cache}, nil
}

// Get returns a copy of the cached proof.
func (c *RistrettoProofCache) Get(version uint64, leafHash string) (ledgerDomain.Proof, bool) {
	proof, ok := c.cache.Get(proofCacheKey(version, leafHash))
	if !ok {
		return nil, false
	}
	return proof.Clone(), true
}

// Set stores a copy of proof. Admission is best-effort.
func (c *RistrettoProofCache) Set(version uint64, leafHash string, proof ledgerDomain.Proof) {
	c.cache.Set(proofCacheKey(version, leafHash), proof.Clone(), 1)
}

// Wait blocks until buffered writes are applied.
func (c *RistrettoProofCache) Wait() {
	c.cache.Wait()
}

// Invalidate clears the cache.
func (c *RistrettoProofCache) Invalidate() {
	c.cache.Clear()
}

// Close stops the cache goroutines.
func (c *RistrettoProofCache) Close() {
	c.cache.Close()
}

type noopProofCache struct{}

// NewNoopProofCache returns a cache that never stores anything.
func NewNoopProofCache() ProofCache {
	return noopProofCache{}
}

func (noopProofCache) Get(uint64, string) (ledgerDomain.Proof, bool) { return nil, false }
func (noopProofCache) Set(uint64, string, ledgerDomain.Proof) {}
func (noopProofCache) Invalidate() {}
func (noopProofCache) Close() {}

// NewProofCache returns a ristretto cache, or a no-op cache when size is zero.
func NewProofCache(size int) (ProofCache, error) {
	if size <= 0 {
		return NewNoopProofCache(), nil
	}
	return NewRistrettoProofCache(size)
}
