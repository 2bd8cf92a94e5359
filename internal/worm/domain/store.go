package domain

import "context"

// Store is an append-only record store. Implementations must make the duplicate check
// and insert atomic, force each write to stable storage before Append returns and
// return List results in commit order. Commit order equals Append order for appends
// that a single writer serializes; the ledger relies on nothing stronger.
type Store interface {
	// Append commits the record and returns its id. A pre-existing id yields ErrDuplicateRecord.
	Append(ctx context.Context, record *Record) (string, error)
	// Get returns the record with the given id after verifying its content hash.
	Get(ctx context.Context, id string) (*Record, error)
	// List returns matching records in commit order, each verified against its content hash.
	List(ctx context.Context, filter ListFilter) ([]*Record, error)
	// Close releases the backend. Further calls fail with ErrStoreClosed.
	Close() error
}
