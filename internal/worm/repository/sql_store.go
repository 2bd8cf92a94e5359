package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/allisson/provenance/internal/database"
	wormDomain "github.com/allisson/provenance/internal/worm/domain"
)

const selectRecordColumns = `SELECT seq, id, timestamp, record_type, data, content_hash FROM worm_records`

// sqlDialect captures the per-driver differences of the worm_records queries.
type sqlDialect struct {
	name        string
	placeholder func(n int) string
	substr      string
	insert      func(ctx context.Context, q database.Querier, r *wormDomain.Record) (uint64, error)
	isDuplicate func(err error) bool
}

// SQLStore persists records in the worm_records table of a relational database.
//
// Append runs the existence check and the insert in one transaction through TxManager and
// relies on the unique id constraint as the final arbiter between concurrent writers. The
// table carries triggers that reject UPDATE and DELETE. The store owns db and closes it.
//
// seq is assigned by the database at insert time, not at commit. Postgres and MySQL hand
// out identity values outside transaction isolation, so two writers whose transactions
// overlap can commit out of seq order. Order-sensitive records (ledger leaves) must
// therefore come from a single serialized writer: one process per ledger, where the
// ledger's append lock already orders them. SQLite serializes write transactions itself.
type SQLStore struct {
	db        *sql.DB
	txManager database.TxManager
	dialect   sqlDialect
	mu        sync.RWMutex
	closed    bool
}

func newSQLStore(db *sql.DB, dialect sqlDialect) *SQLStore {
	return &SQLStore{
		db:        db,
		txManager: database.NewTxManager(db, nil),
		dialect:   dialect,
	}
}

func (s *SQLStore) ph(n int) string {
	return s.dialect.placeholder(n)
}

// Append inserts the record unless its id already exists.
func (s *SQLStore) Append(ctx context.Context, record *wormDomain.Record) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return "", wormDomain.ErrStoreClosed
	}

	var seq uint64
	err := s.txManager.WithTx(ctx, func(ctx context.Context) error {
		querier := database.GetTx(ctx, s.db)

		var exists int
		query := `SELECT 1 FROM worm_records WHERE id = ` + s.ph(1)
		err := querier.QueryRowContext(ctx, query, record.ID).Scan(&exists)
		if err == nil {
			return wormDomain.ErrDuplicateRecord
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		seq, err = s.dialect.insert(ctx, querier, record)
		if err != nil && s.dialect.isDuplicate(err) {
			return wormDomain.ErrDuplicateRecord
		}
		return err
	})
	if errors.Is(err, wormDomain.ErrDuplicateRecord) {
		return "", fmt.Errorf("%w: %s", wormDomain.ErrDuplicateRecord, record.ID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s append %s: %v", wormDomain.ErrStorageIO, s.dialect.name, record.ID, err)
	}

	record.Sequence = seq
	return record.ID, nil
}

func scanRecord(scan func(dest ...any) error) (*wormDomain.Record, error) {
	var (
		seq         int64
		id          string
		timestamp   string
		recordType  string
		data        string
		contentHash string
	)
	if err := scan(&seq, &id, &timestamp, &recordType, &data, &contentHash); err != nil {
		return nil, err
	}
	ts, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		return nil, fmt.Errorf("parse timestamp of %s: %w", id, err)
	}
	return &wormDomain.Record{
		ID:          id,
		Timestamp:   ts.UTC(),
		RecordType:  wormDomain.RecordType(recordType),
		Data:        json.RawMessage(data),
		ContentHash: contentHash,
		Sequence:    uint64(seq),
	}, nil
}

// Get returns the record with the given id after checking its content hash.
func (s *SQLStore) Get(ctx context.Context, id string) (*wormDomain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wormDomain.ErrStoreClosed
	}

	querier := database.GetTx(ctx, s.db)
	query := selectRecordColumns + ` WHERE id = ` + s.ph(1)
	record, err := scanRecord(querier.QueryRowContext(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", wormDomain.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s get %s: %v", wormDomain.ErrStorageIO, s.dialect.name, id, err)
	}
	if err := record.Verify(); err != nil {
		return nil, err
	}
	return record, nil
}

// List returns matching records ordered by commit sequence.
func (s *SQLStore) List(ctx context.Context, filter wormDomain.ListFilter) ([]*wormDomain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, wormDomain.ErrStoreClosed
	}

	var (
		conditions []string
		args       []any
	)
	if filter.RecordType != "" {
		args = append(args, string(filter.RecordType))
		conditions = append(conditions, "record_type = "+s.ph(len(args)))
	}
	if filter.IDPrefix != "" {
		args = append(args, len(filter.IDPrefix))
		lengthArg := s.ph(len(args))
		args = append(args, filter.IDPrefix)
		conditions = append(conditions, fmt.Sprintf("%s(id, 1, %s) = %s", s.dialect.substr, lengthArg, s.ph(len(args))))
	}

	query := selectRecordColumns
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY seq ASC"

	querier := database.GetTx(ctx, s.db)
	rows, err := querier.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s list: %v", wormDomain.ErrStorageIO, s.dialect.name, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	out := make([]*wormDomain.Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("%w: %s list: %v", wormDomain.ErrStorageIO, s.dialect.name, err)
		}
		if !filter.Matches(record) {
			continue
		}
		if err := record.Verify(); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s list: %v", wormDomain.ErrStorageIO, s.dialect.name, err)
	}
	return out, nil
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: %s close: %v", wormDomain.ErrStorageIO, s.dialect.name, err)
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func questionPlaceholder(int) string {
	return "?"
}
