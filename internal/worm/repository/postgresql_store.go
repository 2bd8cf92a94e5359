package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/allisson/provenance/internal/database"
	wormDomain "github.com/allisson/provenance/internal/worm/domain"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// NewPostgreSQLStore creates a store over a PostgreSQL database migrated with Migrate.
func NewPostgreSQLStore(db *sql.DB) *SQLStore {
	return newSQLStore(db, sqlDialect{
		name:        database.DriverPostgres,
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		substr:      "substr",
		insert:      postgresInsert,
		isDuplicate: isPostgresDuplicate,
	})
}

func postgresInsert(ctx context.Context, q database.Querier, r *wormDomain.Record) (uint64, error) {
	query := `INSERT INTO worm_records (id, timestamp, record_type, data, content_hash)
			  VALUES ($1, $2, $3, $4, $5) RETURNING seq`

	var seq int64
	err := q.QueryRowContext(
		ctx,
		query,
		r.ID,
		formatTimestamp(r.Timestamp),
		string(r.RecordType),
		string(r.Data),
		r.ContentHash,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

func isPostgresDuplicate(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == pgUniqueViolation
}
