package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/allisson/provenance/internal/database"
	wormDomain "github.com/allisson/provenance/internal/worm/domain"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// NewMySQLStore creates a store over a MySQL database migrated with Migrate.
func NewMySQLStore(db *sql.DB) *SQLStore {
	return newSQLStore(db, sqlDialect{
		name:        database.DriverMySQL,
		placeholder: questionPlaceholder,
		substr:      "SUBSTRING",
		insert:      lastInsertIDInsert,
		isDuplicate: isMySQLDuplicate,
	})
}

// lastInsertIDInsert inserts with ? placeholders and reads the generated seq back.
func lastInsertIDInsert(ctx context.Context, q database.Querier, r *wormDomain.Record) (uint64, error) {
	query := `INSERT INTO worm_records (id, timestamp, record_type, data, content_hash)
			  VALUES (?, ?, ?, ?, ?)`

	result, err := q.ExecContext(
		ctx,
		query,
		r.ID,
		formatTimestamp(r.Timestamp),
		string(r.RecordType),
		string(r.Data),
		r.ContentHash,
	)
	if err != nil {
		return 0, err
	}
	seq, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(seq), nil
}

func isMySQLDuplicate(err error) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry
}
