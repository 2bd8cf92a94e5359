package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allisson/provenance/internal/database"
	apperrors "github.com/allisson/provenance/internal/errors"
	"github.com/allisson/provenance/internal/testutil"
	wormDomain "github.com/allisson/provenance/internal/worm/domain"
)

type storeFactory struct {
	name string
	open func(t *testing.T) wormDomain.Store
}

func openSQLiteStore(t *testing.T, path string) *SQLStore {
	t.Helper()
	db, err := database.ConnectSQLite(path)
	require.NoError(t, err)
	require.NoError(t, Migrate(db, database.DriverSQLite, testutil.Logger()))
	return NewSQLiteStore(db)
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{
			name: "memory",
			open: func(t *testing.T) wormDomain.Store { return NewMemoryStore() },
		},
		{
			name: "badger",
			open: func(t *testing.T) wormDomain.Store {
				s, err := OpenBadgerStore(InMemoryBadgerConfig())
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) wormDomain.Store {
				return openSQLiteStore(t, filepath.Join(t.TempDir(), "worm.db"))
			},
		},
	}
}

func newTestRecord(t *testing.T, id string, recordType wormDomain.RecordType) *wormDomain.Record {
	t.Helper()
	r, err := wormDomain.NewRecord(id, recordType, map[string]any{"id": id, "n": 1}, time.Now())
	require.NoError(t, err)
	return r
}

func TestStores_AppendAndGet(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t)
			defer func() {
				assert.NoError(t, store.Close())
			}()

			record := newTestRecord(t, "leaf:main:aa", wormDomain.RecordTypeLeaf)
			id, err := store.Append(ctx, record)
			require.NoError(t, err)
			assert.Equal(t, "leaf:main:aa", id)
			assert.Equal(t, uint64(1), record.Sequence)

			got, err := store.Get(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, record.ID, got.ID)
			assert.Equal(t, record.RecordType, got.RecordType)
			assert.Equal(t, string(record.Data), string(got.Data))
			assert.Equal(t, record.ContentHash, got.ContentHash)
			assert.True(t, record.Timestamp.Equal(got.Timestamp))

			_, err = store.Get(ctx, "missing")
			assert.ErrorIs(t, err, wormDomain.ErrRecordNotFound)
			assert.ErrorIs(t, err, apperrors.ErrNotFound)
		})
	}
}

func TestStores_DuplicateRejected(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t)
			defer func() {
				_ = store.Close()
			}()

			first := newTestRecord(t, "anchor:main:root:p", wormDomain.RecordTypeAnchor)
			_, err := store.Append(ctx, first)
			require.NoError(t, err)

			second, err := wormDomain.NewRecord(
				"anchor:main:root:p", wormDomain.RecordTypeAnchor, map[string]any{"other": true}, time.Now(),
			)
			require.NoError(t, err)
			_, err = store.Append(ctx, second)
			assert.ErrorIs(t, err, wormDomain.ErrDuplicateRecord)
			assert.ErrorIs(t, err, apperrors.ErrConflict)

			got, err := store.Get(ctx, "anchor:main:root:p")
			require.NoError(t, err)
			assert.Equal(t, first.ContentHash, got.ContentHash)

			all, err := store.List(ctx, wormDomain.ListFilter{})
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestStores_ListOrderAndFilter(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t)
			defer func() {
				_ = store.Close()
			}()

			ids := []string{"leaf:a:3", "leaf:b:1", "anchor:a:x:p", "leaf:a:1", "leaf:a_b:9", "leaf:a:2"}
			for _, id := range ids {
				rt := wormDomain.RecordTypeLeaf
				if id[:6] == "anchor" {
					rt = wormDomain.RecordTypeAnchor
				}
				_, err := store.Append(ctx, newTestRecord(t, id, rt))
				require.NoError(t, err)
			}

			all, err := store.List(ctx, wormDomain.ListFilter{})
			require.NoError(t, err)
			require.Len(t, all, len(ids))
			for i, r := range all {
				assert.Equal(t, ids[i], r.ID)
				assert.Equal(t, uint64(i+1), r.Sequence)
			}

			leavesA, err := store.List(ctx, wormDomain.ListFilter{
				RecordType: wormDomain.RecordTypeLeaf,
				IDPrefix:   "leaf:a:",
			})
			require.NoError(t, err)
			got := make([]string, 0, len(leavesA))
			for _, r := range leavesA {
				got = append(got, r.ID)
			}
			assert.Equal(t, []string{"leaf:a:3", "leaf:a:1", "leaf:a:2"}, got)

			anchors, err := store.List(ctx, wormDomain.ListFilter{RecordType: wormDomain.RecordTypeAnchor})
			require.NoError(t, err)
			require.Len(t, anchors, 1)
			assert.Equal(t, "anchor:a:x:p", anchors[0].ID)
		})
	}
}

func TestStores_ConcurrentDuplicateAppends(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t)
			defer func() {
				_ = store.Close()
			}()

			const workers = 8
			var (
				wg        sync.WaitGroup
				successes atomic.Int32
				conflicts atomic.Int32
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.Append(ctx, newTestRecord(t, "leaf:race:1", wormDomain.RecordTypeLeaf))
					switch {
					case err == nil:
						successes.Add(1)
					case apperrors.Is(err, wormDomain.ErrDuplicateRecord):
						conflicts.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), successes.Load())
			assert.Equal(t, int32(workers-1), conflicts.Load())
		})
	}
}

func TestStores_ConcurrentDistinctAppends(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t)
			defer func() {
				_ = store.Close()
			}()

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, err := store.Append(ctx, newTestRecord(t, fmt.Sprintf("leaf:c:%02d", i), wormDomain.RecordTypeLeaf))
					assert.NoError(t, err)
				}(i)
			}
			wg.Wait()

			all, err := store.List(ctx, wormDomain.ListFilter{})
			require.NoError(t, err)
			require.Len(t, all, 20)
			for i, r := range all {
				assert.Equal(t, uint64(i+1), r.Sequence)
			}
		})
	}
}

func TestStores_Closed(t *testing.T) {
	for _, f := range storeFactories() {
		t.Run(f.name, func(t *testing.T) {
			ctx := context.Background()
			store := f.open(t)
			require.NoError(t, store.Close())

			_, err := store.Append(ctx, newTestRecord(t, "x", wormDomain.RecordTypeLeaf))
			assert.ErrorIs(t, err, wormDomain.ErrStoreClosed)
			_, err = store.Get(ctx, "x")
			assert.ErrorIs(t, err, wormDomain.ErrStoreClosed)
			_, err = store.List(ctx, wormDomain.ListFilter{})
			assert.ErrorIs(t, err, wormDomain.ErrStoreClosed)
		})
	}
}

func TestBadgerStore_ReplayAfterRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := OpenBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	for _, id := range []string{"leaf:l:b", "leaf:l:a", "leaf:l:c"} {
		_, err := store.Append(ctx, newTestRecord(t, id, wormDomain.RecordTypeLeaf))
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := OpenBadgerStore(DefaultBadgerConfig(dir))
	require.NoError(t, err)
	defer func() {
		_ = reopened.Close()
	}()

	records, err := reopened.List(ctx, wormDomain.ListFilter{IDPrefix: "leaf:l:"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "leaf:l:b", records[0].ID)
	assert.Equal(t, "leaf:l:a", records[1].ID)
	assert.Equal(t, "leaf:l:c", records[2].ID)

	next := newTestRecord(t, "leaf:l:d", wormDomain.RecordTypeLeaf)
	_, err = reopened.Append(ctx, next)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), next.Sequence)

	_, err = reopened.Append(ctx, newTestRecord(t, "leaf:l:a", wormDomain.RecordTypeLeaf))
	assert.ErrorIs(t, err, wormDomain.ErrDuplicateRecord)
}

func TestBadgerStore_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	store, err := OpenBadgerStore(InMemoryBadgerConfig())
	require.NoError(t, err)
	defer func() {
		_ = store.Close()
	}()

	record := newTestRecord(t, "leaf:t:1", wormDomain.RecordTypeLeaf)
	_, err = store.Append(ctx, record)
	require.NoError(t, err)

	tampered := toStored(record)
	tampered.Data = []byte(`{"id":"leaf:t:1","n":2}`)
	value, err := json.Marshal(tampered)
	require.NoError(t, err)
	require.NoError(t, store.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(record.ID), value)
	}))

	_, err = store.Get(ctx, record.ID)
	assert.ErrorIs(t, err, wormDomain.ErrContentHashMismatch)
	_, err = store.List(ctx, wormDomain.ListFilter{})
	assert.ErrorIs(t, err, wormDomain.ErrContentHashMismatch)
}

func TestOpenBadgerStore_RequiresPath(t *testing.T) {
	_, err := OpenBadgerStore(BadgerConfig{})
	assert.Error(t, err)
}

func TestSQLiteStore_ReplayAfterRestart(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "worm.db")

	store := openSQLiteStore(t, path)
	for _, id := range []string{"leaf:s:2", "leaf:s:1"} {
		_, err := store.Append(ctx, newTestRecord(t, id, wormDomain.RecordTypeLeaf))
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened := openSQLiteStore(t, path)
	defer func() {
		_ = reopened.Close()
	}()

	records, err := reopened.List(ctx, wormDomain.ListFilter{IDPrefix: "leaf:s:"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "leaf:s:2", records[0].ID)
	assert.Equal(t, "leaf:s:1", records[1].ID)
}

func TestSQLiteStore_SerializedWritersReplayInAppendOrder(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "worm.db")
	first := openSQLiteStore(t, path)
	second := openSQLiteStore(t, path)

	var appended []string
	for i := 0; i < 6; i++ {
		writer := first
		if i%2 == 1 {
			writer = second
		}
		id := fmt.Sprintf("leaf:shared:%02d", i)
		_, err := writer.Append(ctx, newTestRecord(t, id, wormDomain.RecordTypeLeaf))
		require.NoError(t, err)
		appended = append(appended, id)
	}
	require.NoError(t, first.Close())
	require.NoError(t, second.Close())

	reopened := openSQLiteStore(t, path)
	defer func() { _ = reopened.Close() }()
	records, err := reopened.List(ctx, wormDomain.ListFilter{RecordType: wormDomain.RecordTypeLeaf})
	require.NoError(t, err)
	require.Len(t, records, len(appended))
	for i, r := range records {
		assert.Equal(t, appended[i], r.ID)
		assert.Equal(t, uint64(i+1), r.Sequence)
	}
}

func TestSQLiteStore_RejectsUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t, filepath.Join(t.TempDir(), "worm.db"))
	defer func() {
		_ = store.Close()
	}()

	_, err := store.Append(ctx, newTestRecord(t, "leaf:g:1", wormDomain.RecordTypeLeaf))
	require.NoError(t, err)

	_, err = store.db.Exec(`UPDATE worm_records SET data = '{}' WHERE id = ?`, "leaf:g:1")
	assert.ErrorContains(t, err, "append-only")
	_, err = store.db.Exec(`DELETE FROM worm_records WHERE id = ?`, "leaf:g:1")
	assert.ErrorContains(t, err, "append-only")
}

func TestSQLiteStore_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	store := openSQLiteStore(t, filepath.Join(t.TempDir(), "worm.db"))
	defer func() {
		_ = store.Close()
	}()

	_, err := store.Append(ctx, newTestRecord(t, "leaf:h:1", wormDomain.RecordTypeLeaf))
	require.NoError(t, err)

	_, err = store.db.Exec(`DROP TRIGGER worm_records_no_update`)
	require.NoError(t, err)
	_, err = store.db.Exec(`UPDATE worm_records SET data = '{"id":"leaf:h:1","n":5}' WHERE id = ?`, "leaf:h:1")
	require.NoError(t, err)

	_, err = store.Get(ctx, "leaf:h:1")
	assert.ErrorIs(t, err, wormDomain.ErrContentHashMismatch)
}

func TestMigrate_Idempotent(t *testing.T) {
	db := testutil.OpenSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	require.NoError(t, Migrate(db, database.DriverSQLite, testutil.Logger()))
	require.NoError(t, Migrate(db, database.DriverSQLite, testutil.Logger()))
	assert.Error(t, Migrate(db, "oracle", testutil.Logger()))
}
