package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	wormDomain "github.com/allisson/provenance/internal/worm/domain"
)

const (
	badgerRecordPrefix   = "rec/"
	badgerSequencePrefix = "seq/"
)

// BadgerConfig holds configuration for the Badger-backed store.
type BadgerConfig struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Useful for testing.
	InMemory bool

	// SyncWrites forces every commit to disk before it returns.
	SyncWrites bool

	// Logger receives BadgerDB's internal logs. If nil, they are discarded.
	Logger *slog.Logger
}

// DefaultBadgerConfig returns a durable configuration for the given directory.
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// InMemoryBadgerConfig returns a configuration for tests.
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// storedRecord is the persisted value layout.
type storedRecord struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	RecordType  string          `json:"record_type"`
	Data        json.RawMessage `json:"data"`
	ContentHash string          `json:"content_hash"`
	Sequence    uint64          `json:"sequence"`
}

func toStored(r *wormDomain.Record) storedRecord {
	return storedRecord{
		ID:          r.ID,
		Timestamp:   r.Timestamp,
		RecordType:  string(r.RecordType),
		Data:        r.Data,
		ContentHash: r.ContentHash,
		Sequence:    r.Sequence,
	}
}

func (s storedRecord) toRecord() *wormDomain.Record {
	return &wormDomain.Record{
		ID:          s.ID,
		Timestamp:   s.Timestamp.UTC(),
		RecordType:  wormDomain.RecordType(s.RecordType),
		Data:        s.Data,
		ContentHash: s.ContentHash,
		Sequence:    s.Sequence,
	}
}

// BadgerStore persists records in an embedded BadgerDB. Each record is written under
// "rec/<id>" together with a "seq/<%016d>" index entry in a single transaction, so
// replay in commit order is a prefix scan over the sequence index.
type BadgerStore struct {
	db     *badger.DB
	mu     sync.Mutex
	seq    uint64
	logger *slog.Logger
	closed bool
}

// OpenBadgerStore opens (or creates) a Badger-backed store and recovers the last sequence.
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("%w: create database directory %s: %v", wormDomain.ErrStorageIO, cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	logger := cfg.Logger
	if logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: logger})
	} else {
		opts = opts.WithLogger(nil)
		logger = slog.New(slog.DiscardHandler)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: open badger database: %v", wormDomain.ErrStorageIO, err)
	}

	s := &BadgerStore{db: db, logger: logger}
	if err := s.recoverSequence(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// recoverSequence scans for the highest committed sequence number.
func (s *BadgerStore) recoverSequence() error {
	prefix := []byte(badgerSequencePrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		seekKey := append([]byte(badgerSequencePrefix), 0xFF)
		it.Seek(seekKey)
		if it.ValidForPrefix(prefix) {
			var seq uint64
			if _, err := fmt.Sscanf(string(it.Item().Key()[len(prefix):]), "%016d", &seq); err != nil {
				return fmt.Errorf("parse sequence key: %w", err)
			}
			s.seq = seq
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: recover sequence: %v", wormDomain.ErrStorageIO, err)
	}
	s.logger.Debug("badger worm store opened", slog.Uint64("last_sequence", s.seq))
	return nil
}

func recordKey(id string) []byte {
	return []byte(badgerRecordPrefix + id)
}

func sequenceKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%016d", badgerSequencePrefix, seq))
}

// Append writes the record and its sequence entry in one synchronous transaction.
func (s *BadgerStore) Append(ctx context.Context, record *wormDomain.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", wormDomain.ErrStoreClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	next := s.seq + 1
	stored := toStored(record)
	stored.Sequence = next
	value, err := json.Marshal(stored)
	if err != nil {
		return "", fmt.Errorf("%w: encode record: %v", wormDomain.ErrStorageIO, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		_, getErr := txn.Get(recordKey(record.ID))
		if getErr == nil {
			return wormDomain.ErrDuplicateRecord
		}
		if !errors.Is(getErr, badger.ErrKeyNotFound) {
			return getErr
		}
		if err := txn.Set(recordKey(record.ID), value); err != nil {
			return err
		}
		return txn.Set(sequenceKey(next), []byte(record.ID))
	})
	if errors.Is(err, wormDomain.ErrDuplicateRecord) {
		return "", fmt.Errorf("%w: %s", wormDomain.ErrDuplicateRecord, record.ID)
	}
	if err != nil {
		return "", fmt.Errorf("%w: append %s: %v", wormDomain.ErrStorageIO, record.ID, err)
	}

	s.seq = next
	record.Sequence = next
	return record.ID, nil
}

func (s *BadgerStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func readRecord(txn *badger.Txn, id string) (*wormDomain.Record, error) {
	item, err := txn.Get(recordKey(id))
	if err != nil {
		return nil, err
	}
	var stored storedRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &stored)
	}); err != nil {
		return nil, err
	}
	return stored.toRecord(), nil
}

// Get returns the record with the given id after checking its content hash.
func (s *BadgerStore) Get(ctx context.Context, id string) (*wormDomain.Record, error) {
	if s.isClosed() {
		return nil, wormDomain.ErrStoreClosed
	}

	var record *wormDomain.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		record, err = readRecord(txn, id)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", wormDomain.ErrRecordNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get %s: %v", wormDomain.ErrStorageIO, id, err)
	}
	if err := record.Verify(); err != nil {
		return nil, err
	}
	return record, nil
}

// List walks the sequence index in order and returns matching, verified records.
func (s *BadgerStore) List(ctx context.Context, filter wormDomain.ListFilter) ([]*wormDomain.Record, error) {
	if s.isClosed() {
		return nil, wormDomain.ErrStoreClosed
	}

	out := make([]*wormDomain.Record, 0)
	prefix := []byte(badgerSequencePrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			idBytes, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			id := string(idBytes)
			if filter.IDPrefix != "" && !filter.Matches(&wormDomain.Record{ID: id, RecordType: filter.RecordType}) {
				continue
			}
			record, err := readRecord(txn, id)
			if err != nil {
				return fmt.Errorf("%w: sequence entry %s: %v", wormDomain.ErrStorageIO, id, err)
			}
			if !filter.Matches(record) {
				continue
			}
			if err := record.Verify(); err != nil {
				return err
			}
			out = append(out, record)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, wormDomain.ErrContentHashMismatch) || errors.Is(err, wormDomain.ErrStorageIO) ||
			errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: list: %v", wormDomain.ErrStorageIO, err)
	}
	return out, nil
}

// Close flushes and closes the database.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("%w: close badger: %v", wormDomain.ErrStorageIO, err)
	}
	return nil
}
