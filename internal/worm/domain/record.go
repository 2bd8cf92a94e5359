// Package domain defines the write-once record envelope persisted by every WORM backend.
package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/allisson/provenance/internal/canonical"
)

// RecordType is the wire name of a record's payload kind.
type RecordType string

// Record types written by the application.
const (
	RecordTypeLeaf           RecordType = "leaf"
	RecordTypeAnchor         RecordType = "anchor"
	RecordTypeRiskAssessment RecordType = "risk_assessment"
)

// ContentHashAlgorithm is fixed so stored hashes stay comparable across configuration changes.
const ContentHashAlgorithm = canonical.SHA256

// Record is the durable envelope stored by a WORM backend. Sequence is the commit
// position assigned by the store and is not part of the persisted content.
type Record struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	RecordType  RecordType      `json:"record_type"`
	Data        json.RawMessage `json:"data"`
	ContentHash string          `json:"content_hash"`
	Sequence    uint64          `json:"-"`
}

// NewRecord canonicalizes data and seals it into a Record. Timestamps are truncated to
// microseconds in UTC so every backend round-trips them exactly.
func NewRecord(id string, recordType RecordType, data any, timestamp time.Time) (*Record, error) {
	if strings.TrimSpace(id) == "" || recordType == "" {
		return nil, fmt.Errorf("%w: id and record type are required", ErrInvalidRecord)
	}
	payload, err := canonical.Canonicalize(data)
	if err != nil {
		return nil, err
	}

	r := &Record{
		ID:         id,
		Timestamp:  timestamp.UTC().Truncate(time.Microsecond),
		RecordType: recordType,
		Data:       payload,
	}
	r.ContentHash, err = r.ComputeContentHash()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ComputeContentHash hashes the canonical envelope {id, record_type, timestamp, data}.
func (r *Record) ComputeContentHash() (string, error) {
	envelope := map[string]any{
		"id":          r.ID,
		"record_type": string(r.RecordType),
		"timestamp":   r.Timestamp.UTC().Format(time.RFC3339Nano),
		"data":        r.Data,
	}
	_, digest, err := canonical.HashValue(envelope, ContentHashAlgorithm)
	return digest, err
}

// Verify recomputes the content hash and reports ErrContentHashMismatch on divergence.
func (r *Record) Verify() error {
	digest, err := r.ComputeContentHash()
	if err != nil {
		return fmt.Errorf("%w: record %s: %v", ErrContentHashMismatch, r.ID, err)
	}
	if digest != r.ContentHash {
		return fmt.Errorf("%w: record %s", ErrContentHashMismatch, r.ID)
	}
	return nil
}

// Decode unmarshals the record payload into v.
func (r *Record) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (r *Record) Clone() *Record {
	c := *r
	c.Data = append(json.RawMessage(nil), r.Data...)
	return &c
}

// ListFilter narrows List results. Zero values match everything.
type ListFilter struct {
	RecordType RecordType
	IDPrefix   string
}

// Matches reports whether the record satisfies the filter.
func (f ListFilter) Matches(r *Record) bool {
	if f.RecordType != "" && r.RecordType != f.RecordType {
		return false
	}
	if f.IDPrefix != "" && !strings.HasPrefix(r.ID, f.IDPrefix) {
		return false
	}
	return true
}
