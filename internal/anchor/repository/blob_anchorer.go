// Package repository publishes anchors to external write-once storage.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gocloud.dev/blob"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	"github.com/allisson/provenance/internal/blobstore"
	"github.com/allisson/provenance/internal/canonical"
)

// BlobAnchorer publishes each signed anchor as a write-once object, giving an external
// witness of the root outside the ledger's own store.
type BlobAnchorer struct {
	bucket   *blob.Bucket
	provider string
	prefix   string
	now      func() time.Time
}

// NewBlobAnchorer creates a BlobAnchorer. provider names the bucket in receipts.
func NewBlobAnchorer(bucket *blob.Bucket, provider, prefix string, now func() time.Time) *BlobAnchorer {
	if now == nil {
		now = time.Now
	}
	return &BlobAnchorer{bucket: bucket, provider: provider, prefix: strings.TrimSuffix(prefix, "/"), now: now}
}

// Key returns the object key of an anchor.
func (b *BlobAnchorer) Key(a *anchorDomain.AnchorRecord) string {
	key := a.LedgerID + "/" + a.Root + "/" + a.PolicyID + ".json"
	if b.prefix == "" {
		return key
	}
	return b.prefix + "/" + key
}

// Anchor writes the canonical anchor document. An identical object already present is
// accepted so retries stay idempotent.
func (b *BlobAnchorer) Anchor(ctx context.Context, a *anchorDomain.AnchorRecord) (*anchorDomain.ExternalAnchor, error) {
	data, err := canonical.Canonicalize(a)
	if err != nil {
		return nil, err
	}
	key := b.Key(a)

	err = blobstore.WriteOnce(ctx, b.bucket, key, data, "application/json")
	if errors.Is(err, blobstore.ErrObjectExists) {
		existing, readErr := blobstore.Read(ctx, b.bucket, key)
		if readErr != nil {
			return nil, readErr
		}
		var stored anchorDomain.AnchorRecord
		if decodeErr := json.Unmarshal(existing, &stored); decodeErr != nil || stored.Signature != a.Signature {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return &anchorDomain.ExternalAnchor{
		Provider:  b.provider,
		Reference: key,
		Timestamp: b.now().UTC().Truncate(time.Microsecond),
	}, nil
}
