package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	anchorDomain "github.com/allisson/provenance/internal/anchor/domain"
	"github.com/allisson/provenance/internal/blobstore"
	capsuleDomain "github.com/allisson/provenance/internal/capsule/domain"
	"github.com/allisson/provenance/internal/canonical"
)

func testCapsule(t *testing.T) *capsuleDomain.Capsule {
	t.Helper()
	c := &capsuleDomain.Capsule{
		CapsuleVersion: capsuleDomain.Version,
		CapsuleType:    capsuleDomain.Type,
		Timestamp:      time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Record: capsuleDomain.Record{
			Type:     canonical.RecordTypeModel,
			Metadata: []byte(`{"model_id":"m1"}`),
			LeafHash: strings.Repeat("1", 64),
		},
		Proofs: capsuleDomain.Proofs{MerkleRoot: strings.Repeat("1", 64), HashAlgorithm: canonical.SHA256},
		Anchor: &anchorDomain.AnchorRecord{Root: strings.Repeat("1", 64), PolicyID: "default"},
	}
	digest, err := c.ComputeHash()
	require.NoError(t, err)
	c.Verification.CapsuleHash = digest
	return c
}

func TestBlobPublisher(t *testing.T) {
	ctx := context.Background()
	bucket, err := blobstore.Open(ctx, "mem://")
	require.NoError(t, err)
	publisher := NewBlobPublisher(bucket, "capsules/")
	defer func() { _ = publisher.Close() }()

	c := testCapsule(t)
	key, err := publisher.Publish(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, "capsules/"+c.Verification.CapsuleHash+".json", key)

	again, err := publisher.Publish(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, key, again)

	fetched, err := publisher.Fetch(ctx, c.Verification.CapsuleHash)
	require.NoError(t, err)
	assert.Equal(t, c.Verification.CapsuleHash, fetched.Verification.CapsuleHash)
	assert.JSONEq(t, `{"model_id":"m1"}`, string(fetched.Record.Metadata))

	_, err = publisher.Fetch(ctx, strings.Repeat("0", 64))
	assert.ErrorIs(t, err, capsuleDomain.ErrCapsuleNotFound)

	_, err = publisher.Publish(ctx, &capsuleDomain.Capsule{})
	assert.ErrorIs(t, err, capsuleDomain.ErrInvalidCapsule)
}
