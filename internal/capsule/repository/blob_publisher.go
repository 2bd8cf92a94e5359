// Package repository publishes proof capsules to blob storage.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gocloud.dev/blob"

	"github.com/allisson/provenance/internal/blobstore"
	capsuleDomain "github.com/allisson/provenance/internal/capsule/domain"
	capsuleService "github.com/allisson/provenance/internal/capsule/service"
)

// BlobPublisher stores capsules as write-once JSON objects keyed by capsule hash.
type BlobPublisher struct {
	bucket *blob.Bucket
	prefix string
}

// NewBlobPublisher creates a publisher writing under prefix.
func NewBlobPublisher(bucket *blob.Bucket, prefix string) *BlobPublisher {
	return &BlobPublisher{bucket: bucket, prefix: strings.TrimSuffix(prefix, "/")}
}

// Key returns the object key of a capsule hash.
func (p *BlobPublisher) Key(capsuleHash string) string {
	key := capsuleHash + ".json"
	if p.prefix == "" {
		return key
	}
	return p.prefix + "/" + key
}

// Publish writes the capsule and returns its key. Publishing the same capsule twice is a no-op.
func (p *BlobPublisher) Publish(ctx context.Context, c *capsuleDomain.Capsule) (string, error) {
	if c.Verification.CapsuleHash == "" {
		return "", fmt.Errorf("%w: capsule hash is required", capsuleDomain.ErrInvalidCapsule)
	}
	data, err := capsuleService.Marshal(c)
	if err != nil {
		return "", err
	}
	key := p.Key(c.Verification.CapsuleHash)
	if err := blobstore.WriteOnce(ctx, p.bucket, key, data, "application/json"); err != nil &&
		!errors.Is(err, blobstore.ErrObjectExists) {
		return "", err
	}
	return key, nil
}

// Fetch reads a published capsule by hash.
func (p *BlobPublisher) Fetch(ctx context.Context, capsuleHash string) (*capsuleDomain.Capsule, error) {
	data, err := blobstore.Read(ctx, p.bucket, p.Key(capsuleHash))
	if errors.Is(err, blobstore.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: %s", capsuleDomain.ErrCapsuleNotFound, capsuleHash)
	}
	if err != nil {
		return nil, err
	}
	return capsuleService.Unmarshal(data)
}

// Close releases the bucket.
func (p *BlobPublisher) Close() error {
	return p.bucket.Close()
}
