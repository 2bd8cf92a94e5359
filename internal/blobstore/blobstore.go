// Package blobstore opens gocloud.dev buckets for publishing capsules and external
// anchor receipts.
package blobstore

import (
	"context"
	"fmt"

	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"

	"github.com/allisson/provenance/internal/errors"

	// Register bucket drivers
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
)

// Blob errors.
var (
	// ErrObjectExists indicates a write-once object is already present.
	ErrObjectExists = errors.Wrap(errors.ErrConflict, "object already exists")

	// ErrObjectNotFound indicates the object does not exist.
	ErrObjectNotFound = errors.Wrap(errors.ErrNotFound, "object not found")

	// ErrBucket indicates a bucket could not be opened or written.
	ErrBucket = errors.Wrap(errors.ErrStorage, "bucket error")
)

// Open opens a bucket by URL.
// Supports: file://, mem://, s3://, gs://
func Open(ctx context.Context, url string) (*blob.Bucket, error) {
	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrBucket, url, err)
	}
	return bucket, nil
}

// WriteOnce stores data under key unless the key already exists.
func WriteOnce(ctx context.Context, bucket *blob.Bucket, key string, data []byte, contentType string) error {
	exists, err := bucket.Exists(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: stat %s: %v", ErrBucket, key, err)
	}
	if exists {
		return fmt.Errorf("%w: %s", ErrObjectExists, key)
	}

	err = bucket.WriteAll(ctx, key, data, &blob.WriterOptions{
		ContentType: contentType,
		IfNotExist:  true,
	})
	switch gcerrors.Code(err) {
	case gcerrors.OK:
		return nil
	case gcerrors.FailedPrecondition, gcerrors.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrObjectExists, key)
	default:
		return fmt.Errorf("%w: write %s: %v", ErrBucket, key, err)
	}
}

// Read returns the object stored under key.
func Read(ctx context.Context, bucket *blob.Bucket, key string) ([]byte, error) {
	data, err := bucket.ReadAll(ctx, key)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrBucket, key, err)
	}
	return data, nil
}
