package blobstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("memblob", func(t *testing.T) {
		bucket, err := Open(ctx, "mem://")
		require.NoError(t, err)
		defer func() { _ = bucket.Close() }()

		require.NoError(t, WriteOnce(ctx, bucket, "a/b.json", []byte(`{"a":1}`), "application/json"))
		err = WriteOnce(ctx, bucket, "a/b.json", []byte(`{"a":2}`), "application/json")
		assert.ErrorIs(t, err, ErrObjectExists)

		data, err := Read(ctx, bucket, "a/b.json")
		require.NoError(t, err)
		assert.Equal(t, `{"a":1}`, string(data))

		_, err = Read(ctx, bucket, "missing")
		assert.ErrorIs(t, err, ErrObjectNotFound)
	})

	t.Run("fileblob", func(t *testing.T) {
		dir := t.TempDir()
		bucket, err := Open(ctx, "file://"+filepath.ToSlash(dir))
		require.NoError(t, err)
		defer func() { _ = bucket.Close() }()

		require.NoError(t, WriteOnce(ctx, bucket, "capsules/x.json", []byte("x"), "application/json"))
		data, err := os.ReadFile(filepath.Join(dir, "capsules", "x.json"))
		require.NoError(t, err)
		assert.Equal(t, "x", string(data))
		assert.ErrorIs(t, WriteOnce(ctx, bucket, "capsules/x.json", []byte("y"), ""), ErrObjectExists)
	})
}

func TestOpen_UnknownScheme(t *testing.T) {
	_, err := Open(context.Background(), "nope://bucket")
	assert.ErrorIs(t, err, ErrBucket)
}
