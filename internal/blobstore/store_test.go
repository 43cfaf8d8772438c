package blobstore

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/secrets/localsecrets"

	apperrors "github.com/allisson/sealdrop/internal/errors"
)

func newMemStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store := New(memblob.OpenBucket(nil), opts...)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func readAll(t *testing.T, r *Reader) []byte {
	t.Helper()
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func TestStore_WriteOpenDelete(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	payload := []byte("salt-nonce-ciphertext-tag")

	require.NoError(t, store.Write(ctx, "files/abc", payload))

	exists, err := store.Exists(ctx, "files/abc")
	require.NoError(t, err)
	assert.True(t, exists)

	r, err := store.Open(ctx, "files/abc")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), r.Size)
	assert.Equal(t, payload, readAll(t, r))

	require.NoError(t, store.Delete(ctx, "files/abc"))

	exists, err = store.Exists(ctx, "files/abc")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_OpenMissing(t *testing.T) {
	store := newMemStore(t)

	r, err := store.Open(context.Background(), "files/missing")

	assert.Nil(t, r)
	assert.ErrorIs(t, err, ErrBlobNotFound)
	assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
}

func TestStore_DeleteMissingIsIdempotent(t *testing.T) {
	store := newMemStore(t)

	assert.NoError(t, store.Delete(context.Background(), "files/missing"))
}

func TestStore_WithKeeper(t *testing.T) {
	ctx := context.Background()
	key, err := localsecrets.NewRandomKey()
	require.NoError(t, err)

	bucket := memblob.OpenBucket(nil)
	store := New(bucket, WithKeeper(localsecrets.NewKeeper(key)))
	t.Cleanup(func() { _ = store.Close() })

	payload := []byte("envelope bytes")
	require.NoError(t, store.Write(ctx, "files/wrapped", payload))

	raw, err := bucket.ReadAll(ctx, "files/wrapped")
	require.NoError(t, err)
	assert.NotEqual(t, payload, raw)
	assert.NotContains(t, string(raw), "envelope bytes")

	r, err := store.Open(ctx, "files/wrapped")
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), r.Size)
	assert.Equal(t, payload, readAll(t, r))

	_, err = store.Open(ctx, "files/missing")
	assert.ErrorIs(t, err, ErrBlobNotFound)
}

func TestStore_Write_RetriesTransientFailures(t *testing.T) {
	store := newMemStore(t, WithMaxRetries(3), WithRetryInterval(time.Millisecond))

	var attempts atomic.Int32
	realWrite := store.writeAll
	store.writeAll = func(ctx context.Context, key string, data []byte) error {
		if attempts.Add(1) < 3 {
			return errors.New("connection reset by peer")
		}
		return realWrite(ctx, key, data)
	}

	err := store.Write(context.Background(), "files/retried", []byte("payload"))

	require.NoError(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestStore_Write_GivesUpAfterMaxRetries(t *testing.T) {
	store := newMemStore(t, WithMaxRetries(2), WithRetryInterval(time.Millisecond))

	var attempts atomic.Int32
	store.writeAll = func(ctx context.Context, key string, data []byte) error {
		attempts.Add(1)
		return errors.New("disk full")
	}

	err := store.Write(context.Background(), "files/failed", []byte("payload"))

	assert.ErrorIs(t, err, ErrWriteFailed)
	assert.True(t, apperrors.Is(err, apperrors.ErrUnavailable))
	assert.Equal(t, int32(3), attempts.Load(), "one attempt plus two retries")

	exists, err := store.Exists(context.Background(), "files/failed")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_Write_StopsOnCanceledContext(t *testing.T) {
	store := newMemStore(t, WithMaxRetries(10), WithRetryInterval(time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	store.writeAll = func(ctx context.Context, key string, data []byte) error {
		cancel()
		return errors.New("timeout")
	}

	err := store.Write(ctx, "files/canceled", []byte("payload"))

	assert.ErrorIs(t, err, ErrWriteFailed)
}

func TestStore_Ping(t *testing.T) {
	store := newMemStore(t)

	assert.NoError(t, store.Ping(context.Background()))
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("mem bucket", func(t *testing.T) {
		store, err := Open(ctx, Config{BucketURL: "mem://", MaxRetries: 1}, nil)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Write(ctx, "files/a", []byte("x")))
	})

	t.Run("file bucket with keeper", func(t *testing.T) {
		dir := t.TempDir()
		store, err := Open(ctx, Config{
			BucketURL: "file://" + dir,
			KeyURI:    "base64key://",
		}, nil)
		require.NoError(t, err)
		defer func() { _ = store.Close() }()

		require.NoError(t, store.Write(ctx, "files/b", []byte("sealed")))
		r, err := store.Open(ctx, "files/b")
		require.NoError(t, err)
		assert.Equal(t, []byte("sealed"), readAll(t, r))
	})

	t.Run("unknown scheme", func(t *testing.T) {
		store, err := Open(ctx, Config{BucketURL: "nope://bucket"}, nil)
		assert.Error(t, err)
		assert.Nil(t, store)
	})

	t.Run("invalid keeper", func(t *testing.T) {
		store, err := Open(ctx, Config{BucketURL: "mem://", KeyURI: "nope://key"}, nil)
		assert.ErrorContains(t, err, "failed to open blob keeper")
		assert.Nil(t, store)
	})
}

func TestOpen_CreatesFileBucketDirectory(t *testing.T) {
	dir := t.TempDir() + "/nested/blobs"

	store, err := Open(context.Background(), Config{BucketURL: "file://" + dir}, nil)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.DirExists(t, dir)
}
