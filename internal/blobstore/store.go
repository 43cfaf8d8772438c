// Package blobstore stores sealed envelopes in a gocloud.dev/blob bucket.
//
// Keys are the storage references recorded in file metadata. When a keeper is configured every
// blob is additionally wrapped at rest, so a leaked bucket exposes neither envelopes nor their sizes
// in cleartext form.
package blobstore

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"gocloud.dev/secrets"

	apperrors "github.com/allisson/sealdrop/internal/errors"
)

const contentType = "application/octet-stream"

var (
	// ErrBlobNotFound indicates no blob exists under the key.
	ErrBlobNotFound = apperrors.Wrap(apperrors.ErrNotFound, "blob not found")

	// ErrWriteFailed indicates a write kept failing after all retries.
	ErrWriteFailed = apperrors.Wrap(apperrors.ErrUnavailable, "blob write failed")
)

// Reader is an open blob. Size is the stored envelope length.
type Reader struct {
	io.ReadCloser
	Size int64
}

// Store reads and writes envelopes by storage reference.
type Store struct {
	bucket        *blob.Bucket
	keeper        *secrets.Keeper
	maxRetries    uint64
	retryInterval time.Duration
	logger        *slog.Logger

	writeAll func(ctx context.Context, key string, data []byte) error
}

// Option configures a Store.
type Option func(*Store)

// WithKeeper wraps every blob with keeper before it is written.
func WithKeeper(keeper *secrets.Keeper) Option {
	return func(s *Store) {
		s.keeper = keeper
	}
}

// WithMaxRetries sets how many times a failed write is retried.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.maxRetries = uint64(n)
		}
	}
}

// WithRetryInterval sets the initial backoff between write attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retryInterval = d
		}
	}
}

// WithLogger sets the logger used to report retried writes.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Store on top of an opened bucket. The Store owns the bucket and keeper.
func New(bucket *blob.Bucket, opts ...Option) *Store {
	s := &Store{
		bucket:        bucket,
		maxRetries:    3,
		retryInterval: 200 * time.Millisecond,
	}
	s.writeAll = func(ctx context.Context, key string, data []byte) error {
		return s.bucket.WriteAll(ctx, key, data, &blob.WriterOptions{ContentType: contentType})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write stores data under key, retrying transient failures with exponential backoff.
func (s *Store) Write(ctx context.Context, key string, data []byte) error {
	payload := data
	if s.keeper != nil {
		wrapped, err := s.keeper.Encrypt(ctx, data)
		if err != nil {
			return apperrors.Wrap(err, "failed to wrap blob")
		}
		payload = wrapped
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(
			backoff.NewExponentialBackOff(backoff.WithInitialInterval(s.retryInterval)),
			s.maxRetries,
		),
		ctx,
	)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		err := s.writeAll(ctx, key, payload)
		if err != nil && gcerrors.Code(err) == gcerrors.InvalidArgument {
			return backoff.Permanent(err)
		}
		if err != nil && s.logger != nil {
			s.logger.Warn("blob write attempt failed",
				slog.String("storage_ref", key),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}
		return err
	}, policy)
	if err != nil {
		return apperrors.Join(ErrWriteFailed, err)
	}
	return nil
}

// Open returns a reader for the blob under key, or ErrBlobNotFound.
func (s *Store) Open(ctx context.Context, key string) (*Reader, error) {
	if s.keeper != nil {
		wrapped, err := s.bucket.ReadAll(ctx, key)
		if err != nil {
			return nil, translate(err, "failed to read blob")
		}
		data, err := s.keeper.Decrypt(ctx, wrapped)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to unwrap blob")
		}
		return &Reader{ReadCloser: io.NopCloser(bytes.NewReader(data)), Size: int64(len(data))}, nil
	}

	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return nil, translate(err, "failed to open blob")
	}
	return &Reader{ReadCloser: r, Size: r.Size()}, nil
}

// Exists reports whether a blob is stored under key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check blob")
	}
	return ok, nil
}

// Delete removes the blob under key. Deleting a missing blob succeeds.
func (s *Store) Delete(ctx context.Context, key string) error {
	err := s.bucket.Delete(ctx, key)
	if err != nil && gcerrors.Code(err) != gcerrors.NotFound {
		return apperrors.Wrap(err, "failed to delete blob")
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.bucket.IsAccessible(ctx)
	if err != nil {
		return apperrors.Wrap(err, "failed to reach blob bucket")
	}
	if !ok {
		return apperrors.Wrap(apperrors.ErrUnavailable, "blob bucket is not accessible")
	}
	return nil
}

// Close releases the bucket and keeper.
func (s *Store) Close() error {
	var keeperErr error
	if s.keeper != nil {
		keeperErr = s.keeper.Close()
	}
	return apperrors.Join(s.bucket.Close(), keeperErr)
}

func translate(err error, message string) error {
	if gcerrors.Code(err) == gcerrors.NotFound {
		return ErrBlobNotFound
	}
	return apperrors.Wrap(err, message)
}
