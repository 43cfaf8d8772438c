package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/allisson/sealdrop/internal/errors"
	"github.com/allisson/sealdrop/internal/metrics"
)

// fileUseCaseWithMetrics decorates FileUseCase with metrics instrumentation.
type fileUseCaseWithMetrics struct {
	next    FileUseCase
	metrics metrics.BusinessMetrics
}

// NewFileUseCaseWithMetrics wraps a FileUseCase with metrics recording.
func NewFileUseCaseWithMetrics(useCase FileUseCase, m metrics.BusinessMetrics) FileUseCase {
	return &fileUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Register records metrics and inbound bytes for uploads.
func (f *fileUseCaseWithMetrics) Register(ctx context.Context, input RegisterInput) (*Registration, error) {
	start := time.Now()
	registration, err := f.next.Register(ctx, input)

	status := statusOf(err)
	f.record(ctx, "file_register", start, status)
	if err == nil {
		f.metrics.RecordBytes(ctx, "in", registration.File.Size)
	}

	return registration, err
}

// Retrieve records metrics and outbound bytes for downloads.
func (f *fileUseCaseWithMetrics) Retrieve(ctx context.Context, id uuid.UUID, credential string) (*Download, error) {
	start := time.Now()
	download, err := f.next.Retrieve(ctx, id, credential)

	status := statusOf(err)
	f.record(ctx, "file_retrieve", start, status)
	if err == nil {
		f.metrics.RecordBytes(ctx, "out", download.Size)
	}

	return download, err
}

// Notify records metrics for notification resends.
func (f *fileUseCaseWithMetrics) Notify(
	ctx context.Context,
	id uuid.UUID,
	credential string,
	input NotifyInput,
) error {
	start := time.Now()
	err := f.next.Notify(ctx, id, credential, input)

	f.record(ctx, "file_notify", start, statusOf(err))

	return err
}

// PurgeExpired records metrics for expiry runs.
func (f *fileUseCaseWithMetrics) PurgeExpired(ctx context.Context, ttl time.Duration, dryRun bool) (int64, error) {
	start := time.Now()
	count, err := f.next.PurgeExpired(ctx, ttl, dryRun)

	f.record(ctx, "file_purge_expired", start, statusOf(err))

	return count, err
}

func (f *fileUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, status string) {
	f.metrics.RecordOperation(ctx, "files", operation, status)
	f.metrics.RecordDuration(ctx, "files", operation, time.Since(start), status)
}

// statusOf labels access denials separately so credential guessing is visible.
func statusOf(err error) string {
	switch {
	case err == nil:
		return metrics.StatusSuccess
	case apperrors.Is(err, apperrors.ErrForbidden):
		return metrics.StatusDenied
	default:
		return metrics.StatusError
	}
}
