package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/allisson/sealdrop/internal/metrics"
	"github.com/allisson/sealdrop/internal/notification"
	"github.com/allisson/sealdrop/internal/outbox/domain"
)

// ErrUnknownEventType is returned for events the relay does not know how to handle.
var ErrUnknownEventType = fmt.Errorf("%w: unknown event type", ErrPermanent)

// BlobRemover deletes stored envelopes. Deleting a missing blob must succeed.
type BlobRemover interface {
	Delete(ctx context.Context, key string) error
}

// RelayEventProcessor carries out the relay's deferred work: removing consumed or expired
// envelopes and re-sending notifications.
type RelayEventProcessor struct {
	blobs    BlobRemover
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewRelayEventProcessor creates a new RelayEventProcessor
func NewRelayEventProcessor(
	blobs BlobRemover,
	notifier notification.Notifier,
	logger *slog.Logger,
) *RelayEventProcessor {
	return &RelayEventProcessor{
		blobs:    blobs,
		notifier: notifier,
		logger:   logger,
	}
}

// Process dispatches the event by type.
func (p *RelayEventProcessor) Process(ctx context.Context, event *domain.OutboxEvent) error {
	switch event.EventType {
	case domain.EventTypeBlobDelete:
		var payload domain.BlobDeletePayload
		if err := event.DecodePayload(&payload); err != nil {
			return fmt.Errorf("%w: decode %s payload: %w", ErrPermanent, event.EventType, err)
		}
		if payload.StorageRef == "" {
			return fmt.Errorf("%w: %s payload without storage_ref", ErrPermanent, event.EventType)
		}
		if err := p.blobs.Delete(ctx, payload.StorageRef); err != nil {
			return err
		}
		if p.logger != nil {
			p.logger.Info("blob deleted",
				slog.String("file_id", payload.FileID.String()),
				slog.String("storage_ref", payload.StorageRef),
			)
		}
		return nil

	case domain.EventTypeNotificationSend:
		var payload notification.Notification
		if err := event.DecodePayload(&payload); err != nil {
			return fmt.Errorf("%w: decode %s payload: %w", ErrPermanent, event.EventType, err)
		}
		return p.notifier.Notify(ctx, payload)

	default:
		return fmt.Errorf("%w: %s", ErrUnknownEventType, event.EventType)
	}
}

// eventProcessorWithMetrics decorates EventProcessor with metrics instrumentation.
type eventProcessorWithMetrics struct {
	next    EventProcessor
	metrics metrics.BusinessMetrics
}

// NewEventProcessorWithMetrics wraps an EventProcessor with metrics recording.
func NewEventProcessorWithMetrics(processor EventProcessor, m metrics.BusinessMetrics) EventProcessor {
	return &eventProcessorWithMetrics{
		next:    processor,
		metrics: m,
	}
}

// Process records metrics per event type.
func (p *eventProcessorWithMetrics) Process(ctx context.Context, event *domain.OutboxEvent) error {
	start := time.Now()
	err := p.next.Process(ctx, event)

	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
	}

	operation := operationName(event.EventType)
	p.metrics.RecordOperation(ctx, "outbox", operation, status)
	p.metrics.RecordDuration(ctx, "outbox", operation, time.Since(start), status)

	return err
}

func operationName(eventType string) string {
	switch eventType {
	case domain.EventTypeBlobDelete:
		return "blob_delete"
	case domain.EventTypeNotificationSend:
		return "notification_send"
	default:
		return "unknown"
	}
}
