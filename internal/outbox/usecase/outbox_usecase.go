// Package usecase drains the relay's outbox: deferred blob removals and notification
// re-sends that were recorded in the same transaction as the change that caused them.
package usecase

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/allisson/sealdrop/internal/database"
	"github.com/allisson/sealdrop/internal/outbox/domain"
)

// maxRetryDelay caps the exponential retry schedule.
const maxRetryDelay = time.Hour

// ErrPermanent marks a processing failure that retrying cannot fix, such as an
// undecodable payload. Events failing with it are parked immediately.
var ErrPermanent = errors.New("permanent outbox failure")

// Config holds outbox use case configuration
type Config struct {
	Interval      time.Duration
	BatchSize     int
	MaxRetries    int
	RetryInterval time.Duration
}

// OutboxEventRepository defines outbox event repository operations
type OutboxEventRepository interface {
	Create(ctx context.Context, event *domain.OutboxEvent) error
	// GetPendingEvents locks pending events due at or before dueBy.
	GetPendingEvents(ctx context.Context, dueBy time.Time, limit int) ([]*domain.OutboxEvent, error)
	Update(ctx context.Context, event *domain.OutboxEvent) error
	CountByStatus(ctx context.Context, status domain.OutboxEventStatus) (int64, error)
}

// EventProcessor defines the interface for processing different event types
type EventProcessor interface {
	Process(ctx context.Context, event *domain.OutboxEvent) error
}

// Backlog reports how much deferred work is waiting and how much was given up on.
type Backlog struct {
	Pending int64 `json:"pending"`
	Failed  int64 `json:"failed"`
}

// UseCase defines the interface for outbox use cases
type UseCase interface {
	Start(ctx context.Context) error
	ProcessEvents(ctx context.Context) error
	Backlog(ctx context.Context) (*Backlog, error)
}

// OutboxUseCase polls due events and hands them to an EventProcessor.
type OutboxUseCase struct {
	config         Config
	txManager      database.TxManager
	outboxRepo     OutboxEventRepository
	eventProcessor EventProcessor
	logger         *slog.Logger
	now            func() time.Time
}

// NewOutboxUseCase creates a new OutboxUseCase. A nil logger discards output.
func NewOutboxUseCase(
	config Config,
	txManager database.TxManager,
	outboxRepo OutboxEventRepository,
	eventProcessor EventProcessor,
	logger *slog.Logger,
) *OutboxUseCase {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OutboxUseCase{
		config:         config,
		txManager:      txManager,
		outboxRepo:     outboxRepo,
		eventProcessor: eventProcessor,
		logger:         logger,
		now:            time.Now,
	}
}

// Start drains the outbox once and then on every tick until ctx is done.
func (uc *OutboxUseCase) Start(ctx context.Context) error {
	uc.logger.Info("outbox worker started",
		slog.Duration("interval", uc.config.Interval),
		slog.Int("batch_size", uc.config.BatchSize),
		slog.Int("max_retries", uc.config.MaxRetries),
	)

	ticker := time.NewTicker(uc.config.Interval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			uc.logger.Info("outbox worker stopped")
			return ctx.Err()
		}
		if err := uc.ProcessEvents(ctx); err != nil && !errors.Is(err, context.Canceled) {
			uc.logger.Error("outbox pass failed", slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// ProcessEvents locks one batch of due events and settles each of them inside a single
// transaction, so a crashed worker leaves its batch for the next pass.
func (uc *OutboxUseCase) ProcessEvents(ctx context.Context) error {
	return uc.txManager.WithTx(ctx, func(ctx context.Context) error {
		events, err := uc.outboxRepo.GetPendingEvents(ctx, uc.now().UTC(), uc.config.BatchSize)
		if err != nil {
			return err
		}

		for _, event := range events {
			uc.settle(event, uc.eventProcessor.Process(ctx, event))
			if err := uc.outboxRepo.Update(ctx, event); err != nil {
				return err
			}
		}

		if len(events) > 0 {
			uc.logger.Debug("outbox batch settled", slog.Int("count", len(events)))
		}
		return nil
	})
}

// Backlog counts pending and failed events.
func (uc *OutboxUseCase) Backlog(ctx context.Context) (*Backlog, error) {
	pending, err := uc.outboxRepo.CountByStatus(ctx, domain.OutboxEventStatusPending)
	if err != nil {
		return nil, err
	}
	failed, err := uc.outboxRepo.CountByStatus(ctx, domain.OutboxEventStatusFailed)
	if err != nil {
		return nil, err
	}
	return &Backlog{Pending: pending, Failed: failed}, nil
}

// settle records the outcome of one processing attempt on event.
func (uc *OutboxUseCase) settle(event *domain.OutboxEvent, processErr error) {
	now := uc.now().UTC()
	if processErr == nil {
		event.Status = domain.OutboxEventStatusProcessed
		event.ProcessedAt = &now
		event.LastError = nil
		return
	}

	event.Retries++
	msg := processErr.Error()
	event.LastError = &msg

	attrs := []any{
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType),
		slog.Int("retries", event.Retries),
		slog.Any("error", processErr),
	}

	if errors.Is(processErr, ErrPermanent) || event.Retries >= uc.config.MaxRetries {
		event.Status = domain.OutboxEventStatusFailed
		uc.logger.Error("outbox event parked as failed", attrs...)
		return
	}

	delay := uc.retryDelay(event.Retries)
	event.AvailableAt = now.Add(delay)
	uc.logger.Warn("outbox event will be retried", append(attrs, slog.Duration("delay", delay))...)
}

// retryDelay doubles RetryInterval for every attempt after the first, up to maxRetryDelay.
func (uc *OutboxUseCase) retryDelay(retries int) time.Duration {
	delay := uc.config.RetryInterval
	for i := 1; i < retries && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}
