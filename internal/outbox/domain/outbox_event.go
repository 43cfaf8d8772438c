// Package domain defines the outbox event entity and the relay's deferred work items.
//
// Work that must eventually happen after a committed state change (removing consumed bytes,
// re-sending a failed notification) is recorded as an outbox event in the same transaction and
// carried out by the worker.
package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxEventStatus represents the status of an outbox event
type OutboxEventStatus string

const (
	OutboxEventStatusPending   OutboxEventStatus = "pending"
	OutboxEventStatusProcessed OutboxEventStatus = "processed"
	OutboxEventStatusFailed    OutboxEventStatus = "failed"
)

// Event types handled by the worker.
const (
	// EventTypeBlobDelete removes the envelope bytes of a consumed or expired file.
	EventTypeBlobDelete = "blob.delete"
	// EventTypeNotificationSend re-sends a notification whose synchronous delivery failed.
	EventTypeNotificationSend = "notification.send"
)

// OutboxEvent represents an event in the transactional outbox pattern
type OutboxEvent struct {
	ID        uuid.UUID
	EventType string
	Payload   string
	Status    OutboxEventStatus
	Retries   int
	LastError *string
	// AvailableAt is the earliest time the worker may pick the event up.
	AvailableAt time.Time
	ProcessedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BlobDeletePayload is the payload of EventTypeBlobDelete.
type BlobDeletePayload struct {
	FileID     uuid.UUID `json:"file_id"`
	StorageRef string    `json:"storage_ref"`
}

// NewOutboxEvent builds a pending event with a time-ordered id and a JSON encoded payload.
func NewOutboxEvent(eventType string, payload any, availableAt time.Time) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	return &OutboxEvent{
		ID:          id,
		EventType:   eventType,
		Payload:     string(data),
		Status:      OutboxEventStatusPending,
		AvailableAt: availableAt.UTC(),
	}, nil
}

// DecodePayload unmarshals the event payload into v.
func (e *OutboxEvent) DecodePayload(v any) error {
	return json.Unmarshal([]byte(e.Payload), v)
}
