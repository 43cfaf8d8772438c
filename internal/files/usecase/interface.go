// Package usecase defines the interfaces and implementations for the one-time file relay.
// Registering stores an envelope and its access gate; retrieving verifies the credential and
// consumes the record in one transaction so a link can be redeemed at most once.
package usecase

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/sealdrop/internal/blobstore"
	filesDomain "github.com/allisson/sealdrop/internal/files/domain"
	outboxDomain "github.com/allisson/sealdrop/internal/outbox/domain"
)

// FileRepository defines the interface for file record persistence operations.
type FileRepository interface {
	Create(ctx context.Context, file *filesDomain.File) error
	GetByID(ctx context.Context, id uuid.UUID) (*filesDomain.File, error)
	// GetForUpdate must lock the record until the surrounding transaction ends.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*filesDomain.File, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CountExpired(ctx context.Context, cutoff time.Time) (int64, error)
	ListExpired(ctx context.Context, cutoff time.Time, limit int) ([]*filesDomain.File, error)
}

// OutboxEventRepository defines the outbox operations the relay needs.
type OutboxEventRepository interface {
	Create(ctx context.Context, event *outboxDomain.OutboxEvent) error
}

// BlobStore defines the byte store operations for envelopes.
type BlobStore interface {
	Write(ctx context.Context, key string, data []byte) error
	Open(ctx context.Context, key string) (*blobstore.Reader, error)
	Delete(ctx context.Context, key string) error
}

// NotificationStatus reports what happened to the optional upload notification.
type NotificationStatus string

const (
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
	NotificationSkipped NotificationStatus = "skipped"
)

// RegisterInput carries an upload.
type RegisterInput struct {
	Envelope    []byte
	DisplayName string
	// AccessGate is the hex SHA-256 digest of the shared secret.
	AccessGate     string
	RecipientEmail string
	SenderName     string
	// Origin is the scheme and host the upload arrived on. Links are built from it unless
	// Config.BaseURL is set.
	Origin string
}

// Registration is the result of a successful upload.
type Registration struct {
	File         *filesDomain.File
	Link         string
	Notification NotificationStatus
	// Warning is set when the upload succeeded but a side effect did not.
	Warning string
}

// NotifyInput carries a notification resend request.
type NotifyInput struct {
	RecipientEmail string
	SenderName     string
}

// Download is a consumed file. The record is already gone when a Download is returned.
// Closing Body schedules removal of the stored bytes.
type Download struct {
	File *filesDomain.File
	Size int64
	Body io.ReadCloser
}

// FileUseCase defines the interface for the relay business logic.
type FileUseCase interface {
	// Register stores the envelope, then commits the record. If the record cannot be committed
	// the stored bytes are removed and no link is returned.
	Register(ctx context.Context, input RegisterInput) (*Registration, error)
	// Retrieve verifies the credential and consumes the record. Unknown, consumed and
	// wrong-credential ids all fail with ErrAccessDenied.
	Retrieve(ctx context.Context, id uuid.UUID, credential string) (*Download, error)
	// Notify sends a notification about a pending file without consuming it.
	Notify(ctx context.Context, id uuid.UUID, credential string, input NotifyInput) error
	// PurgeExpired removes records older than ttl and schedules their bytes for deletion.
	// A ttl <= 0 disables expiry. With dryRun it only counts.
	PurgeExpired(ctx context.Context, ttl time.Duration, dryRun bool) (int64, error)
}
