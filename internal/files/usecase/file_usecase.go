package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/sealdrop/internal/blobstore"
	"github.com/allisson/sealdrop/internal/database"
	apperrors "github.com/allisson/sealdrop/internal/errors"
	filesDomain "github.com/allisson/sealdrop/internal/files/domain"
	filesService "github.com/allisson/sealdrop/internal/files/service"
	"github.com/allisson/sealdrop/internal/notification"
	outboxDomain "github.com/allisson/sealdrop/internal/outbox/domain"
	"github.com/allisson/sealdrop/internal/validation"
)

// DefaultPurgeBatchSize is the number of expired records removed per transaction.
const DefaultPurgeBatchSize = 100

// Config holds file use case configuration.
type Config struct {
	// BaseURL is the public origin links are built from, without a trailing slash.
	BaseURL string
	// MaxPlaintextSize is the plaintext ceiling; envelopes may exceed it by the envelope overhead.
	// Zero disables the check.
	MaxPlaintextSize int64
	// AllowedExtensions lists lowercase extensions without the dot. Empty allows any extension.
	AllowedExtensions []string
	// DeleteGracePeriod delays the outbox blob deletion of a consumed file so the download
	// can finish streaming before the worker removes the bytes.
	DeleteGracePeriod time.Duration
	PurgeBatchSize    int
}

// fileUseCase implements the FileUseCase interface.
type fileUseCase struct {
	config     Config
	txManager  database.TxManager
	fileRepo   FileRepository
	outboxRepo OutboxEventRepository
	blobs      BlobStore
	gateHasher filesService.GateHasher
	notifier   notification.Notifier
	logger     *slog.Logger
	now        func() time.Time

	decoyOnce sync.Once
	decoyGate string
}

// Register validates and stores an upload.
func (f *fileUseCase) Register(ctx context.Context, input RegisterInput) (*Registration, error) {
	if err := f.validateUpload(input); err != nil {
		return nil, err
	}

	hashedGate, err := f.gateHasher.Hash(input.AccessGate)
	if err != nil {
		return nil, err
	}

	id := uuid.New()
	file := &filesDomain.File{
		ID:          id,
		DisplayName: input.DisplayName,
		Extension:   filesDomain.ExtensionOf(input.DisplayName),
		StorageRef:  filesDomain.StorageRefFor(id),
		AccessGate:  hashedGate,
		Size:        int64(len(input.Envelope)),
		CreatedAt:   f.now().UTC(),
	}

	if err := f.blobs.Write(ctx, file.StorageRef, input.Envelope); err != nil {
		return nil, apperrors.Join(filesDomain.ErrStorageUnavailable, err)
	}

	if err := f.fileRepo.Create(ctx, file); err != nil {
		f.rollbackBlob(ctx, file)
		return nil, apperrors.Join(filesDomain.ErrStorageUnavailable, err)
	}

	f.logger.Info("file registered",
		slog.String("file_id", file.ID.String()),
		slog.Int64("size", file.Size),
		slog.String("extension", file.Extension),
	)

	registration := &Registration{
		File:         file,
		Link:         f.linkFor(id, input.Origin),
		Notification: NotificationSkipped,
	}

	if input.RecipientEmail != "" {
		f.notifyAfterUpload(ctx, registration, notification.Notification{
			RecipientEmail: input.RecipientEmail,
			FileID:         id,
			SenderName:     input.SenderName,
		})
	}

	return registration, nil
}

func (f *fileUseCase) validateUpload(input RegisterInput) error {
	size := int64(len(input.Envelope))
	switch {
	case size == 0:
		return filesDomain.ErrEnvelopeRequired
	case size < filesDomain.MinEnvelopeSize:
		return filesDomain.ErrEnvelopeTooShort
	case f.config.MaxPlaintextSize > 0 && size > f.config.MaxPlaintextSize+filesDomain.MinEnvelopeSize:
		return filesDomain.ErrEnvelopeTooLarge
	}

	if validation.HexDigest.Validate(input.AccessGate) != nil {
		return filesDomain.ErrInvalidAccessGate
	}

	if filesDomain.ExtensionOf(input.DisplayName) == "" {
		return filesDomain.ErrMissingExtension
	}
	if validation.FileExtension(f.config.AllowedExtensions).Validate(input.DisplayName) != nil {
		return filesDomain.ErrExtensionNotAllowed
	}

	return nil
}

// rollbackBlob removes bytes whose record could not be committed.
func (f *fileUseCase) rollbackBlob(ctx context.Context, file *filesDomain.File) {
	if err := f.blobs.Delete(context.WithoutCancel(ctx), file.StorageRef); err != nil {
		f.logger.Error("failed to roll back orphaned blob",
			slog.String("file_id", file.ID.String()),
			slog.String("storage_ref", file.StorageRef),
			slog.Any("error", err),
		)
	}
}

// notifyAfterUpload delivers the upload notification. A failure leaves the record intact
// and enqueues a retry.
func (f *fileUseCase) notifyAfterUpload(
	ctx context.Context,
	registration *Registration,
	n notification.Notification,
) {
	err := f.notifier.Notify(ctx, n)
	if err == nil {
		registration.Notification = NotificationSent
		return
	}

	registration.Notification = NotificationFailed
	registration.Warning = "file uploaded, but the notification could not be delivered"
	f.logger.Warn("upload notification failed",
		slog.String("file_id", n.FileID.String()),
		slog.Any("error", err),
	)

	event, err := outboxDomain.NewOutboxEvent(outboxDomain.EventTypeNotificationSend, n, f.now())
	if err == nil {
		err = f.outboxRepo.Create(context.WithoutCancel(ctx), event)
	}
	if err != nil {
		f.logger.Error("failed to enqueue notification retry",
			slog.String("file_id", n.FileID.String()),
			slog.Any("error", err),
		)
		return
	}
	registration.Warning += "; delivery will be retried"
}

// Retrieve consumes the file in a single transaction: lock the record, verify the credential,
// open the bytes, delete the record and enqueue the byte deletion.
func (f *fileUseCase) Retrieve(ctx context.Context, id uuid.UUID, credential string) (*Download, error) {
	var (
		file   *filesDomain.File
		reader *blobstore.Reader
	)

	err := f.txManager.WithTx(ctx, func(txCtx context.Context) error {
		found, err := f.authorize(txCtx, id, credential, f.fileRepo.GetForUpdate)
		if err != nil {
			return err
		}

		r, err := f.blobs.Open(txCtx, found.StorageRef)
		if err != nil {
			if apperrors.Is(err, blobstore.ErrBlobNotFound) {
				f.logger.Error("file record without stored bytes",
					slog.String("file_id", found.ID.String()),
					slog.String("storage_ref", found.StorageRef),
				)
				return filesDomain.ErrBlobMissing
			}
			return apperrors.Join(filesDomain.ErrStorageUnavailable, err)
		}

		if err := f.consume(txCtx, found); err != nil {
			_ = r.Close()
			return err
		}

		file, reader = found, r
		return nil
	})
	if err != nil {
		if reader != nil {
			_ = reader.Close()
		}
		return nil, err
	}

	f.logger.Info("file consumed", slog.String("file_id", file.ID.String()))

	return &Download{
		File: file,
		Size: reader.Size,
		Body: &consumedBody{
			ReadCloser: reader,
			onClose: func() {
				go f.deleteBlob(context.WithoutCancel(ctx), file)
			},
		},
	}, nil
}

// consume deletes the locked record and enqueues the byte deletion in the same transaction.
func (f *fileUseCase) consume(ctx context.Context, file *filesDomain.File) error {
	if err := f.fileRepo.Delete(ctx, file.ID); err != nil {
		if apperrors.Is(err, filesDomain.ErrFileNotFound) {
			return filesDomain.ErrAccessDenied
		}
		return apperrors.Join(filesDomain.ErrStorageUnavailable, err)
	}
	return f.enqueueBlobDelete(ctx, file, f.now().Add(f.config.DeleteGracePeriod))
}

func (f *fileUseCase) enqueueBlobDelete(ctx context.Context, file *filesDomain.File, availableAt time.Time) error {
	event, err := outboxDomain.NewOutboxEvent(
		outboxDomain.EventTypeBlobDelete,
		outboxDomain.BlobDeletePayload{FileID: file.ID, StorageRef: file.StorageRef},
		availableAt,
	)
	if err != nil {
		return err
	}
	return f.outboxRepo.Create(ctx, event)
}

// deleteBlob is the inline best-effort removal after a download. The outbox event retries it.
func (f *fileUseCase) deleteBlob(ctx context.Context, file *filesDomain.File) {
	if err := f.blobs.Delete(ctx, file.StorageRef); err != nil {
		f.logger.Warn("failed to delete consumed blob, deletion will be retried",
			slog.String("file_id", file.ID.String()),
			slog.String("storage_ref", file.StorageRef),
			slog.Any("error", err),
		)
	}
}

// authorize loads the record and checks the credential. Every failure is ErrAccessDenied.
func (f *fileUseCase) authorize(
	ctx context.Context,
	id uuid.UUID,
	credential string,
	load func(context.Context, uuid.UUID) (*filesDomain.File, error),
) (*filesDomain.File, error) {
	file, err := load(ctx, id)
	if err != nil {
		if apperrors.Is(err, filesDomain.ErrFileNotFound) {
			// Spend the same hashing work as a real check so response time does not reveal the miss.
			f.gateHasher.Verify(credential, f.decoy())
			return nil, filesDomain.ErrAccessDenied
		}
		return nil, apperrors.Join(filesDomain.ErrStorageUnavailable, err)
	}

	if !f.gateHasher.Verify(credential, file.AccessGate) {
		return nil, filesDomain.ErrAccessDenied
	}
	return file, nil
}

func (f *fileUseCase) decoy() string {
	f.decoyOnce.Do(func() {
		seed := make([]byte, 32)
		_, _ = rand.Read(seed)
		hashed, err := f.gateHasher.Hash(hex.EncodeToString(seed))
		if err == nil {
			f.decoyGate = hashed
		}
	})
	return f.decoyGate
}

// Notify re-sends the notification for a pending file. The record is not consumed.
func (f *fileUseCase) Notify(ctx context.Context, id uuid.UUID, credential string, input NotifyInput) error {
	file, err := f.authorize(ctx, id, credential, f.fileRepo.GetByID)
	if err != nil {
		return err
	}

	err = f.notifier.Notify(ctx, notification.Notification{
		RecipientEmail: input.RecipientEmail,
		FileID:         file.ID,
		SenderName:     input.SenderName,
	})
	if err != nil {
		f.logger.Warn("notification resend failed",
			slog.String("file_id", file.ID.String()),
			slog.Any("error", err),
		)
		return apperrors.Join(filesDomain.ErrNotificationFailed, err)
	}
	return nil
}

// PurgeExpired deletes expired records in batches; their bytes are removed by the outbox worker.
func (f *fileUseCase) PurgeExpired(ctx context.Context, ttl time.Duration, dryRun bool) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}

	cutoff := f.now().UTC().Add(-ttl)
	if dryRun {
		return f.fileRepo.CountExpired(ctx, cutoff)
	}

	batchSize := f.config.PurgeBatchSize
	if batchSize <= 0 {
		batchSize = DefaultPurgeBatchSize
	}

	var total int64
	for {
		var purged int
		err := f.txManager.WithTx(ctx, func(txCtx context.Context) error {
			files, err := f.fileRepo.ListExpired(txCtx, cutoff, batchSize)
			if err != nil {
				return err
			}
			for _, file := range files {
				if err := f.fileRepo.Delete(txCtx, file.ID); err != nil {
					return err
				}
				if err := f.enqueueBlobDelete(txCtx, file, f.now()); err != nil {
					return err
				}
			}
			purged = len(files)
			return nil
		})
		if err != nil {
			return total, err
		}

		total += int64(purged)
		if purged < batchSize {
			break
		}
	}

	if total > 0 {
		f.logger.Info("expired files purged", slog.Int64("count", total), slog.Duration("ttl", ttl))
	}
	return total, nil
}

// linkFor builds the retrieval link from the configured public URL, or from the request
// origin when none is configured.
func (f *fileUseCase) linkFor(id uuid.UUID, origin string) string {
	base := f.config.BaseURL
	if base == "" {
		base = strings.TrimRight(origin, "/")
	}
	return base + "/download/" + id.String()
}

// consumedBody runs onClose once after the underlying reader is closed.
type consumedBody struct {
	io.ReadCloser
	once    sync.Once
	onClose func()
}

func (b *consumedBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.onClose)
	return err
}

// NewFileUseCase creates a new FileUseCase.
func NewFileUseCase(
	config Config,
	txManager database.TxManager,
	fileRepo FileRepository,
	outboxRepo OutboxEventRepository,
	blobs BlobStore,
	gateHasher filesService.GateHasher,
	notifier notification.Notifier,
	logger *slog.Logger,
) FileUseCase {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if notifier == nil {
		notifier = notification.NoopNotifier{}
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &fileUseCase{
		config:     config,
		txManager:  txManager,
		fileRepo:   fileRepo,
		outboxRepo: outboxRepo,
		blobs:      blobs,
		gateHasher: gateHasher,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}
