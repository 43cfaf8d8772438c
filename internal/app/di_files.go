package app

import (
	"fmt"

	"github.com/allisson/sealdrop/internal/blobstore"
	"github.com/allisson/sealdrop/internal/envelope"
	filesHTTP "github.com/allisson/sealdrop/internal/files/http"
	filesRepository "github.com/allisson/sealdrop/internal/files/repository"
	filesService "github.com/allisson/sealdrop/internal/files/service"
	filesUseCase "github.com/allisson/sealdrop/internal/files/usecase"
	"github.com/allisson/sealdrop/internal/notification"
)

// BlobStore returns the byte store holding the sealed envelopes.
func (c *Container) BlobStore() (*blobstore.Store, error) {
	var err error
	c.blobStoreInit.Do(func() {
		c.blobStore, err = c.initBlobStore()
		if err != nil {
			c.initErrors["blobStore"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["blobStore"]; exists {
		return nil, storedErr
	}
	return c.blobStore, nil
}

// Notifier returns the configured notification provider.
func (c *Container) Notifier() (notification.Notifier, error) {
	var err error
	c.notifierInit.Do(func() {
		c.notifier, err = c.initNotifier()
		if err != nil {
			c.initErrors["notifier"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["notifier"]; exists {
		return nil, storedErr
	}
	return c.notifier, nil
}

// GateHasher returns the access gate hasher.
func (c *Container) GateHasher() filesService.GateHasher {
	c.gateHasherInit.Do(func() {
		c.gateHasher = filesService.NewGateHasher()
	})
	return c.gateHasher
}

// FileRepository returns the file repository based on database driver.
func (c *Container) FileRepository() (filesUseCase.FileRepository, error) {
	var err error
	c.fileRepositoryInit.Do(func() {
		c.fileRepository, err = c.initFileRepository()
		if err != nil {
			c.initErrors["fileRepository"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["fileRepository"]; exists {
		return nil, storedErr
	}
	return c.fileRepository, nil
}

// FileUseCase returns the relay use case.
func (c *Container) FileUseCase() (filesUseCase.FileUseCase, error) {
	var err error
	c.fileUseCaseInit.Do(func() {
		c.fileUseCase, err = c.initFileUseCase()
		if err != nil {
			c.initErrors["fileUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["fileUseCase"]; exists {
		return nil, storedErr
	}
	return c.fileUseCase, nil
}

// FileHandler returns the HTTP handler for uploads and downloads.
func (c *Container) FileHandler() (*filesHTTP.FileHandler, error) {
	var err error
	c.fileHandlerInit.Do(func() {
		c.fileHandler, err = c.initFileHandler()
		if err != nil {
			c.initErrors["fileHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["fileHandler"]; exists {
		return nil, storedErr
	}
	return c.fileHandler, nil
}

func (c *Container) initBlobStore() (*blobstore.Store, error) {
	store, err := blobstore.Open(c.ctx, blobstore.Config{
		BucketURL:         c.config.BlobBucketURL,
		KeyURI:            c.config.BlobEncryptionKeyURI,
		MaxRetries:        c.config.StorageWriteMaxRetries,
		S3Bucket:          c.config.S3Bucket,
		S3Region:          c.config.S3Region,
		S3Endpoint:        c.config.S3Endpoint,
		S3AccessKeyID:     c.config.S3AccessKeyID,
		S3SecretAccessKey: c.config.S3SecretAccessKey,
	}, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}
	return store, nil
}

func (c *Container) initNotifier() (notification.Notifier, error) {
	notifier, err := notification.New(notification.Config{
		Provider:             c.config.NotificationProvider,
		DownloadPageURL:      c.config.NotificationDownloadPageURL,
		MailjetAPIKeyPublic:  c.config.MailjetAPIKeyPublic,
		MailjetAPIKeyPrivate: c.config.MailjetAPIKeyPrivate,
		MailjetSenderEmail:   c.config.MailjetSenderEmail,
		MailjetSenderName:    c.config.MailjetSenderName,
	}, c.Logger())
	if err != nil {
		return nil, fmt.Errorf("failed to create notifier: %w", err)
	}
	return notifier, nil
}

// initFileRepository creates the file repository based on the database driver.
func (c *Container) initFileRepository() (filesUseCase.FileRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for file repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return filesRepository.NewPostgreSQLFileRepository(db), nil
	case "mysql":
		return filesRepository.NewMySQLFileRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initFileUseCase creates the relay use case with all its dependencies.
func (c *Container) initFileUseCase() (filesUseCase.FileUseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for file use case: %w", err)
	}

	fileRepository, err := c.FileRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get file repository for file use case: %w", err)
	}

	outboxRepository, err := c.OutboxRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for file use case: %w", err)
	}

	blobStore, err := c.BlobStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get blob store for file use case: %w", err)
	}

	notifier, err := c.Notifier()
	if err != nil {
		return nil, fmt.Errorf("failed to get notifier for file use case: %w", err)
	}

	baseUseCase := filesUseCase.NewFileUseCase(
		filesUseCase.Config{
			BaseURL:           c.config.PublicBaseURL,
			MaxPlaintextSize:  c.config.UploadMaxSizeBytes,
			AllowedExtensions: c.config.AllowedExtensions(),
			DeleteGracePeriod: c.config.RequestTimeout,
		},
		txManager,
		fileRepository,
		outboxRepository,
		blobStore,
		c.GateHasher(),
		notifier,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for file use case: %w", err)
		}
		return filesUseCase.NewFileUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initFileHandler creates the file HTTP handler. The body limit is the plaintext ceiling plus
// the envelope overhead.
func (c *Container) initFileHandler() (*filesHTTP.FileHandler, error) {
	fileUseCase, err := c.FileUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get file use case for file handler: %w", err)
	}

	var maxEnvelopeSize int64
	if c.config.UploadMaxSizeBytes > 0 {
		maxEnvelopeSize = c.config.UploadMaxSizeBytes + envelope.Overhead
	}

	return filesHTTP.NewFileHandler(fileUseCase, maxEnvelopeSize, c.Logger()), nil
}
