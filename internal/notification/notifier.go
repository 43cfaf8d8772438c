// Package notification tells recipients that a sealed file is waiting for them.
//
// Messages carry the file id and where to retrieve it. They never carry the access credential or
// the secret; those travel out of band between sender and recipient.
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	apperrors "github.com/allisson/sealdrop/internal/errors"
)

// Supported providers.
const (
	ProviderNone    = "none"
	ProviderLog     = "log"
	ProviderMailjet = "mailjet"
)

// DefaultSenderName is used when the uploader does not name themselves.
const DefaultSenderName = "SealDrop"

// ErrDeliveryFailed wraps every provider failure.
var ErrDeliveryFailed = apperrors.New("notification delivery failed")

// Notification describes one "a file is waiting for you" message.
type Notification struct {
	RecipientEmail string    `json:"recipient_email"`
	FileID         uuid.UUID `json:"file_id"`
	SenderName     string    `json:"sender_name"`
}

// Sender returns the display name of the sender, falling back to DefaultSenderName.
func (n Notification) Sender() string {
	if name := strings.TrimSpace(n.SenderName); name != "" {
		return name
	}
	return DefaultSenderName
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Config selects and configures a Notifier.
type Config struct {
	Provider        string
	DownloadPageURL string

	MailjetAPIKeyPublic  string
	MailjetAPIKeyPrivate string
	MailjetSenderEmail   string
	MailjetSenderName    string
	MailjetBaseURL       string
}

// New builds the Notifier for cfg.Provider.
func New(cfg Config, logger *slog.Logger) (Notifier, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderNone:
		return NoopNotifier{}, nil
	case ProviderLog:
		return NewLogNotifier(cfg.DownloadPageURL, logger), nil
	case ProviderMailjet:
		return NewMailjetNotifier(MailjetConfig{
			APIKeyPublic:    cfg.MailjetAPIKeyPublic,
			APIKeyPrivate:   cfg.MailjetAPIKeyPrivate,
			SenderEmail:     cfg.MailjetSenderEmail,
			SenderName:      cfg.MailjetSenderName,
			DownloadPageURL: cfg.DownloadPageURL,
			BaseURL:         cfg.MailjetBaseURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown notification provider %q", cfg.Provider)
	}
}

// NoopNotifier drops every notification.
type NoopNotifier struct{}

func (NoopNotifier) Notify(ctx context.Context, n Notification) error {
	return nil
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct {
	downloadPageURL string
	logger          *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(downloadPageURL string, logger *slog.Logger) *LogNotifier {
	return &LogNotifier{downloadPageURL: downloadPageURL, logger: logger}
}

// Notify logs the file id and sender. The recipient address is not logged.
func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	if l.logger != nil {
		l.logger.InfoContext(ctx, "file notification",
			slog.String("file_id", n.FileID.String()),
			slog.String("sender_name", n.Sender()),
			slog.String("download_page_url", l.downloadPageURL),
		)
	}
	return nil
}
