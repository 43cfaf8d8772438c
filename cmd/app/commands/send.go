package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/allisson/sealdrop/internal/client"
	"github.com/allisson/sealdrop/internal/envelope"
)

// Uploader sends a sealed file to the relay.
type Uploader interface {
	Upload(ctx context.Context, req client.UploadRequest) (*client.UploadResult, error)
}

// SendInput holds the parameters of one send.
type SendInput struct {
	Path           string
	Secret         string
	RecipientEmail string
	SenderName     string
	Iterations     int
}

// RunSend seals the file at input.Path with the shared secret and uploads it.
// Only the envelope and the secret's access gate leave the machine.
func RunSend(
	ctx context.Context,
	uploader Uploader,
	logger *slog.Logger,
	writer io.Writer,
	input SendInput,
	format string,
) error {
	if err := envelope.ValidateSecret(input.Secret); err != nil {
		return err
	}

	sealer := envelope.NewSealer(envelope.WithIterations(input.Iterations))

	info, err := os.Stat(input.Path)
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", input.Path)
	}
	if info.Size() > sealer.MaxPlaintextSize() {
		return envelope.ErrPlaintextTooLarge
	}

	plaintext, err := os.ReadFile(input.Path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	sealed, err := sealer.Encrypt(plaintext, input.Secret)
	envelope.Zero(plaintext)
	if err != nil {
		return fmt.Errorf("failed to seal file: %w", err)
	}

	result, err := uploader.Upload(ctx, client.UploadRequest{
		Envelope:       sealed,
		DisplayName:    filepath.Base(input.Path),
		AccessGate:     envelope.AccessGate(input.Secret),
		RecipientEmail: input.RecipientEmail,
		SenderName:     input.SenderName,
	})
	if err != nil {
		return relayError(err)
	}

	logger.Info("file sent",
		slog.String("id", result.ID),
		slog.Int("size", len(sealed)),
		slog.String("notification", result.Notification),
	)

	if format == "json" {
		return outputSendJSON(writer, result)
	}
	outputSendText(writer, result)
	return nil
}

func outputSendText(writer io.Writer, result *client.UploadResult) {
	_, _ = fmt.Fprintf(writer, "Link: %s\n", result.Link)
	_, _ = fmt.Fprintf(writer, "Notification: %s\n", result.Notification)
	if result.Warning != "" {
		_, _ = fmt.Fprintf(writer, "Warning: %s\n", result.Warning)
	}
	_, _ = fmt.Fprintln(writer, "Share the secret with the receiver over a separate channel.")
}

func outputSendJSON(writer io.Writer, result *client.UploadResult) error {
	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = fmt.Fprintln(writer, string(jsonBytes))
	return nil
}
