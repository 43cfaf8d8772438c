package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/allisson/sealdrop/internal/client"
	"github.com/allisson/sealdrop/internal/envelope"
)

// maxNameAttempts bounds the "name (n).ext" search when the output file already exists.
const maxNameAttempts = 100

// Downloader retrieves a sealed file from the relay. A successful call consumes the link.
type Downloader interface {
	Download(ctx context.Context, id, credential string) (*client.DownloadResult, error)
}

// ReceiveInput holds the parameters of one receive.
type ReceiveInput struct {
	ID         string
	Secret     string
	OutputDir  string
	Iterations int
	Force      bool
}

// RunReceive downloads the file behind input.ID, opens the envelope and writes the plaintext
// into input.OutputDir under the sender's file name.
//
// The link is spent once the download succeeds, so an existing file with the same name is never
// a reason to fail: without Force the plaintext is written next to it as "name (n).ext".
func RunReceive(
	ctx context.Context,
	downloader Downloader,
	logger *slog.Logger,
	writer io.Writer,
	input ReceiveInput,
	format string,
) error {
	info, err := os.Stat(input.OutputDir)
	if err != nil {
		return fmt.Errorf("failed to stat output directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", input.OutputDir)
	}

	result, err := downloader.Download(ctx, input.ID, envelope.AccessGate(input.Secret))
	if err != nil {
		return relayError(err)
	}

	sealer := envelope.NewSealer(envelope.WithIterations(input.Iterations))
	plaintext, err := sealer.Decrypt(result.Envelope, input.Secret)
	if err != nil {
		return fmt.Errorf("failed to open envelope: %w", err)
	}
	defer envelope.Zero(plaintext)

	target, err := writeOutput(input.OutputDir, outputName(result.DisplayName, input.ID), plaintext, input.Force)
	if err != nil {
		return err
	}

	logger.Info("file received", slog.String("id", input.ID), slog.Int("size", len(plaintext)))

	if format == "json" {
		return outputReceiveJSON(writer, target, len(plaintext))
	}
	_, _ = fmt.Fprintf(writer, "Saved %s (%d bytes)\n", target, len(plaintext))
	return nil
}

// outputName strips any directory components from the sender-supplied name.
func outputName(displayName, fallback string) string {
	name := filepath.Base(filepath.Clean("/" + strings.ReplaceAll(displayName, "\\", "/")))
	if name == "/" || name == "." || name == ".." {
		return fallback
	}
	return name
}

func writeOutput(dir, name string, data []byte, force bool) (string, error) {
	if force {
		target := filepath.Join(dir, name)
		return target, os.WriteFile(target, data, 0o600)
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; i < maxNameAttempts; i++ {
		candidate := name
		if i > 0 {
			candidate = fmt.Sprintf("%s (%d)%s", stem, i, ext)
		}
		target := filepath.Join(dir, candidate)

		f, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create output: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			_ = f.Close()
			return "", fmt.Errorf("failed to write output: %w", err)
		}
		if err := f.Close(); err != nil {
			return "", fmt.Errorf("failed to write output: %w", err)
		}
		return target, nil
	}

	return "", fmt.Errorf("no free file name for %s in %s", name, dir)
}

func outputReceiveJSON(writer io.Writer, path string, size int) error {
	jsonBytes, err := json.MarshalIndent(map[string]any{
		"path": path,
		"size": size,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, _ = fmt.Fprintln(writer, string(jsonBytes))
	return nil
}
