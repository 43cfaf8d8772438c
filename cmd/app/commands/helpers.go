// Package commands contains CLI command implementations for the application.
package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"golang.org/x/term"

	"github.com/allisson/sealdrop/internal/app"
	apperrors "github.com/allisson/sealdrop/internal/errors"
)

// IOTuple holds reader and writer for commands, allowing for testing.
type IOTuple struct {
	Reader io.Reader
	Writer io.Writer
}

// DefaultIO returns an IOTuple with os.Stdin and os.Stdout.
func DefaultIO() IOTuple {
	return IOTuple{
		Reader: os.Stdin,
		Writer: os.Stdout,
	}
}

// closeContainer closes all resources in the container and logs any errors.
func closeContainer(container *app.Container, logger *slog.Logger) {
	if err := container.Shutdown(context.Background()); err != nil {
		logger.Error("failed to shutdown container", slog.Any("error", err))
	}
}

// closeMigrate closes the migration instance and logs any errors.
func closeMigrate(migrate *migrate.Migrate, logger *slog.Logger) {
	sourceError, databaseError := migrate.Close()
	if sourceError != nil || databaseError != nil {
		logger.Error(
			"failed to close the migrate",
			slog.Any("source_error", sourceError),
			slog.Any("database_error", databaseError),
		)
	}
}

// PromptSecret reads the shared secret. On a terminal the input is not echoed; otherwise one
// line is read from the reader. With confirm, the secret must be typed twice.
func PromptSecret(streams IOTuple, confirm bool) (string, error) {
	reader := bufio.NewReader(streams.Reader)

	secret, err := readSecretLine(streams, reader, "Secret: ")
	if err != nil {
		return "", err
	}
	if !confirm {
		return secret, nil
	}

	again, err := readSecretLine(streams, reader, "Confirm secret: ")
	if err != nil {
		return "", err
	}
	if again != secret {
		return "", errors.New("secrets do not match")
	}
	return secret, nil
}

func readSecretLine(streams IOTuple, reader *bufio.Reader, prompt string) (string, error) {
	_, _ = fmt.Fprint(streams.Writer, prompt)

	if f, ok := streams.Reader.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(streams.Writer)
		if err != nil {
			return "", fmt.Errorf("failed to read secret: %w", err)
		}
		return string(secret), nil
	}

	line, err := reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// relayError adds a retry hint to transient relay failures.
func relayError(err error) error {
	if apperrors.Retryable(err) {
		return fmt.Errorf("%w (the relay is temporarily unavailable, try again later)", err)
	}
	return err
}
