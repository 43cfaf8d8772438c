package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	outboxUseCase "github.com/allisson/sealdrop/internal/outbox/usecase"
)

// BacklogReporter counts deferred outbox work.
type BacklogReporter interface {
	Backlog(ctx context.Context) (*outboxUseCase.Backlog, error)
}

// ErrFailedEvents is returned by RunOutboxStatus in strict mode when events were parked.
var ErrFailedEvents = errors.New("outbox has failed events")

// RunOutboxStatus prints how many outbox events are pending and how many were parked as
// failed. With strict, parked events turn into a non-zero exit for use in health checks.
func RunOutboxStatus(
	ctx context.Context,
	reporter BacklogReporter,
	writer io.Writer,
	strict bool,
	format string,
) error {
	backlog, err := reporter.Backlog(ctx)
	if err != nil {
		return fmt.Errorf("failed to read outbox backlog: %w", err)
	}

	if format == "json" {
		jsonBytes, err := json.MarshalIndent(backlog, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		_, _ = fmt.Fprintln(writer, string(jsonBytes))
	} else {
		_, _ = fmt.Fprintf(writer, "Pending events: %d\nFailed events:  %d\n", backlog.Pending, backlog.Failed)
	}

	if strict && backlog.Failed > 0 {
		return fmt.Errorf("%w: %d", ErrFailedEvents, backlog.Failed)
	}
	return nil
}
