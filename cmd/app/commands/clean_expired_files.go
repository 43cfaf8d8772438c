package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// ExpiredFilePurger removes files that were never retrieved within their time to live.
type ExpiredFilePurger interface {
	PurgeExpired(ctx context.Context, ttl time.Duration, dryRun bool) (int64, error)
}

// RunCleanExpiredFiles deletes unretrieved files older than ttl together with their bytes.
// Supports dry-run mode to preview the deletion count and both text/JSON output formats.
// A zero ttl means expiry is disabled and nothing is deleted.
//
// Requirements: Database must be migrated and accessible.
func RunCleanExpiredFiles(
	ctx context.Context,
	purger ExpiredFilePurger,
	logger *slog.Logger,
	writer io.Writer,
	ttl time.Duration,
	dryRun bool,
	format string,
) error {
	if ttl < 0 {
		return fmt.Errorf("ttl must not be negative, got: %s", ttl)
	}
	if ttl == 0 {
		_, _ = fmt.Fprintln(writer, "File expiry is disabled (FILE_TTL_HOURS=0); nothing to delete")
		return nil
	}

	logger.Info("cleaning expired files",
		slog.Duration("ttl", ttl),
		slog.Bool("dry_run", dryRun),
	)

	count, err := purger.PurgeExpired(ctx, ttl, dryRun)
	if err != nil {
		return fmt.Errorf("failed to clean expired files: %w", err)
	}

	if format == "json" {
		outputCleanExpiredJSON(writer, count, ttl, dryRun)
	} else {
		outputCleanExpiredText(writer, count, ttl, dryRun)
	}

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Duration("ttl", ttl),
		slog.Bool("dry_run", dryRun),
	)

	return nil
}

func outputCleanExpiredText(writer io.Writer, count int64, ttl time.Duration, dryRun bool) {
	if dryRun {
		_, _ = fmt.Fprintf(writer, "Dry-run mode: Would delete %d expired file(s) older than %s\n", count, ttl)
		return
	}
	_, _ = fmt.Fprintf(writer, "Successfully deleted %d expired file(s) older than %s\n", count, ttl)
}

func outputCleanExpiredJSON(writer io.Writer, count int64, ttl time.Duration, dryRun bool) {
	result := map[string]interface{}{
		"count":     count,
		"ttl_hours": ttl.Hours(),
		"dry_run":   dryRun,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(writer, "failed to marshal JSON: %v\n", err)
		return
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
}

// RunExpiryReaper purges expired files every interval until ctx is cancelled.
// Failures are logged and retried on the next tick.
func RunExpiryReaper(
	ctx context.Context,
	purger ExpiredFilePurger,
	logger *slog.Logger,
	ttl time.Duration,
	interval time.Duration,
) error {
	if ttl <= 0 {
		return nil
	}

	logger.Info("starting expiry reaper",
		slog.Duration("ttl", ttl),
		slog.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("stopping expiry reaper")
			return nil
		case <-ticker.C:
			count, err := purger.PurgeExpired(ctx, ttl, false)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logger.Error("failed to purge expired files", slog.Any("error", err))
				continue
			}
			if count > 0 {
				logger.Info("purged expired files", slog.Int64("count", count))
			}
		}
	}
}

// reaperInterval polls often enough that a file outlives its ttl by at most a tenth of it.
func reaperInterval(ttl time.Duration) time.Duration {
	interval := ttl / 10
	if interval < time.Minute {
		return time.Minute
	}
	if interval > time.Hour {
		return time.Hour
	}
	return interval
}
