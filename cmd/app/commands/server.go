package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/sealdrop/internal/app"
	"github.com/allisson/sealdrop/internal/config"
	"github.com/allisson/sealdrop/internal/http"
)

const shutdownTimeout = 30 * time.Second

// RunServer starts the relay API, the metrics server, the outbox worker and the expiry reaper.
// Blocks until SIGINT/SIGTERM or the first fatal error, then shuts everything down gracefully.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()

	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))

	defer closeContainer(container, logger)

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(gctx); err != nil {
			return fmt.Errorf("api server error: %w", err)
		}
		return nil
	})

	var metricsServer *http.MetricsServer
	if cfg.MetricsEnabled {
		metricsServer, err = container.MetricsServer()
		if err != nil {
			return fmt.Errorf("failed to initialize metrics server: %w", err)
		}
		g.Go(func() error {
			if err := metricsServer.Start(gctx); err != nil {
				return fmt.Errorf("metrics server error: %w", err)
			}
			return nil
		})
	}

	if cfg.OutboxWorkerEnabled {
		if err := startBackgroundJobs(gctx, g, container, cfg); err != nil {
			return err
		}
	}

	// Stop the listeners once a signal arrives or any member of the group fails.
	// Storage and database are closed by closeContainer after the workers drain.
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown signal received")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// startBackgroundJobs adds the outbox worker and the expiry reaper to the group.
func startBackgroundJobs(ctx context.Context, g *errgroup.Group, container *app.Container, cfg *config.Config) error {
	outboxUseCase, err := container.OutboxUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox worker: %w", err)
	}

	fileUseCase, err := container.FileUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize file use case: %w", err)
	}

	logger := container.Logger()

	g.Go(func() error {
		if err := outboxUseCase.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("outbox worker error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return RunExpiryReaper(ctx, fileUseCase, logger, cfg.FileTTL, reaperInterval(cfg.FileTTL))
	})

	return nil
}

// RunWorker runs only the outbox worker and the expiry reaper, for deployments that scale
// them separately from the API.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	defer closeContainer(container, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	if err := startBackgroundJobs(gctx, g, container, cfg); err != nil {
		return err
	}

	return g.Wait()
}
