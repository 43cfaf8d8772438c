package commands

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPurger struct {
	mock.Mock
}

func (m *MockPurger) PurgeExpired(ctx context.Context, ttl time.Duration, dryRun bool) (int64, error) {
	args := m.Called(ctx, ttl, dryRun)
	return args.Get(0).(int64), args.Error(1)
}

type countingPurger struct {
	calls atomic.Int32
	err   error
}

func (p *countingPurger) PurgeExpired(ctx context.Context, ttl time.Duration, dryRun bool) (int64, error) {
	p.calls.Add(1)
	return 1, p.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRunCleanExpiredFiles(t *testing.T) {
	ctx := context.Background()
	ttl := 48 * time.Hour

	t.Run("text-output", func(t *testing.T) {
		purger := &MockPurger{}
		purger.On("PurgeExpired", ctx, ttl, false).Return(int64(10), nil)

		var out bytes.Buffer
		err := RunCleanExpiredFiles(ctx, purger, discardLogger(), &out, ttl, false, "text")

		require.NoError(t, err)
		assert.Contains(t, out.String(), "Successfully deleted 10 expired file(s) older than 48h0m0s")
		purger.AssertExpectations(t)
	})

	t.Run("json-dry-run", func(t *testing.T) {
		purger := &MockPurger{}
		purger.On("PurgeExpired", ctx, ttl, true).Return(int64(5), nil)

		var out bytes.Buffer
		err := RunCleanExpiredFiles(ctx, purger, discardLogger(), &out, ttl, true, "json")

		require.NoError(t, err)
		assert.Contains(t, out.String(), `"count": 5`)
		assert.Contains(t, out.String(), `"dry_run": true`)
		assert.Contains(t, out.String(), `"ttl_hours": 48`)
		purger.AssertExpectations(t)
	})

	t.Run("disabled", func(t *testing.T) {
		purger := &MockPurger{}

		var out bytes.Buffer
		err := RunCleanExpiredFiles(ctx, purger, discardLogger(), &out, 0, false, "text")

		require.NoError(t, err)
		assert.Contains(t, out.String(), "disabled")
		purger.AssertNotCalled(t, "PurgeExpired", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("negative-ttl", func(t *testing.T) {
		err := RunCleanExpiredFiles(ctx, &MockPurger{}, discardLogger(), &bytes.Buffer{}, -time.Hour, false, "text")

		require.Error(t, err)
	})

	t.Run("use-case-error", func(t *testing.T) {
		purger := &MockPurger{}
		purger.On("PurgeExpired", ctx, ttl, false).Return(int64(0), errors.New("db down"))

		err := RunCleanExpiredFiles(ctx, purger, discardLogger(), &bytes.Buffer{}, ttl, false, "text")

		require.ErrorContains(t, err, "failed to clean expired files")
	})
}

func TestRunExpiryReaper(t *testing.T) {
	t.Run("disabled-returns-immediately", func(t *testing.T) {
		purger := &countingPurger{}

		err := RunExpiryReaper(context.Background(), purger, discardLogger(), 0, time.Millisecond)

		require.NoError(t, err)
		assert.Zero(t, purger.calls.Load())
	})

	t.Run("purges-until-cancelled", func(t *testing.T) {
		purger := &countingPurger{err: errors.New("transient")}
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- RunExpiryReaper(ctx, purger, discardLogger(), time.Hour, 5*time.Millisecond)
		}()

		require.Eventually(t, func() bool { return purger.calls.Load() >= 2 }, time.Second, time.Millisecond)
		cancel()
		assert.NoError(t, <-done)
	})
}

func TestReaperInterval(t *testing.T) {
	assert.Equal(t, time.Minute, reaperInterval(5*time.Minute))
	assert.Equal(t, 6*time.Minute, reaperInterval(time.Hour))
	assert.Equal(t, time.Hour, reaperInterval(72*time.Hour))
}
