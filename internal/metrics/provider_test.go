package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrapeProvider(t *testing.T, provider *Provider) string {
	t.Helper()

	w := httptest.NewRecorder()
	provider.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)

	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewProvider(t *testing.T) {
	provider, err := NewProvider("sealdrop_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	assert.NotNil(t, provider.MeterProvider())

	body := scrapeProvider(t, provider)
	assert.Contains(t, body, "go_goroutines")
}

func TestProvider_ExportsBusinessMetrics(t *testing.T) {
	ctx := context.Background()

	provider, err := NewProvider("sealdrop_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(ctx))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "sealdrop_test")
	require.NoError(t, err)

	bm.RecordOperation(ctx, "files", "file_retrieve", StatusDenied)
	bm.RecordBytes(ctx, "out", 128)

	body := scrapeProvider(t, provider)
	assert.Contains(t, body, "sealdrop_test_operations_total")
	assert.Contains(t, body, `operation="file_retrieve"`)
	assert.Contains(t, body, `status="denied"`)
}

func TestProvider_Shutdown(t *testing.T) {
	t.Run("Success_ShutdownProvider", func(t *testing.T) {
		provider, err := NewProvider("sealdrop_test")
		require.NoError(t, err)

		assert.NoError(t, provider.Shutdown(context.Background()))
	})

	t.Run("Success_ShutdownNilProvider", func(t *testing.T) {
		provider := &Provider{}

		assert.NoError(t, provider.Shutdown(context.Background()))
	})
}
