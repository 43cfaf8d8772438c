package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocloud.dev/blob/memblob"

	"github.com/allisson/sealdrop/internal/blobstore"
	"github.com/allisson/sealdrop/internal/client"
	filesDomain "github.com/allisson/sealdrop/internal/files/domain"
	"github.com/allisson/sealdrop/internal/files/http/dto"
	filesService "github.com/allisson/sealdrop/internal/files/service"
	filesUseCase "github.com/allisson/sealdrop/internal/files/usecase"
	outboxDomain "github.com/allisson/sealdrop/internal/outbox/domain"
)

// mapRepository keeps file records in memory. Its WithTx holds one lock for the whole
// transaction, which stands in for the row lock the SQL stores take.
type mapRepository struct {
	txMu  sync.Mutex
	mu    sync.Mutex
	files map[uuid.UUID]filesDomain.File
}

func newMapRepository() *mapRepository {
	return &mapRepository{files: make(map[uuid.UUID]filesDomain.File)}
}

func (r *mapRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	return fn(ctx)
}

func (r *mapRepository) Create(_ context.Context, file *filesDomain.File) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[file.ID] = *file
	return nil
}

func (r *mapRepository) GetByID(_ context.Context, id uuid.UUID) (*filesDomain.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	file, ok := r.files[id]
	if !ok {
		return nil, filesDomain.ErrFileNotFound
	}
	return &file, nil
}

func (r *mapRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*filesDomain.File, error) {
	return r.GetByID(ctx, id)
}

func (r *mapRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[id]; !ok {
		return filesDomain.ErrFileNotFound
	}
	delete(r.files, id)
	return nil
}

func (r *mapRepository) CountExpired(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (r *mapRepository) ListExpired(_ context.Context, _ time.Time, _ int) ([]*filesDomain.File, error) {
	return nil, nil
}

type discardOutbox struct{}

func (discardOutbox) Create(_ context.Context, _ *outboxDomain.OutboxEvent) error { return nil }

// newRelayRouter wires the handler to a real use case backed by in-memory stores.
func newRelayRouter(t *testing.T, baseURL string) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)
	repo := newMapRepository()
	useCase := filesUseCase.NewFileUseCase(
		filesUseCase.Config{BaseURL: baseURL, DeleteGracePeriod: time.Minute, PurgeBatchSize: 10},
		repo,
		repo,
		discardOutbox{},
		blobstore.New(memblob.OpenBucket(nil), blobstore.WithMaxRetries(0)),
		filesService.NewInteractiveGateHasher(),
		nil,
		nil,
	)
	handler := NewFileHandler(useCase, 1<<20, slog.New(slog.DiscardHandler))

	router := gin.New()
	router.POST("/v1/files", handler.UploadHandler)
	router.GET("/download/:id", handler.DownloadHandler)
	return router
}

func uploadThrough(t *testing.T, router *gin.Engine, host, forwardedProto string) dto.UploadResponse {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("display_name", "report.pdf"))
	require.NoError(t, writer.WriteField("access_gate", testGate))
	part, err := writer.CreateFormFile("file", "blob")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte{0x5A}, filesDomain.MinEnvelopeSize+64))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/files", body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if host != "" {
		req.Host = host
	}
	if forwardedProto != "" {
		req.Header.Set(ForwardedProtoHeader, forwardedProto)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var response dto.UploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	return response
}

func downloadThrough(router *gin.Engine, id, credential string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/download/"+id, nil)
	req.Header.Set(CredentialHeader, credential)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestFileHandler_LinkFromRequestOrigin(t *testing.T) {
	t.Run("NoBaseURL_UsesRequestOrigin", func(t *testing.T) {
		router := newRelayRouter(t, "")

		response := uploadThrough(t, router, "relay.test:8443", "https")

		assert.Equal(t, "https://relay.test:8443/download/"+response.ID, response.Link)
		base, id, err := client.ParseLink(response.Link)
		require.NoError(t, err)
		assert.Equal(t, "https://relay.test:8443", base)
		assert.Equal(t, response.ID, id)
	})

	t.Run("NoBaseURL_PlainHTTP", func(t *testing.T) {
		router := newRelayRouter(t, "")

		response := uploadThrough(t, router, "", "")

		assert.Equal(t, testOrigin+"/download/"+response.ID, response.Link)
		_, _, err := client.ParseLink(response.Link)
		assert.NoError(t, err)
	})

	t.Run("BaseURLOverridesOrigin", func(t *testing.T) {
		router := newRelayRouter(t, "https://files.example.org/")

		response := uploadThrough(t, router, "internal:8080", "http")

		assert.Equal(t, "https://files.example.org/download/"+response.ID, response.Link)
	})
}

func TestFileHandler_DeniedResponsesAreIdentical(t *testing.T) {
	router := newRelayRouter(t, "")
	response := uploadThrough(t, router, "", "")

	first := downloadThrough(router, response.ID, testGate)
	require.Equal(t, http.StatusOK, first.Code)

	consumed := downloadThrough(router, response.ID, testGate)
	neverIssued := downloadThrough(router, uuid.Must(uuid.NewV7()).String(), testGate)
	pending := uploadThrough(t, router, "", "")
	wrongCredential := downloadThrough(router, pending.ID, strings.Repeat("0", 64))

	assert.Equal(t, http.StatusForbidden, consumed.Code)
	assert.Equal(t, neverIssued.Code, consumed.Code)
	assert.Equal(t, neverIssued.Body.Bytes(), consumed.Body.Bytes())
	assert.Equal(t, neverIssued.Header(), consumed.Header())
	assert.Equal(t, neverIssued.Body.Bytes(), wrongCredential.Body.Bytes())
	assert.Equal(t, neverIssued.Header(), wrongCredential.Header())
	assert.Empty(t, consumed.Header().Get("Content-Disposition"))
	assert.Empty(t, consumed.Header().Get(ExtensionHeader))

	// The denied attempt leaves the pending file redeemable.
	assert.Equal(t, http.StatusOK, downloadThrough(router, pending.ID, testGate).Code)
}
