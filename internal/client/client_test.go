package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/sealdrop/internal/errors"
	"github.com/allisson/sealdrop/internal/httputil"
)

const testGate = "fe98beb632ec761f47498b8338079b6c0683567ad1d95672752f4ff78c554319"

func newTestClient(serverURL string) *Client {
	return New(serverURL, WithRetries(2, time.Millisecond), WithTimeout(5*time.Second))
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(httputil.ErrorResponse{Error: code, Message: message})
}

func TestClient_Upload(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		envelope := []byte("sealed-bytes-that-are-long-enough-to-matter")

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/files", r.URL.Path)

			file, _, err := r.FormFile("file")
			require.NoError(t, err)
			data, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, envelope, data)
			assert.Equal(t, "report.pdf", r.FormValue("display_name"))
			assert.Equal(t, testGate, r.FormValue("access_gate"))
			assert.Equal(t, "bob@example.com", r.FormValue("recipient_email"))
			assert.Empty(t, r.FormValue("sender_name"))

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(UploadResult{
				ID:           "abc",
				Link:         "http://relay/download/abc",
				Notification: "sent",
			})
		}))
		defer server.Close()

		result, err := newTestClient(server.URL+"/").Upload(context.Background(), UploadRequest{
			Envelope:       envelope,
			DisplayName:    "report.pdf",
			AccessGate:     testGate,
			RecipientEmail: "bob@example.com",
		})

		require.NoError(t, err)
		assert.Equal(t, "http://relay/download/abc", result.Link)
		assert.Equal(t, "sent", result.Notification)
	})

	t.Run("Error_ValidationIsNotRetried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeError(w, http.StatusUnprocessableEntity, "invalid_input", "file extension is not allowed")
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Upload(context.Background(), UploadRequest{Envelope: []byte("x")})

		assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
		assert.Contains(t, err.Error(), "file extension is not allowed")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Error_UnavailableIsRetried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				writeError(w, http.StatusServiceUnavailable, "service_unavailable", "retry later")
				return
			}
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"abc","link":"http://relay/download/abc","notification":"skipped"}`))
		}))
		defer server.Close()

		result, err := newTestClient(server.URL).Upload(context.Background(), UploadRequest{Envelope: []byte("x")})

		require.NoError(t, err)
		assert.Equal(t, "skipped", result.Notification)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestClient_Download(t *testing.T) {
	id := uuid.New().String()

	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/download/"+id, r.URL.Path)
			assert.Equal(t, testGate, r.Header.Get("X-Access-Credential"))

			w.Header().Set("Content-Type", "application/octet-stream")
			w.Header().Set("Content-Disposition", `attachment; filename="q3%20report.pdf"`)
			w.Header().Set("X-File-Extension", "pdf")
			_, _ = w.Write([]byte("sealed"))
		}))
		defer server.Close()

		result, err := newTestClient(server.URL).Download(context.Background(), id, testGate)

		require.NoError(t, err)
		assert.Equal(t, "q3 report.pdf", result.DisplayName)
		assert.Equal(t, "pdf", result.Extension)
		assert.Equal(t, []byte("sealed"), result.Envelope)
	})

	t.Run("Error_AccessDenied", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeError(w, http.StatusForbidden, "access_denied", "The link is invalid or has already been used")
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Download(context.Background(), id, "wrong")

		assert.ErrorIs(t, err, ErrAccessDenied)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Error_IntegrityIsNotRetried", func(t *testing.T) {
		var calls atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeError(w, http.StatusInternalServerError, "internal_error", "An internal error occurred")
		}))
		defer server.Close()

		_, err := newTestClient(server.URL).Download(context.Background(), id, testGate)

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "500")
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Error_ServerDown", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		serverURL := server.URL
		server.Close()

		_, err := New(serverURL, WithRetries(0, 0)).Download(context.Background(), id, testGate)

		assert.True(t, apperrors.Is(err, apperrors.ErrUnavailable))
	})
}

func TestParseLink(t *testing.T) {
	id := uuid.New().String()

	t.Run("Success", func(t *testing.T) {
		base, parsedID, err := ParseLink("https://relay.example.com/download/" + id)

		require.NoError(t, err)
		assert.Equal(t, "https://relay.example.com", base)
		assert.Equal(t, id, parsedID)
	})

	t.Run("Success_WithPathPrefix", func(t *testing.T) {
		base, parsedID, err := ParseLink(" http://localhost:8080/relay/download/" + id + "/ ")

		require.NoError(t, err)
		assert.Equal(t, "http://localhost:8080/relay", base)
		assert.Equal(t, id, parsedID)
	})

	invalid := []string{
		"",
		"not a url",
		"https://relay.example.com/files/" + id,
		"https://relay.example.com/download/not-a-uuid",
		"/download/" + id,
	}
	for _, link := range invalid {
		_, _, err := ParseLink(link)
		assert.ErrorIs(t, err, ErrInvalidLink, link)
	}
}
