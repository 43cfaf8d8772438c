package httputil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/sealdrop/internal/errors"
)

func newTestContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestHandleErrorGin(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedError  string
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{
			"payload too large",
			fmt.Errorf("file exceeds limit: %w", apperrors.ErrPayloadTooLarge),
			http.StatusRequestEntityTooLarge,
			"payload_too_large",
		},
		{
			"invalid input",
			apperrors.Wrap(apperrors.ErrInvalidInput, "display name is required"),
			http.StatusUnprocessableEntity,
			"invalid_input",
		},
		{"forbidden", apperrors.ErrForbidden, http.StatusForbidden, "access_denied"},
		{"unavailable", apperrors.ErrUnavailable, http.StatusServiceUnavailable, "service_unavailable"},
		{"integrity", apperrors.ErrIntegrity, http.StatusInternalServerError, "internal_error"},
		{"unknown", assert.AnError, http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext()

			HandleErrorGin(c, tt.err, nil)

			assert.Equal(t, tt.expectedStatus, w.Code)
			var response ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
			assert.Equal(t, tt.expectedError, response.Error)
		})
	}
}

func TestHandleErrorGin_MessageExposure(t *testing.T) {
	t.Run("InputErrorsEchoTheReason", func(t *testing.T) {
		c, w := newTestContext()

		HandleErrorGin(c, apperrors.Wrap(apperrors.ErrInvalidInput, "display name has no extension"), nil)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Contains(t, response.Message, "display name has no extension")
	})

	t.Run("InternalErrorsHideTheReason", func(t *testing.T) {
		c, w := newTestContext()

		HandleErrorGin(c, apperrors.Wrap(apperrors.ErrIntegrity, "record 42 has no bytes"), nil)

		assert.NotContains(t, w.Body.String(), "record 42")
	})
}

func TestHandleErrorGin_UnavailableSetsRetryAfter(t *testing.T) {
	c, w := newTestContext()

	HandleErrorGin(c, apperrors.Join(apperrors.ErrUnavailable, assert.AnError), nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "5", w.Header().Get("Retry-After"))
}

func TestHandleErrorGin_Nil(t *testing.T) {
	c, w := newTestContext()

	HandleErrorGin(c, nil, nil)

	assert.Equal(t, 0, w.Body.Len())
}

func TestHandleErrorGin_ForbiddenBodyIsUniform(t *testing.T) {
	c1, w1 := newTestContext()
	HandleErrorGin(c1, apperrors.Wrap(apperrors.ErrForbidden, "file not found"), nil)

	c2, w2 := newTestContext()
	HandleErrorGin(c2, apperrors.Wrap(apperrors.ErrForbidden, "credential mismatch"), nil)

	assert.Equal(t, w1.Code, w2.Code)
	assert.Equal(t, w1.Body.String(), w2.Body.String())
}

func TestHandleBadRequestGin(t *testing.T) {
	c, w := newTestContext()

	HandleBadRequestGin(c, fmt.Errorf("missing multipart field"), nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"bad_request","message":"missing multipart field"}`, w.Body.String())
}

func TestHandleValidationErrorGin(t *testing.T) {
	c, w := newTestContext()

	HandleValidationErrorGin(c, fmt.Errorf("access_gate: must be a hex digest"), nil)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(
		t,
		`{"error":"validation_error","message":"access_gate: must be a hex digest"}`,
		w.Body.String(),
	)
}
