// Package http provides HTTP handlers for the one-time file relay.
// Uploads are multipart submissions of an already encrypted envelope; downloads stream the
// envelope once and consume the link.
package http

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/allisson/sealdrop/internal/errors"
	filesDomain "github.com/allisson/sealdrop/internal/files/domain"
	"github.com/allisson/sealdrop/internal/files/http/dto"
	filesUseCase "github.com/allisson/sealdrop/internal/files/usecase"
	"github.com/allisson/sealdrop/internal/httputil"
	customValidation "github.com/allisson/sealdrop/internal/validation"
)

const (
	// CredentialHeader carries the access credential on retrieval.
	CredentialHeader = "X-Access-Credential"
	// LegacyCredentialHeader is the header the original web client sends.
	LegacyCredentialHeader = "password"
	// ExtensionHeader exposes the original file extension on download.
	ExtensionHeader = "X-File-Extension"
	// ForwardedProtoHeader carries the client-facing scheme behind a TLS-terminating proxy.
	ForwardedProtoHeader = "X-Forwarded-Proto"

	// formOverhead is the allowance for non-file multipart fields and boundaries.
	formOverhead = 1 << 20
)

// uploadFields names the multipart fields of one upload route.
type uploadFields struct {
	file           string
	displayName    string
	accessGate     string
	recipientEmail string
	senderName     string
}

var (
	v1Fields = uploadFields{
		file:           "file",
		displayName:    "display_name",
		accessGate:     "access_gate",
		recipientEmail: "recipient_email",
		senderName:     "sender_name",
	}
	legacyFields = uploadFields{
		file:           "encryptedFile",
		displayName:    "originalName",
		accessGate:     "password",
		recipientEmail: "receiverEmail",
		senderName:     "senderName",
	}
)

// FileHandler handles HTTP requests for uploads, downloads and notification resends.
type FileHandler struct {
	fileUseCase     filesUseCase.FileUseCase
	maxEnvelopeSize int64
	logger          *slog.Logger
}

// NewFileHandler creates a new file handler. maxEnvelopeSize bounds the request body;
// zero leaves it unbounded.
func NewFileHandler(
	fileUseCase filesUseCase.FileUseCase,
	maxEnvelopeSize int64,
	logger *slog.Logger,
) *FileHandler {
	return &FileHandler{
		fileUseCase:     fileUseCase,
		maxEnvelopeSize: maxEnvelopeSize,
		logger:          logger,
	}
}

// UploadHandler registers an encrypted envelope.
// POST /v1/files (multipart) - Returns 201 Created with the retrieval link.
func (h *FileHandler) UploadHandler(c *gin.Context) {
	registration, ok := h.upload(c, v1Fields)
	if !ok {
		return
	}
	c.JSON(http.StatusCreated, dto.MapRegistrationToResponse(registration))
}

// LegacyUploadHandler accepts the original web client's form.
// POST / (multipart) - Returns 200 OK with {msg, link}.
func (h *FileHandler) LegacyUploadHandler(c *gin.Context) {
	registration, ok := h.upload(c, legacyFields)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.MapRegistrationToLegacyResponse(registration))
}

func (h *FileHandler) upload(c *gin.Context, fields uploadFields) (*filesUseCase.Registration, bool) {
	if h.maxEnvelopeSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxEnvelopeSize+formOverhead)
	}

	fileHeader, err := c.FormFile(fields.file)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			httputil.HandleErrorGin(c, filesDomain.ErrEnvelopeTooLarge, h.logger)
			return nil, false
		}
		httputil.HandleErrorGin(c, filesDomain.ErrEnvelopeRequired, h.logger)
		return nil, false
	}

	envelopeBytes, err := h.readEnvelope(fileHeader)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return nil, false
	}

	req := dto.UploadRequest{
		DisplayName:    c.PostForm(fields.displayName),
		AccessGate:     c.PostForm(fields.accessGate),
		RecipientEmail: c.PostForm(fields.recipientEmail),
		SenderName:     c.PostForm(fields.senderName),
	}
	req.Normalize()

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return nil, false
	}

	registration, err := h.fileUseCase.Register(c.Request.Context(), filesUseCase.RegisterInput{
		Envelope:       envelopeBytes,
		DisplayName:    req.DisplayName,
		AccessGate:     req.AccessGate,
		RecipientEmail: req.RecipientEmail,
		SenderName:     req.SenderName,
		Origin:         requestOrigin(c.Request),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return nil, false
	}

	return registration, true
}

// readEnvelope reads the uploaded part, refusing anything over the ceiling.
func (h *FileHandler) readEnvelope(fileHeader *multipart.FileHeader) ([]byte, error) {
	if h.maxEnvelopeSize > 0 && fileHeader.Size > h.maxEnvelopeSize {
		return nil, filesDomain.ErrEnvelopeTooLarge
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to open uploaded file")
	}
	defer f.Close() //nolint:errcheck

	var r io.Reader = f
	if h.maxEnvelopeSize > 0 {
		r = io.LimitReader(f, h.maxEnvelopeSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read uploaded file")
	}
	if h.maxEnvelopeSize > 0 && int64(len(data)) > h.maxEnvelopeSize {
		return nil, filesDomain.ErrEnvelopeTooLarge
	}
	return data, nil
}

// DownloadHandler streams the envelope once and consumes the link.
// GET /download/:id and GET /v1/files/:id - Requires the X-Access-Credential header.
// Malformed ids return 404; unknown, consumed and wrong-credential ids return the same 403.
func (h *FileHandler) DownloadHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	download, err := h.fileUseCase.Retrieve(c.Request.Context(), id, credentialFrom(c))
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}
	defer download.Body.Close() //nolint:errcheck

	httputil.SetAttachmentHeaders(c, download.File.DisplayName, download.Size)
	c.Header(ExtensionHeader, download.File.Extension)
	c.Status(http.StatusOK)

	written, err := io.Copy(c.Writer, download.Body)
	if err != nil {
		// The record is already consumed; the receiver has to ask for a new upload.
		h.logger.Warn("download interrupted",
			slog.String("file_id", id.String()),
			slog.Int64("bytes_written", written),
			slog.Any("error", err),
		)
	}
}

// NotifyHandler re-sends the notification for a pending file without consuming it.
// POST /v1/files/:id/notify - Requires the X-Access-Credential header.
func (h *FileHandler) NotifyHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	var req dto.NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("invalid request body: %w", err), h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	err := h.fileUseCase.Notify(c.Request.Context(), id, credentialFrom(c), filesUseCase.NotifyInput{
		RecipientEmail: req.RecipientEmail,
		SenderName:     req.SenderName,
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusAccepted, dto.NotifyResponse{Notification: string(filesUseCase.NotificationSent)})
}

func (h *FileHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleErrorGin(c, filesDomain.ErrFileNotFound, h.logger)
		return uuid.Nil, false
	}
	return id, true
}

// requestOrigin returns scheme://host of the request. A proxy's X-Forwarded-Proto is honored
// when it names http or https.
func requestOrigin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	forwarded, _, _ := strings.Cut(r.Header.Get(ForwardedProtoHeader), ",")
	switch proto := strings.ToLower(strings.TrimSpace(forwarded)); proto {
	case "http", "https":
		scheme = proto
	}
	return scheme + "://" + r.Host
}

func credentialFrom(c *gin.Context) string {
	if credential := c.GetHeader(CredentialHeader); credential != "" {
		return credential
	}
	return c.GetHeader(LegacyCredentialHeader)
}
