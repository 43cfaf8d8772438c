// Package client talks to a relay over HTTP on behalf of the send and receive commands.
// It only ever moves sealed envelopes; sealing and opening happen in package envelope.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	apperrors "github.com/allisson/sealdrop/internal/errors"
	"github.com/allisson/sealdrop/internal/httputil"
)

const (
	credentialHeader = "X-Access-Credential"
	extensionHeader  = "X-File-Extension"
	downloadPath     = "/download/"
)

var (
	// ErrAccessDenied is returned when the link is unknown, already used or the secret is wrong.
	ErrAccessDenied = apperrors.Wrap(apperrors.ErrForbidden, "the link is invalid or has already been used")

	// ErrInvalidLink is returned when a link does not point at a download.
	ErrInvalidLink = apperrors.Wrap(apperrors.ErrInvalidInput, "invalid download link")
)

// UploadRequest describes one sealed file to upload.
type UploadRequest struct {
	Envelope       []byte
	DisplayName    string
	AccessGate     string
	RecipientEmail string
	SenderName     string
}

// UploadResult is the relay's answer to an upload.
type UploadResult struct {
	ID           string `json:"id"`
	Link         string `json:"link"`
	Notification string `json:"notification"`
	Warning      string `json:"warning,omitempty"`
}

// DownloadResult holds a retrieved envelope and its metadata.
type DownloadResult struct {
	DisplayName string
	Extension   string
	Envelope    []byte
}

// Client is a relay HTTP client.
type Client struct {
	baseURL string
	http    *retryablehttp.Client
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets how many times transient failures are retried.
func WithRetries(retryMax int, waitMin time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = retryMax
		if waitMin > 0 {
			c.http.RetryWaitMin = waitMin
			c.http.RetryWaitMax = 4 * waitMin
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.http.HTTPClient.Timeout = timeout
	}
}

// WithLogger makes the client log its retries.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.http.Logger = logger
		}
	}
}

// New creates a client for the relay at baseURL.
func New(baseURL string, opts ...Option) *Client {
	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = 3
	httpClient.HTTPClient.Timeout = 5 * time.Minute
	httpClient.Logger = nil
	httpClient.CheckRetry = checkRetry

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// checkRetry retries connection failures and gateway errors only. A 500 from the relay
// reports a stored file it cannot serve, which a retry will not fix.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// Upload sends a sealed envelope and returns the retrieval link.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	fields := [][2]string{
		{"display_name", req.DisplayName},
		{"access_gate", req.AccessGate},
		{"recipient_email", req.RecipientEmail},
		{"sender_name", req.SenderName},
	}
	for _, field := range fields {
		if field[1] == "" {
			continue
		}
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return nil, apperrors.Wrap(err, "failed to build upload form")
		}
	}
	part, err := writer.CreateFormFile("file", "envelope.bin")
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build upload form")
	}
	if _, err := part.Write(req.Envelope); err != nil {
		return nil, apperrors.Wrap(err, "failed to build upload form")
	}
	if err := writer.Close(); err != nil {
		return nil, apperrors.Wrap(err, "failed to build upload form")
	}

	httpReq, err := retryablehttp.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/v1/files",
		body.Bytes(),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create upload request")
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusCreated {
		return nil, decodeError(resp)
	}

	var result UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, apperrors.Wrap(err, "failed to decode upload response")
	}
	return &result, nil
}

// Download retrieves the envelope behind id. A successful call consumes the link.
func (c *Client) Download(ctx context.Context, id, credential string) (*DownloadResult, error) {
	httpReq, err := retryablehttp.NewRequestWithContext(
		ctx,
		http.MethodGet,
		c.baseURL+downloadPath+url.PathEscape(id),
		nil,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create download request")
	}
	httpReq.Header.Set(credentialHeader, credential)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, apperrors.Join(apperrors.ErrUnavailable, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	envelope, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to read download")
	}

	displayName, ok := httputil.AttachmentFilename(resp.Header.Get("Content-Disposition"))
	if !ok {
		displayName = id
		if ext := resp.Header.Get(extensionHeader); ext != "" {
			displayName += "." + ext
		}
	}

	return &DownloadResult{
		DisplayName: displayName,
		Extension:   resp.Header.Get(extensionHeader),
		Envelope:    envelope,
	}, nil
}

// ParseLink splits a retrieval link into the relay base URL and the file id.
func ParseLink(link string) (baseURL, id string, err error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", "", ErrInvalidLink
	}

	idx := strings.LastIndex(u.Path, downloadPath)
	if idx < 0 {
		return "", "", ErrInvalidLink
	}
	id = strings.Trim(u.Path[idx+len(downloadPath):], "/")
	if _, err := uuid.Parse(id); err != nil {
		return "", "", ErrInvalidLink
	}

	return u.Scheme + "://" + u.Host + u.Path[:idx], id, nil
}

func decodeError(resp *http.Response) error {
	var body httputil.ErrorResponse
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body)

	message := body.Message
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusForbidden:
		return ErrAccessDenied
	case http.StatusNotFound:
		return apperrors.Wrap(apperrors.ErrNotFound, message)
	case http.StatusRequestEntityTooLarge:
		return apperrors.Wrap(apperrors.ErrPayloadTooLarge, message)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.Wrap(apperrors.ErrInvalidInput, message)
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return apperrors.Wrap(apperrors.ErrUnavailable, message)
	default:
		return fmt.Errorf("relay responded with status %d: %s", resp.StatusCode, message)
	}
}
