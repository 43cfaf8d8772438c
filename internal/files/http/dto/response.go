package dto

import (
	"github.com/allisson/sealdrop/internal/files/usecase"
)

// UploadResponse represents a registered file in API responses.
// The access gate is never included.
type UploadResponse struct {
	ID           string `json:"id"`
	Link         string `json:"link"`
	Notification string `json:"notification"`
	Warning      string `json:"warning,omitempty"`
}

// MapRegistrationToResponse converts a registration to an API response.
func MapRegistrationToResponse(registration *usecase.Registration) UploadResponse {
	return UploadResponse{
		ID:           registration.File.ID.String(),
		Link:         registration.Link,
		Notification: string(registration.Notification),
		Warning:      registration.Warning,
	}
}

// LegacyUploadResponse is the body the original web client expects from POST /.
type LegacyUploadResponse struct {
	Msg     string `json:"msg"`
	Link    string `json:"link"`
	Warning string `json:"warning,omitempty"`
}

// MapRegistrationToLegacyResponse converts a registration to the legacy response body.
func MapRegistrationToLegacyResponse(registration *usecase.Registration) LegacyUploadResponse {
	return LegacyUploadResponse{
		Msg:     "File uploaded successfully",
		Link:    registration.Link,
		Warning: registration.Warning,
	}
}

// NotifyResponse reports a delivered notification.
type NotifyResponse struct {
	Notification string `json:"notification"`
}
