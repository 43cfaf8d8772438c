// Package dto provides data transfer objects for HTTP request and response handling.
package dto

import (
	"strings"

	validation "github.com/jellydator/validation"

	customValidation "github.com/allisson/sealdrop/internal/validation"
)

// UploadRequest contains the form fields of an upload. The envelope itself travels as a file part.
type UploadRequest struct {
	DisplayName    string
	AccessGate     string
	RecipientEmail string
	SenderName     string
}

// Normalize trims surrounding whitespace and lowercases the digest and address.
func (r *UploadRequest) Normalize() {
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	r.AccessGate = strings.ToLower(strings.TrimSpace(r.AccessGate))
	r.RecipientEmail = strings.ToLower(strings.TrimSpace(r.RecipientEmail))
	r.SenderName = strings.TrimSpace(r.SenderName)
}

// Validate checks if the upload request is valid.
func (r *UploadRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.DisplayName,
			validation.Required,
			customValidation.NotBlank,
			customValidation.NoControlChars,
			validation.RuneLength(1, 255),
		),
		validation.Field(&r.AccessGate,
			validation.Required,
			customValidation.HexDigest,
		),
		validation.Field(&r.RecipientEmail,
			validation.Length(0, 254),
			customValidation.Email,
		),
		validation.Field(&r.SenderName,
			customValidation.NoControlChars,
			validation.RuneLength(0, 100),
		),
	)
}

// NotifyRequest contains the parameters for re-sending a notification.
type NotifyRequest struct {
	RecipientEmail string `json:"recipient_email"`
	SenderName     string `json:"sender_name"`
}

// Validate checks if the notify request is valid.
func (r *NotifyRequest) Validate() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.RecipientEmail,
			validation.Required,
			validation.Length(0, 254),
			customValidation.Email,
		),
		validation.Field(&r.SenderName,
			customValidation.NoControlChars,
			validation.RuneLength(0, 100),
		),
	)
}
