package domain

import (
	"github.com/allisson/sealdrop/internal/errors"
)

// File-specific error definitions.
var (
	// ErrFileNotFound indicates no unconsumed record exists for the id. Never returned to clients as is.
	ErrFileNotFound = errors.Wrap(errors.ErrNotFound, "file not found")

	// ErrAccessDenied is the single outward error for unknown, consumed and wrong-credential retrievals.
	ErrAccessDenied = errors.Wrap(errors.ErrForbidden, "access denied")

	// ErrEnvelopeRequired indicates the upload carried no envelope bytes.
	ErrEnvelopeRequired = errors.Wrap(errors.ErrInvalidInput, "encrypted file is required")

	// ErrEnvelopeTooShort indicates the upload is smaller than any valid envelope.
	ErrEnvelopeTooShort = errors.Wrap(errors.ErrInvalidInput, "encrypted file is too short")

	// ErrEnvelopeTooLarge indicates the upload exceeds the configured ceiling.
	ErrEnvelopeTooLarge = errors.Wrap(errors.ErrPayloadTooLarge, "encrypted file exceeds the maximum size")

	// ErrInvalidAccessGate indicates the access gate is not a hex encoded SHA-256 digest.
	ErrInvalidAccessGate = errors.Wrap(errors.ErrInvalidInput, "access gate must be a 64 character hex digest")

	// ErrMissingExtension indicates the display name carries no file extension.
	ErrMissingExtension = errors.Wrap(errors.ErrInvalidInput, "display name must include a file extension")

	// ErrExtensionNotAllowed indicates the extension is outside the configured allow list.
	ErrExtensionNotAllowed = errors.Wrap(errors.ErrInvalidInput, "file extension is not allowed")

	// ErrBlobMissing indicates a record exists but its envelope bytes are gone.
	ErrBlobMissing = errors.Wrap(errors.ErrIntegrity, "stored file bytes are missing")

	// ErrNotificationFailed indicates an explicitly requested notification could not be delivered.
	ErrNotificationFailed = errors.Wrap(errors.ErrUnavailable, "notification delivery failed")

	// ErrStorageUnavailable indicates the byte store failed after retries.
	ErrStorageUnavailable = errors.Wrap(errors.ErrUnavailable, "file storage unavailable")
)
