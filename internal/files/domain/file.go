// Package domain defines the core domain models and errors of the one-time file relay.
//
// A File is the relay's metadata about one sealed envelope. The envelope bytes live in the
// byte store under StorageRef; the record exists exactly as long as the file is retrievable.
package domain

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StorageRefPrefix is the byte store key prefix of every stored envelope.
const StorageRefPrefix = "files/"

// MinEnvelopeSize is the size of an envelope with an empty payload (salt, nonce and tag).
const MinEnvelopeSize = 16 + 12 + 16

// File represents an uploaded, not yet consumed envelope.
type File struct {
	// ID is the unguessable identifier embedded in the retrieval link.
	ID uuid.UUID
	// DisplayName is the sender supplied original file name, used only for Content-Disposition.
	DisplayName string
	// Extension is derived from DisplayName (e.g., ".pdf").
	Extension string
	// StorageRef locates the envelope bytes in the byte store.
	StorageRef string
	// AccessGate is the Argon2id hash of the access gate digest, never the digest or secret.
	AccessGate string
	// Size is the envelope size in bytes.
	Size int64
	// CreatedAt is the UTC time the record was committed.
	CreatedAt time.Time
}

// StorageRefFor returns the byte store key for id.
func StorageRefFor(id uuid.UUID) string {
	return StorageRefPrefix + id.String()
}

// ExtensionOf returns the lowercase extension of name including the leading dot, or "" if none.
// Names like ".env" or "archive." have no usable extension.
func ExtensionOf(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	ext := filepath.Ext(base)
	if ext == "." || ext == base {
		return ""
	}
	return strings.ToLower(ext)
}

// IsExpired reports whether the file is older than ttl at now. A zero ttl never expires.
func (f *File) IsExpired(now time.Time, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return !f.CreatedAt.Add(ttl).After(now)
}
