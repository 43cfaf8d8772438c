package envelope

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/allisson/sealdrop/internal/validation"
)

// AccessGate returns the hex SHA-256 digest of secret. The digest is what the relay stores
// (after its own hashing) and what a receiver presents to retrieve a file. It is distinct from
// the encryption key, which needs the salt and PBKDF2 to recompute.
func AccessGate(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ValidateSecret checks secret against the sharing policy (at least 20 characters, one uppercase letter).
func ValidateSecret(secret string) error {
	return validation.WrapValidationError(validation.SecretPolicy.Validate(secret))
}
