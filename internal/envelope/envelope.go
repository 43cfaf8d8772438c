// Package envelope seals files on the sender's machine before they reach the relay.
//
// An envelope is the byte sequence salt(16) || nonce(12) || ciphertext || tag(16). The AES-256-GCM
// key is derived from the shared secret with PBKDF2-HMAC-SHA256 over the per-envelope salt, so the
// relay only ever stores bytes it cannot open.
package envelope

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"

	apperrors "github.com/allisson/sealdrop/internal/errors"
)

const (
	// SaltSize is the length of the PBKDF2 salt prefix.
	SaltSize = 16
	// NonceSize is the length of the AES-GCM nonce following the salt.
	NonceSize = 12
	// TagSize is the length of the GCM authentication tag trailing the ciphertext.
	TagSize = 16
	// KeySize is the derived AES-256 key length.
	KeySize = 32
	// Overhead is the number of bytes an envelope adds to its plaintext.
	Overhead = SaltSize + NonceSize + TagSize

	// DefaultIterations is the PBKDF2 work factor for new envelopes.
	DefaultIterations = 600000
	// LegacyIterations is the work factor used by the original browser client.
	LegacyIterations = 1000
	// DefaultMaxPlaintextSize is the largest file accepted for sealing.
	DefaultMaxPlaintextSize int64 = 20000000
)

var (
	// ErrPlaintextTooLarge is returned when the file exceeds the configured ceiling.
	ErrPlaintextTooLarge = apperrors.Wrap(apperrors.ErrPayloadTooLarge, "file exceeds the maximum size")

	// ErrMalformedEnvelope is returned when the input is too short to be an envelope.
	ErrMalformedEnvelope = apperrors.Wrap(apperrors.ErrInvalidInput, "malformed envelope")

	// ErrDecryptionFailed is returned when the secret is wrong or the envelope was modified.
	ErrDecryptionFailed = apperrors.New("envelope authentication failed")
)

// Sealer encrypts and decrypts envelopes. It is stateless and safe for concurrent use.
type Sealer struct {
	iterations       int
	maxPlaintextSize int64
	random           io.Reader
}

// Option configures a Sealer.
type Option func(*Sealer)

// WithIterations overrides the PBKDF2 iteration count. Both ends must agree on it.
func WithIterations(iterations int) Option {
	return func(s *Sealer) {
		if iterations > 0 {
			s.iterations = iterations
		}
	}
}

// WithMaxPlaintextSize overrides the plaintext ceiling. A value <= 0 disables the check.
func WithMaxPlaintextSize(size int64) Option {
	return func(s *Sealer) {
		s.maxPlaintextSize = size
	}
}

// WithRandom sets the source of salts and nonces. Tests use it to make output reproducible.
func WithRandom(r io.Reader) Option {
	return func(s *Sealer) {
		s.random = r
	}
}

// NewSealer creates a Sealer with the default work factor and size ceiling.
func NewSealer(opts ...Option) *Sealer {
	s := &Sealer{
		iterations:       DefaultIterations,
		maxPlaintextSize: DefaultMaxPlaintextSize,
		random:           rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Iterations returns the PBKDF2 work factor in use.
func (s *Sealer) Iterations() int {
	return s.iterations
}

// MaxPlaintextSize returns the plaintext ceiling in bytes.
func (s *Sealer) MaxPlaintextSize() int64 {
	return s.maxPlaintextSize
}

// Encrypt seals plaintext under a key derived from secret with a fresh salt and nonce.
// The size ceiling is checked before any key derivation happens.
func (s *Sealer) Encrypt(plaintext []byte, secret string) ([]byte, error) {
	if s.maxPlaintextSize > 0 && int64(len(plaintext)) > s.maxPlaintextSize {
		return nil, ErrPlaintextTooLarge
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(s.random, salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	key := s.deriveKey(secret, salt)
	defer Zero(key)

	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(s.random, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, Overhead+len(plaintext))
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// Decrypt opens an envelope produced by Encrypt. Any modification of the envelope or a wrong
// secret yields ErrDecryptionFailed and no plaintext.
func (s *Sealer) Decrypt(envelope []byte, secret string) ([]byte, error) {
	if len(envelope) < Overhead {
		return nil, ErrMalformedEnvelope
	}

	salt := envelope[:SaltSize]
	nonce := envelope[SaltSize : SaltSize+NonceSize]
	ciphertext := envelope[SaltSize+NonceSize:]

	key := s.deriveKey(secret, salt)
	defer Zero(key)

	aead, err := newAESGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

func (s *Sealer) deriveKey(secret string, salt []byte) []byte {
	return pbkdf2.Key([]byte(secret), salt, s.iterations, KeySize, sha256.New)
}
