package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// newAESGCM creates an AES-256-GCM AEAD with the standard 12-byte nonce and 16-byte tag.
func newAESGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, errors.New("key must be exactly 32 bytes")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return aead, nil
}

// Zero overwrites b with zeros to clear key material from memory.
func Zero(b []byte) {
	clear(b)
}
