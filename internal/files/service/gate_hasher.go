// Package service provides the access gate hasher used by the relay to store and check
// retrieval credentials without keeping them in a reversible form.
package service

import (
	"strings"

	"github.com/allisson/go-pwdhash"

	apperrors "github.com/allisson/sealdrop/internal/errors"
)

// GateHasher hashes access gate digests at rest and verifies presented credentials.
type GateHasher interface {
	// Hash returns a PHC encoded Argon2id hash of the gate digest.
	Hash(digest string) (string, error)
	// Verify reports whether credential matches hashedGate using a constant-time comparison.
	Verify(credential, hashedGate string) bool
}

type argon2GateHasher struct {
	hasher *pwdhash.PasswordHasher
}

// NewGateHasher creates a GateHasher using the Moderate Argon2id policy.
func NewGateHasher() GateHasher {
	return mustGateHasher(pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyModerate)))
}

// NewInteractiveGateHasher creates a cheaper GateHasher for tests and low-latency deployments.
func NewInteractiveGateHasher() GateHasher {
	return mustGateHasher(pwdhash.New(pwdhash.WithPolicy(pwdhash.PolicyInteractive)))
}

func mustGateHasher(hasher *pwdhash.PasswordHasher, err error) GateHasher {
	if err != nil {
		// This should never happen with valid policy
		panic(err)
	}
	return &argon2GateHasher{hasher: hasher}
}

// Hash normalizes the hex digest to lowercase before hashing.
func (g *argon2GateHasher) Hash(digest string) (string, error) {
	hashed, err := g.hasher.Hash([]byte(strings.ToLower(digest)))
	if err != nil {
		return "", apperrors.Wrap(err, "failed to hash access gate")
	}
	return hashed, nil
}

func (g *argon2GateHasher) Verify(credential, hashedGate string) bool {
	if credential == "" || hashedGate == "" {
		return false
	}
	ok, err := g.hasher.Verify([]byte(strings.ToLower(credential)), hashedGate)
	if err != nil {
		return false
	}
	return ok
}
