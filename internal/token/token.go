// Package token implements the Token & Auth Guard (C1): generation and
// constant-time validation of the per-instance privileged token that gates
// every intra-grid RPC while this instance is a master.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

// Token is a hex-encoded, cryptographically random secret. It is never
// exposed over the public RPC surface; callers pass it back only on
// privileged calls.
type Token string

// byteLen yields >=128 bits of entropy once hex-encoded.
const byteLen = 24

// Generate produces a fresh Token with 192 bits of entropy.
func Generate() (Token, error) {
	buf := make([]byte, byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: generate: %w", err)
	}
	return Token(hex.EncodeToString(buf)), nil
}

// MustGenerate is Generate, panicking on failure. Intended for startup paths
// where a missing source of entropy is unrecoverable anyway.
func MustGenerate() Token {
	t, err := Generate()
	if err != nil {
		panic(err)
	}
	return t
}

// Guard validates privileged calls against a single LocalToken.
type Guard struct {
	local Token
}

// NewGuard constructs a Guard bound to local, the instance's own LocalToken.
func NewGuard(local Token) *Guard {
	return &Guard{local: local}
}

// Local returns the guarded LocalToken, for embedding in outbound enslave
// calls. It is intentionally not exported via any RPC-facing type.
func (g *Guard) Local() Token {
	return g.local
}

// Validate reports whether candidate matches the LocalToken, in constant
// time. A master rejects privileged calls whose token doesn't match; it
// never raises, per spec.
func (g *Guard) Validate(candidate Token) bool {
	a, b := []byte(g.local), []byte(candidate)
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
