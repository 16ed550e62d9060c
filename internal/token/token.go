// Package token generates opaque share tokens.
package token

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

const tokenBytes = 24

// Generator mints unguessable, URL-safe tokens. Unlike row IDs these must
// not be time-ordered, so they come from crypto/rand rather than UUID7.
type Generator struct{}

// NewGenerator creates a new Generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// New returns a fresh 192-bit token encoded as base64url.
func (Generator) New() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
