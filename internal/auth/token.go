package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// sessionTokenBytes gives 256 bits of entropy per token.
const sessionTokenBytes = 32

// NewSessionToken returns an opaque hex-encoded session token.
func NewSessionToken() (string, error) {
	buf := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
