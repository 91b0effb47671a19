package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const (
	SessionTokenBytes = 32
	UserIDBytes       = 16
	OneTimeTokenBytes = 32
)

// GenerateToken returns byteLength bytes from crypto/rand, hex-encoded.
func GenerateToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		byteLength = SessionTokenBytes
	}
	b := make([]byte, byteLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
