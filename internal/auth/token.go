package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	tokenLength = 32 // 32 bytes = 256 bits
)

// GenerateAdminToken generates a random admin token
func GenerateAdminToken() (string, error) {
	bytes := make([]byte, tokenLength)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashToken hashes a token so it can be compared without keeping the
// plaintext around
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return base64.RawStdEncoding.EncodeToString(hash[:])
}

// VerifyToken verifies a token against its hash using constant-time comparison
func VerifyToken(token, storedHash string) bool {
	if token == "" || storedHash == "" {
		return false
	}
	actualHash := HashToken(token)
	return subtle.ConstantTimeCompare([]byte(actualHash), []byte(storedHash)) == 1
}
