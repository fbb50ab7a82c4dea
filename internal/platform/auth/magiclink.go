package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// MagicLinkTTL is how long an emailed sign-in token stays valid.
const MagicLinkTTL = 24 * time.Hour

// NewMagicToken generates a single-use sign-in token. The raw token is
// emailed to the patient; only its hash is stored.
func NewMagicToken() (raw string, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate magic token: %w", err)
	}
	raw = hex.EncodeToString(buf)
	return raw, HashMagicToken(raw), nil
}

// HashMagicToken returns the hex-encoded SHA-256 digest of a raw token.
func HashMagicToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
