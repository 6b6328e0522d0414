package domain

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"time"
)

// TokenLength is the length of a verification token (hex-encoded SHA-512).
const TokenLength = sha512.Size * 2

// TokenGenerator derives verification tokens with HMAC-SHA512 over a process-wide secret.
type TokenGenerator struct {
	secret []byte
}

// NewTokenGenerator creates a generator keyed by secret.
func NewTokenGenerator(secret []byte) *TokenGenerator {
	key := make([]byte, len(secret))
	copy(key, secret)
	return &TokenGenerator{secret: key}
}

// Generate returns the token for an email and creation time.
// The same inputs always produce the same token.
func (g *TokenGenerator) Generate(email string, createdAt time.Time) string {
	mac := hmac.New(sha512.New, g.secret)
	mac.Write([]byte(email + "|" + TimestampString(createdAt)))
	return hex.EncodeToString(mac.Sum(nil))
}

// TimestampString is the canonical string form of a creation time used in tokens.
func TimestampString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// TokensEqual compares two tokens in constant time.
func TokensEqual(a, b string) bool {
	return hmac.Equal([]byte(a), []byte(b))
}
