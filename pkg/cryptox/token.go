// Package cryptox holds the token and password primitives for the session
// core: opaque refresh-token secrets, their SHA-256 fingerprints, and the
// salted PBKDF2 password hash.
package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Secret size constants (bytes of entropy before encoding).
const (
	// SecretSize256 provides 256 bits of entropy (43 chars base64url).
	// The floor for refresh-token secrets.
	SecretSize256 = 32
	// SecretSize384 provides 384 bits of entropy (64 chars base64url).
	SecretSize384 = 48
)

// GenerateSecret creates a cryptographically random, URL-safe opaque secret
// of the given byte length, base64url-encoded without padding.
func GenerateSecret(size int) (string, error) {
	if size < SecretSize256 {
		return "", fmt.Errorf("cryptox: secret size %d below 32-byte floor", size)
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cryptox: generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintSecret returns the deterministic SHA-256 fingerprint of an
// opaque secret, base64url-encoded. Only the fingerprint is ever persisted
// or logged; the secret itself leaves the process exactly once, at issuance.
func FingerprintSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
