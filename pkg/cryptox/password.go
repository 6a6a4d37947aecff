package cryptox

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2-HMAC-SHA256 parameters. Stored hashes carry their salt, so the
// iteration count can only be raised for newly hashed passwords.
const (
	pbkdf2Iterations = 200_000
	pbkdf2KeyLength  = sha256.Size
	saltBytes        = 16
)

// HashPassword derives a salted PBKDF2 hash and encodes it as
// "<salt-hex>$<hash-hex>".
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltBytes)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	saltHex := hex.EncodeToString(salt)
	key := pbkdf2.Key([]byte(password), []byte(saltHex), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return saltHex + "$" + hex.EncodeToString(key), nil
}

// VerifyPassword reports whether password matches the stored "salt$hash"
// string. Malformed stored values verify as false rather than erroring, so a
// corrupt row behaves like a wrong password.
func VerifyPassword(password, stored string) bool {
	saltHex, hashHex, ok := strings.Cut(stored, "$")
	if !ok || saltHex == "" || hashHex == "" {
		return false
	}
	key := pbkdf2.Key([]byte(password), []byte(saltHex), pbkdf2Iterations, pbkdf2KeyLength, sha256.New)
	return hmac.Equal([]byte(hex.EncodeToString(key)), []byte(hashHex))
}
