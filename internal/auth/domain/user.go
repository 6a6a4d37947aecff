// Package domain holds the data model shared by the service, store and HTTP
// layers of the session core.
package domain

import "time"

// User is the owning identity behind every session. The password hash is a
// salted PBKDF2 string; plaintext passwords never appear outside the
// verification call.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	CurrencyCode string
	CreatedAt    time.Time
}
