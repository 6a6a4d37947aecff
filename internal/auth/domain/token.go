package domain

import "time"

// RefreshToken models one persisted long-lived credential. The opaque secret
// handed to the client is never stored; TokenHash is its SHA-256 fingerprint
// and is unique across all rows.
//
// A token is usable for rotation iff RevokedAt is nil and ExpiresAt is in the
// future. RevokedAt is set exactly once and never cleared.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Active reports whether the token can still rotate at the given instant.
func (t RefreshToken) Active(now time.Time) bool {
	return t.RevokedAt == nil && t.ExpiresAt.After(now)
}

// Expired reports whether the token's absolute expiry has passed.
func (t RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// Session is what a successful register, login or refresh returns: the
// principal, a signed access token and the plaintext refresh secret. The
// secret crosses the process boundary exactly once, here.
type Session struct {
	User          User
	AccessToken   string
	RefreshSecret string
	AccessTTL     time.Duration
}
