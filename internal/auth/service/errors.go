package service

import "errors"

// Sentinel errors returned by the session service. The HTTP layer maps each
// to a problem document; nothing below it inspects error strings.
var (
	// ErrInvalidCredentials covers unknown usernames and wrong passwords
	// alike, so a caller cannot probe which usernames exist.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrUnauthorized is returned for access tokens that fail
	// verification and for refresh secrets that are unknown or expired.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrRevoked marks a refresh secret that was revoked by a logout or
	// administrative action, with no sign of replay.
	ErrRevoked = errors.New("auth: refresh token revoked")

	// ErrReuseDetected marks a rotated refresh secret presented a second
	// time, a likely sign of token theft. An audit event is recorded
	// before this is returned.
	ErrReuseDetected = errors.New("auth: refresh token reuse detected")

	// ErrUsernameTaken is returned by Register when the username exists.
	ErrUsernameTaken = errors.New("auth: username already taken")
)
