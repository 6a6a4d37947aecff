package domain

import "time"

// Audit actions recorded by the session core.
const (
	AuditActionReuseDetected = "auth.refresh_token_reuse_detected"
	AuditActionLogout        = "auth.logout"
)

// AuditEvent is a security-relevant event tied to a user, kept for forensic
// review. ResourceID may be empty when the natural identifier looked like a
// secret and was dropped.
type AuditEvent struct {
	ID           string
	RequestID    string
	UserID       string
	ResourceType string
	ResourceID   string
	Action       string
	CreatedAt    time.Time
}
