package service

import (
	"context"

	"github.com/budgetbuddy/authd/internal/auth/domain"
	"github.com/budgetbuddy/authd/internal/auth/store"
	"github.com/budgetbuddy/authd/pkg/idx"
	"github.com/budgetbuddy/authd/pkg/slogx"
)

// secretLikeLength is the shortest resource identifier treated as a
// credential. ULIDs are 26 characters; refresh secrets and their
// fingerprints are well past this.
const secretLikeLength = 32

// recordAudit persists a security event. Failures are logged and swallowed:
// an audit write must never fail the request it describes.
func recordAudit(ctx context.Context, s store.Store, ev domain.AuditEvent) {
	if ev.ID == "" {
		ev.ID = idx.New().String()
	}
	if ev.RequestID == "" {
		ev.RequestID = slogx.RequestIDFromContext(ctx)
	}
	ev.ResourceID = scrubResourceID(ev.ResourceID)

	if err := s.AuditEvents().CreateAuditEvent(ctx, ev); err != nil {
		slogx.FromContext(ctx).Warn("audit write failed",
			"action", ev.Action,
			"user_id", ev.UserID,
			"error", err,
		)
	}
}

// scrubResourceID drops identifiers long enough to be secrets so raw token
// material can never land in the audit table by accident.
func scrubResourceID(id string) string {
	if len(id) >= secretLikeLength {
		return ""
	}
	return id
}
