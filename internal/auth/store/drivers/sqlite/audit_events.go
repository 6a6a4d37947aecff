package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/budgetbuddy/authd/internal/auth/domain"
)

type auditEventsRepo struct {
	db dbtx
}

func (r *auditEventsRepo) CreateAuditEvent(ctx context.Context, ev domain.AuditEvent) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, request_id, user_id, resource_type, resource_id, action, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, mapStringNull(ev.RequestID), ev.UserID, ev.ResourceType,
		mapStringNull(ev.ResourceID), ev.Action, ev.CreatedAt.UTC(),
	)
	return mapConflict(err)
}

func (r *auditEventsRepo) ListAuditEventsByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, request_id, user_id, resource_type, resource_id, action, created_at
		FROM audit_events
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.AuditEvent
	for rows.Next() {
		ev, err := scanAuditEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *auditEventsRepo) DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM audit_events WHERE created_at < ?`, cutoff.UTC(),
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuditEvent(row rowScanner) (domain.AuditEvent, error) {
	var (
		ev         domain.AuditEvent
		requestID  sql.NullString
		resourceID sql.NullString
	)
	if err := row.Scan(&ev.ID, &requestID, &ev.UserID, &ev.ResourceType, &resourceID, &ev.Action, &ev.CreatedAt); err != nil {
		return domain.AuditEvent{}, err
	}
	ev.RequestID = mapNullString(requestID)
	ev.ResourceID = mapNullString(resourceID)
	ev.CreatedAt = ev.CreatedAt.UTC()
	return ev, nil
}
