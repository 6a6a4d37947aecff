// Package store defines the persistence boundary of the session core.
// Concrete drivers live under drivers/. Refresh-token rows are mutated only
// through the three write operations below; nothing else in the system
// touches them.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/budgetbuddy/authd/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. It exposes sub-repositories to
// keep concerns tidy and testable.
type Store interface {
	Users() Users
	RefreshTokens() RefreshTokens
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST Commit() or Rollback() the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and
	// rolling back on error or panic. Preferred over Tx for rotation.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store with explicit commit/rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// CreateUser inserts a new user (id is provided by the app via ULID).
	// Returns ErrAlreadyExists when the username is taken.
	CreateUser(ctx context.Context, u domain.User) error

	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByUsername is used during login.
	GetUserByUsername(ctx context.Context, username string) (domain.User, error)
}

type RefreshTokens interface {
	// CreateRefreshToken stores a new active token row. Returns
	// ErrAlreadyExists if a row with the same token hash exists; the
	// secret's entropy makes that unreachable in practice but the
	// constraint is enforced regardless.
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error

	// GetRefreshTokenByHash is the point lookup performed on every
	// refresh and logout.
	GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error)

	// RevokeRefreshTokenIfActive atomically sets revoked_at=now on the
	// row only if it is still unrevoked and not expired before notAfter.
	// It reports whether this call performed the transition. Implemented
	// as a single conditional UPDATE so that of any number of concurrent
	// rotation attempts, across process instances, exactly one wins.
	RevokeRefreshTokenIfActive(ctx context.Context, id string, now, notAfter time.Time) (bool, error)

	// HasNewerRefreshToken reports whether the user owns any token
	// created strictly after the given instant. Distinguishes reuse of a
	// rotated token from plain revocation.
	HasNewerRefreshToken(ctx context.Context, userID string, after time.Time) (bool, error)

	// ListActiveRefreshTokens returns the user's unrevoked, unexpired
	// rows, newest first.
	ListActiveRefreshTokens(ctx context.Context, userID string, now time.Time) ([]domain.RefreshToken, error)

	// RevokeAllUserRefreshTokens revokes every active row for the user
	// in one statement (logout-all).
	RevokeAllUserRefreshTokens(ctx context.Context, userID string, now time.Time) error

	// DeleteExpiredRefreshTokens is housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) error
}

type AuditEvents interface {
	CreateAuditEvent(ctx context.Context, ev domain.AuditEvent) error

	// ListAuditEventsByUser returns the user's events, newest first.
	ListAuditEventsByUser(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error)

	// DeleteAuditEventsBefore prunes old events (housekeeping).
	DeleteAuditEventsBefore(ctx context.Context, cutoff time.Time) error
}
