// Package service holds the session core: registration, login, refresh token
// rotation with reuse detection, logout and access token verification.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/budgetbuddy/authd/internal/auth/domain"
	"github.com/budgetbuddy/authd/internal/auth/metrics"
	"github.com/budgetbuddy/authd/internal/auth/store"
	"github.com/budgetbuddy/authd/pkg/cryptox"
	"github.com/budgetbuddy/authd/pkg/idx"
	"github.com/budgetbuddy/authd/pkg/jwtx"
	"github.com/budgetbuddy/authd/pkg/slogx"
)

// errRotationLost aborts the rotation transaction when the conditional
// revoke finds the row already taken. Never escapes Refresh.
var errRotationLost = errors.New("rotation lost to concurrent attempt")

// SessionService implements the authentication session lifecycle on top of
// the store and the access token codec.
type SessionService struct {
	store      store.Store
	codec      *jwtx.Codec
	metrics    *metrics.Metrics
	refreshTTL time.Duration
	now        func() time.Time
	locks      *userLocks

	// timingDecoy is a real password hash verified when login hits an
	// unknown username, so both failure paths cost one PBKDF2 run.
	timingDecoy string
}

// Option configures a SessionService.
type Option func(*SessionService)

// WithClock overrides the service time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

// NewSessionService wires the session core. refreshTTL is the absolute
// lifetime of every refresh token minted, rotation included.
func NewSessionService(st store.Store, codec *jwtx.Codec, m *metrics.Metrics, refreshTTL time.Duration, opts ...Option) (*SessionService, error) {
	if refreshTTL <= 0 {
		return nil, fmt.Errorf("refresh ttl must be positive, got %s", refreshTTL)
	}

	decoy, err := cryptox.HashPassword("decoy")
	if err != nil {
		return nil, fmt.Errorf("hash timing decoy: %w", err)
	}

	s := &SessionService{
		store:       st,
		codec:       codec,
		metrics:     m,
		refreshTTL:  refreshTTL,
		now:         time.Now,
		locks:       newUserLocks(),
		timingDecoy: decoy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates a new account and opens its first session.
func (s *SessionService) Register(ctx context.Context, username, password, currencyCode string) (domain.Session, error) {
	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.Session{}, fmt.Errorf("hash password: %w", err)
	}

	user := domain.User{
		ID:           idx.New().String(),
		Username:     username,
		PasswordHash: hash,
		CurrencyCode: currencyCode,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.Users().CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Session{}, ErrUsernameTaken
		}
		return domain.Session{}, fmt.Errorf("create user: %w", err)
	}

	slogx.FromContext(ctx).Info("user registered", "user_id", user.ID)
	return s.mintSession(ctx, user)
}

// Login verifies the credentials and opens a new session. Unknown usernames
// and wrong passwords are indistinguishable to the caller.
func (s *SessionService) Login(ctx context.Context, username, password string) (domain.Session, error) {
	user, err := s.store.Users().GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.VerifyPassword(password, s.timingDecoy)
			s.metrics.Logins.WithLabelValues(metrics.OutcomeInvalid).Inc()
			return domain.Session{}, ErrInvalidCredentials
		}
		s.metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.Session{}, fmt.Errorf("lookup user: %w", err)
	}

	if !cryptox.VerifyPassword(password, user.PasswordHash) {
		s.metrics.Logins.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return domain.Session{}, ErrInvalidCredentials
	}

	sess, err := s.mintSession(ctx, user)
	if err != nil {
		s.metrics.Logins.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.Session{}, err
	}
	s.metrics.Logins.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return sess, nil
}

// Refresh exchanges a refresh secret for a new access token and a new
// refresh secret, invalidating the presented one. Each secret rotates at
// most once; presenting a rotated secret again is flagged as reuse.
func (s *SessionService) Refresh(ctx context.Context, secret string) (domain.Session, error) {
	hash := cryptox.FingerprintSecret(secret)

	// Unlocked pre-read, only to learn which user to serialise on.
	tok, err := s.store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		return domain.Session{}, s.refreshFetchErr(err)
	}

	unlock := s.locks.Lock(tok.UserID)
	defer unlock()

	// Re-read under the lock; a concurrent attempt may have rotated or
	// revoked the row while we waited.
	tok, err = s.store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		return domain.Session{}, s.refreshFetchErr(err)
	}

	now := s.now().UTC()

	// Expiry wins over every other state: an expired secret is just an
	// invalid credential, whatever happened to it since.
	if tok.Expired(now) {
		s.metrics.Refreshes.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return domain.Session{}, ErrUnauthorized
	}
	if tok.RevokedAt != nil {
		return domain.Session{}, s.classifyRevoked(ctx, tok, now)
	}

	user, err := s.store.Users().GetUserByID(ctx, tok.UserID)
	if err != nil {
		s.metrics.Refreshes.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.Session{}, fmt.Errorf("lookup user: %w", err)
	}

	nextSecret, err := cryptox.GenerateSecret(cryptox.SecretSize384)
	if err != nil {
		s.metrics.Refreshes.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.Session{}, fmt.Errorf("generate refresh secret: %w", err)
	}
	next := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintSecret(nextSecret),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}

	// Revoke-old and insert-new commit atomically. The conditional revoke
	// decides the race: across process instances exactly one rotation of
	// a given secret can succeed, with or without the local lock.
	err = s.store.WithTx(ctx, func(tx store.Tx) error {
		ok, err := tx.RefreshTokens().RevokeRefreshTokenIfActive(ctx, tok.ID, now, now)
		if err != nil {
			return err
		}
		if !ok {
			return errRotationLost
		}
		return tx.RefreshTokens().CreateRefreshToken(ctx, next)
	})
	if errors.Is(err, errRotationLost) {
		// Another instance won the race between our read and the update.
		// Classify from fresh state, once; no retry loop.
		fresh, ferr := s.store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
		if ferr != nil {
			return domain.Session{}, s.refreshFetchErr(ferr)
		}
		if fresh.Expired(now) || fresh.RevokedAt == nil {
			s.metrics.Refreshes.WithLabelValues(metrics.OutcomeInvalid).Inc()
			return domain.Session{}, ErrUnauthorized
		}
		return domain.Session{}, s.classifyRevoked(ctx, fresh, now)
	}
	if err != nil {
		s.metrics.Refreshes.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.Session{}, fmt.Errorf("rotate refresh token: %w", err)
	}

	access, err := s.codec.Issue(user.ID)
	if err != nil {
		s.metrics.Refreshes.WithLabelValues(metrics.OutcomeError).Inc()
		return domain.Session{}, fmt.Errorf("issue access token: %w", err)
	}

	s.metrics.Refreshes.WithLabelValues(metrics.OutcomeSuccess).Inc()
	return domain.Session{
		User:          user,
		AccessToken:   access,
		RefreshSecret: nextSecret,
		AccessTTL:     s.codec.TTL(),
	}, nil
}

// Logout revokes every active refresh token the caller owns. The presented
// secret must be a live token belonging to the authenticated user.
func (s *SessionService) Logout(ctx context.Context, userID, secret string) error {
	hash := cryptox.FingerprintSecret(secret)

	tok, err := s.store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	unlock := s.locks.Lock(userID)
	defer unlock()

	tok, err = s.store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUnauthorized
		}
		return fmt.Errorf("lookup refresh token: %w", err)
	}

	now := s.now().UTC()
	if tok.Expired(now) {
		return ErrUnauthorized
	}
	// A secret belonging to someone else, or already revoked, gets the
	// same revoked-shaped rejection. Neither confirms a live credential.
	if tok.UserID != userID || tok.RevokedAt != nil {
		return ErrRevoked
	}

	if err := s.store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID, now); err != nil {
		return fmt.Errorf("revoke user tokens: %w", err)
	}

	recordAudit(ctx, s.store, domain.AuditEvent{
		UserID:       userID,
		ResourceType: "auth_session",
		ResourceID:   tok.ID,
		Action:       domain.AuditActionLogout,
		CreatedAt:    now,
	})
	slogx.FromContext(ctx).Info("user logged out", "user_id", userID)
	return nil
}

// Authenticate verifies a bearer access token and resolves its principal.
func (s *SessionService) Authenticate(ctx context.Context, accessToken string) (domain.User, error) {
	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		return domain.User{}, ErrUnauthorized
	}

	user, err := s.store.Users().GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.User{}, ErrUnauthorized
		}
		return domain.User{}, fmt.Errorf("lookup user: %w", err)
	}
	return user, nil
}

// AuditTrail returns the user's most recent security events.
func (s *SessionService) AuditTrail(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error) {
	return s.store.AuditEvents().ListAuditEventsByUser(ctx, userID, limit)
}

// classifyRevoked decides whether a revoked token is plain revocation or a
// replayed rotated secret. Any token created for the same user after this
// one means its secret already rotated, so presenting it again is reuse;
// that gets its own rejection kind and a security event.
func (s *SessionService) classifyRevoked(ctx context.Context, tok domain.RefreshToken, now time.Time) error {
	newer, err := s.store.RefreshTokens().HasNewerRefreshToken(ctx, tok.UserID, tok.CreatedAt)
	if err != nil {
		s.metrics.Refreshes.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("check token lineage: %w", err)
	}
	if !newer {
		s.metrics.Refreshes.WithLabelValues(metrics.OutcomeRevoked).Inc()
		return ErrRevoked
	}

	recordAudit(ctx, s.store, domain.AuditEvent{
		UserID:       tok.UserID,
		ResourceType: "auth_session",
		ResourceID:   tok.ID,
		Action:       domain.AuditActionReuseDetected,
		CreatedAt:    now,
	})
	slogx.FromContext(ctx).Warn("refresh token reuse detected",
		"user_id", tok.UserID,
		"token_id", tok.ID,
	)

	s.metrics.ReuseDetected.Inc()
	s.metrics.Refreshes.WithLabelValues(metrics.OutcomeReuse).Inc()
	return ErrReuseDetected
}

// mintSession issues the access token and persists a fresh refresh token.
func (s *SessionService) mintSession(ctx context.Context, user domain.User) (domain.Session, error) {
	access, err := s.codec.Issue(user.ID)
	if err != nil {
		return domain.Session{}, fmt.Errorf("issue access token: %w", err)
	}

	secret, err := cryptox.GenerateSecret(cryptox.SecretSize384)
	if err != nil {
		return domain.Session{}, fmt.Errorf("generate refresh secret: %w", err)
	}

	now := s.now().UTC()
	row := domain.RefreshToken{
		ID:        idx.New().String(),
		UserID:    user.ID,
		TokenHash: cryptox.FingerprintSecret(secret),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.store.RefreshTokens().CreateRefreshToken(ctx, row); err != nil {
		return domain.Session{}, fmt.Errorf("store refresh token: %w", err)
	}

	return domain.Session{
		User:          user,
		AccessToken:   access,
		RefreshSecret: secret,
		AccessTTL:     s.codec.TTL(),
	}, nil
}

func (s *SessionService) refreshFetchErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		s.metrics.Refreshes.WithLabelValues(metrics.OutcomeInvalid).Inc()
		return ErrUnauthorized
	}
	s.metrics.Refreshes.WithLabelValues(metrics.OutcomeError).Inc()
	return fmt.Errorf("lookup refresh token: %w", err)
}
