package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/budgetbuddy/authd/internal/auth/domain"
	"github.com/budgetbuddy/authd/internal/auth/metrics"
	"github.com/budgetbuddy/authd/internal/auth/service"
	"github.com/budgetbuddy/authd/internal/auth/store"
	"github.com/budgetbuddy/authd/internal/auth/store/drivers/sqlite"
	"github.com/budgetbuddy/authd/pkg/cryptox"
	"github.com/budgetbuddy/authd/pkg/idx"
	"github.com/budgetbuddy/authd/pkg/jwtx"
)

// testClock is a settable time source shared by the service and codec.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Unix(1_700_000_000, 0).UTC()}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*service.SessionService, *sqlite.Store, *testClock) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	clock := newTestClock()

	codec, err := jwtx.NewCodec("test-signing-secret", 15*time.Minute, jwtx.WithClock(clock.Now))
	require.NoError(t, err)

	svc, err := service.NewSessionService(st, codec, metrics.New(), 24*time.Hour, service.WithClock(clock.Now))
	require.NoError(t, err)

	return svc, st, clock
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	t.Run("opens a session", func(t *testing.T) {
		sess, err := svc.Register(ctx, "alice", "correct horse battery", "AUD")
		require.NoError(t, err)
		require.NotEmpty(t, sess.User.ID)
		require.Equal(t, "alice", sess.User.Username)
		require.NotEmpty(t, sess.AccessToken)
		require.NotEmpty(t, sess.RefreshSecret)
		require.Equal(t, 15*time.Minute, sess.AccessTTL)

		// The stored hash never equals the plaintext.
		require.NotEqual(t, "correct horse battery", sess.User.PasswordHash)
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := svc.Register(ctx, "alice", "another password", "AUD")
		require.ErrorIs(t, err, service.ErrUsernameTaken)
	})
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t)

	_, err := svc.Register(ctx, "bob", "hunter2hunter2", "AUD")
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		sess, err := svc.Login(ctx, "bob", "hunter2hunter2")
		require.NoError(t, err)
		require.Equal(t, "bob", sess.User.Username)
		require.NotEmpty(t, sess.RefreshSecret)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "bob", "wrong")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})

	t.Run("unknown username looks identical", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", "hunter2hunter2")
		require.ErrorIs(t, err, service.ErrInvalidCredentials)
	})
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	sess, err := svc.Register(ctx, "carol", "a long password", "AUD")
	require.NoError(t, err)

	t.Run("valid access token", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, sess.AccessToken)
		require.NoError(t, err)
		require.Equal(t, sess.User.ID, user.ID)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "not.a.token")
		require.ErrorIs(t, err, service.ErrUnauthorized)
	})

	t.Run("expired token", func(t *testing.T) {
		clock.Advance(16 * time.Minute)
		_, err := svc.Authenticate(ctx, sess.AccessToken)
		require.ErrorIs(t, err, service.ErrUnauthorized)
	})
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	svc, st, clock := newTestService(t)

	sess, err := svc.Register(ctx, "dave", "a long password", "AUD")
	require.NoError(t, err)
	clock.Advance(time.Minute)

	rotated, err := svc.Refresh(ctx, sess.RefreshSecret)
	require.NoError(t, err)
	require.NotEmpty(t, rotated.RefreshSecret)
	require.NotEqual(t, sess.RefreshSecret, rotated.RefreshSecret)

	t.Run("new access token verifies", func(t *testing.T) {
		user, err := svc.Authenticate(ctx, rotated.AccessToken)
		require.NoError(t, err)
		require.Equal(t, sess.User.ID, user.ID)
	})

	t.Run("replaying the rotated secret is reuse", func(t *testing.T) {
		_, err := svc.Refresh(ctx, sess.RefreshSecret)
		require.ErrorIs(t, err, service.ErrReuseDetected)

		events, err := svc.AuditTrail(ctx, sess.User.ID, 10)
		require.NoError(t, err)
		require.NotEmpty(t, events)
		require.Equal(t, domain.AuditActionReuseDetected, events[0].Action)

		// The successor stays usable; only the replayed secret is dead.
		active, err := st.RefreshTokens().ListActiveRefreshTokens(ctx, sess.User.ID, clock.Now())
		require.NoError(t, err)
		require.Len(t, active, 1)
	})

	t.Run("the successor still rotates", func(t *testing.T) {
		clock.Advance(time.Minute)
		next, err := svc.Refresh(ctx, rotated.RefreshSecret)
		require.NoError(t, err)
		require.NotEqual(t, rotated.RefreshSecret, next.RefreshSecret)
	})

	t.Run("unknown secret", func(t *testing.T) {
		_, err := svc.Refresh(ctx, "completely-unknown-secret")
		require.ErrorIs(t, err, service.ErrUnauthorized)
	})
}

func TestRefreshExpiryWinsOverRevocation(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	sess, err := svc.Register(ctx, "erin", "a long password", "AUD")
	require.NoError(t, err)

	// Revoke via logout, then let the token age past its absolute expiry.
	require.NoError(t, svc.Logout(ctx, sess.User.ID, sess.RefreshSecret))
	clock.Advance(25 * time.Hour)

	_, err = svc.Refresh(ctx, sess.RefreshSecret)
	require.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestRefreshExpired(t *testing.T) {
	ctx := context.Background()
	svc, _, clock := newTestService(t)

	sess, err := svc.Register(ctx, "frank", "a long password", "AUD")
	require.NoError(t, err)

	clock.Advance(25 * time.Hour)

	_, err = svc.Refresh(ctx, sess.RefreshSecret)
	require.ErrorIs(t, err, service.ErrUnauthorized)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	svc, st, clock := newTestService(t)

	first, err := svc.Register(ctx, "grace", "a long password", "AUD")
	require.NoError(t, err)
	second, err := svc.Login(ctx, "grace", "a long password")
	require.NoError(t, err)

	other, err := svc.Register(ctx, "heidi", "a long password", "AUD")
	require.NoError(t, err)

	t.Run("someone else's secret", func(t *testing.T) {
		err := svc.Logout(ctx, other.User.ID, first.RefreshSecret)
		require.ErrorIs(t, err, service.ErrRevoked)
	})

	t.Run("unknown secret", func(t *testing.T) {
		err := svc.Logout(ctx, first.User.ID, "no-such-secret")
		require.ErrorIs(t, err, service.ErrUnauthorized)
	})

	t.Run("revokes every session", func(t *testing.T) {
		require.NoError(t, svc.Logout(ctx, first.User.ID, first.RefreshSecret))

		active, err := st.RefreshTokens().ListActiveRefreshTokens(ctx, first.User.ID, clock.Now())
		require.NoError(t, err)
		require.Empty(t, active)

		// The sibling session's secret is now revoked, not reused.
		_, err = svc.Refresh(ctx, second.RefreshSecret)
		require.ErrorIs(t, err, service.ErrRevoked)
	})

	t.Run("already revoked secret", func(t *testing.T) {
		err := svc.Logout(ctx, first.User.ID, first.RefreshSecret)
		require.ErrorIs(t, err, service.ErrRevoked)
	})

	t.Run("other user unaffected", func(t *testing.T) {
		active, err := st.RefreshTokens().ListActiveRefreshTokens(ctx, other.User.ID, clock.Now())
		require.NoError(t, err)
		require.Len(t, active, 1)
	})
}

func TestConcurrentRefreshSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, st, clock := newTestService(t)

	sess, err := svc.Register(ctx, "ivan", "a long password", "AUD")
	require.NoError(t, err)
	clock.Advance(time.Second)

	const attempts = 4

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		wins     int
		reuses   int
		revokes  int
		unexpect []error
	)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Refresh(ctx, sess.RefreshSecret)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case err == service.ErrReuseDetected:
				reuses++
			case err == service.ErrRevoked:
				revokes++
			default:
				unexpect = append(unexpect, err)
			}
		}()
	}
	wg.Wait()

	require.Empty(t, unexpect)
	require.Equal(t, 1, wins)
	require.Equal(t, attempts-1, reuses+revokes)
	require.GreaterOrEqual(t, reuses, 1)

	// Exactly the winner's successor is active afterwards.
	active, err := st.RefreshTokens().ListActiveRefreshTokens(ctx, sess.User.ID, clock.Now())
	require.NoError(t, err)
	require.Len(t, active, 1)
}

// racingStore lets a test interpose on the rotation transaction: beforeTx
// runs just before the first WithTx, standing in for another process
// instance that shares the database but not the per-user lock.
type racingStore struct {
	store.Store

	mu       sync.Mutex
	txCalls  int
	beforeTx func()
}

func (s *racingStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	s.mu.Lock()
	s.txCalls++
	first := s.txCalls == 1
	s.mu.Unlock()

	if first && s.beforeTx != nil {
		s.beforeTx()
	}
	return s.Store.WithTx(ctx, fn)
}

func (s *racingStore) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCalls
}

func newRacingService(t *testing.T) (*service.SessionService, *racingStore, *testClock) {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	racing := &racingStore{Store: st}
	clock := newTestClock()

	codec, err := jwtx.NewCodec("test-signing-secret", 15*time.Minute, jwtx.WithClock(clock.Now))
	require.NoError(t, err)

	svc, err := service.NewSessionService(racing, codec, metrics.New(), 24*time.Hour, service.WithClock(clock.Now))
	require.NoError(t, err)

	return svc, racing, clock
}

// The conditional revoke can lose to another instance between the locked
// re-read and the transaction. The service then re-fetches the row and
// classifies it from fresh state, in a single pass.
func TestRefreshLostRaceReclassifies(t *testing.T) {
	ctx := context.Background()

	t.Run("rotated elsewhere is reuse", func(t *testing.T) {
		svc, racing, clock := newRacingService(t)

		sess, err := svc.Register(ctx, "judy", "a long password", "AUD")
		require.NoError(t, err)
		clock.Advance(time.Minute)

		hash := cryptox.FingerprintSecret(sess.RefreshSecret)
		racing.beforeTx = func() {
			// Another instance rotates the same secret: revoke the row
			// and mint a later-created successor.
			now := clock.Now().UTC()
			tok, err := racing.Store.RefreshTokens().GetRefreshTokenByHash(ctx, hash)
			require.NoError(t, err)

			ok, err := racing.Store.RefreshTokens().RevokeRefreshTokenIfActive(ctx, tok.ID, now, now)
			require.NoError(t, err)
			require.True(t, ok)

			require.NoError(t, racing.Store.RefreshTokens().CreateRefreshToken(ctx, domain.RefreshToken{
				ID:        idx.New().String(),
				UserID:    tok.UserID,
				TokenHash: "elsewhere-successor",
				ExpiresAt: now.Add(24 * time.Hour),
				CreatedAt: now,
			}))
		}

		_, err = svc.Refresh(ctx, sess.RefreshSecret)
		require.ErrorIs(t, err, service.ErrReuseDetected)

		// One transaction attempt: the lost race is classified, never
		// retried.
		require.Equal(t, 1, racing.calls())
	})

	t.Run("revoked elsewhere is plain revoked", func(t *testing.T) {
		svc, racing, clock := newRacingService(t)

		sess, err := svc.Register(ctx, "kim", "a long password", "AUD")
		require.NoError(t, err)
		clock.Advance(time.Minute)

		racing.beforeTx = func() {
			// Another instance handles a logout: every active row is
			// revoked, no successor appears.
			require.NoError(t, racing.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, sess.User.ID, clock.Now().UTC()))
		}

		_, err = svc.Refresh(ctx, sess.RefreshSecret)
		require.ErrorIs(t, err, service.ErrRevoked)
		require.Equal(t, 1, racing.calls())
	})
}
