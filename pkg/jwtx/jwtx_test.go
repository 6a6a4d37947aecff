package jwtx

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-signing-secret-0123456789"

func newTestCodec(t *testing.T, now time.Time) *Codec {
	t.Helper()
	codec, err := NewCodec(testSecret, 15*time.Minute, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return codec
}

func TestNewCodecRejectsBadConfig(t *testing.T) {
	t.Parallel()

	_, err := NewCodec("", time.Minute)
	require.Error(t, err)

	_, err = NewCodec("   ", time.Minute)
	require.Error(t, err)

	_, err = NewCodec("secret", 0)
	require.Error(t, err)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, now)

	token, err := codec.Issue("user-123")
	require.NoError(t, err)
	require.Len(t, strings.Split(token, "."), 3)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	require.Equal(t, "user-123", claims.UserID)
	require.Equal(t, now, claims.IssuedAt)
	require.Equal(t, now.Add(15*time.Minute), claims.ExpiresAt)
}

func TestVerifyRejectsExpired(t *testing.T) {
	t.Parallel()

	issued := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	codec := newTestCodec(t, issued)
	token, err := codec.Issue("user-123")
	require.NoError(t, err)

	late, err := NewCodec(testSecret, 15*time.Minute,
		WithClock(func() time.Time { return issued.Add(16 * time.Minute) }))
	require.NoError(t, err)

	_, err = late.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsAnySingleBitMutation(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	token, err := codec.Issue("user-123")
	require.NoError(t, err)

	for i := range len(token) {
		for bit := range 8 {
			mutated := []byte(token)
			mutated[i] ^= 1 << bit
			if string(mutated) == token {
				continue
			}
			_, err := codec.Verify(string(mutated))
			require.ErrorIs(t, err, ErrInvalidToken, "mutation at byte %d bit %d accepted", i, bit)
		}
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, time.Now())
	other, err := NewCodec("a-completely-different-secret-value", 15*time.Minute)
	require.NoError(t, err)

	token, err := other.Issue("user-123")
	require.NoError(t, err)

	_, err = codec.Verify(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsLegacyTwoSegmentFormat(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, time.Now())
	token, err := codec.Issue("user-123")
	require.NoError(t, err)

	// The retired format carried only payload.signature.
	parts := strings.Split(token, ".")
	legacy := parts[1] + "." + parts[2]

	_, err = codec.Verify(legacy)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = codec.Verify("")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = codec.Verify("a.b.c.d")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsForeignAlgorithms(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, time.Now())
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   "user-123",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = codec.Verify(unsigned)
	require.ErrorIs(t, err, ErrInvalidToken)

	hs384, err := jwt.NewWithClaims(jwt.SigningMethodHS384, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = codec.Verify(hs384)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRequiresSubIatExp(t *testing.T) {
	t.Parallel()

	codec := newTestCodec(t, time.Now())
	now := time.Now().UTC()
	sign := func(claims jwt.MapClaims) string {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)
		return token
	}

	// Missing sub.
	_, err := codec.Verify(sign(jwt.MapClaims{
		"iat": now.Unix(),
		"exp": now.Add(time.Hour).Unix(),
	}))
	require.ErrorIs(t, err, ErrInvalidToken)

	// Missing iat.
	_, err = codec.Verify(sign(jwt.MapClaims{
		"sub": "user-123",
		"exp": now.Add(time.Hour).Unix(),
	}))
	require.ErrorIs(t, err, ErrInvalidToken)

	// Missing exp.
	_, err = codec.Verify(sign(jwt.MapClaims{
		"sub": "user-123",
		"iat": now.Unix(),
	}))
	require.ErrorIs(t, err, ErrInvalidToken)

	// Wrong claim types.
	_, err = codec.Verify(sign(jwt.MapClaims{
		"sub": "user-123",
		"iat": "not-a-number",
		"exp": now.Add(time.Hour).Unix(),
	}))
	require.ErrorIs(t, err, ErrInvalidToken)
}
