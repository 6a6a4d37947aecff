// Package jwtx issues and verifies the short-lived HS256 access tokens.
//
// Tokens are stateless: the only state is the claim set {sub, iat, exp}
// carried inside the token itself, verified by recomputing the HMAC-SHA256
// signature with the server secret. Verification failures collapse into one
// uniform error so callers cannot distinguish a forged token from an expired
// one.
package jwtx

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is the single failure surfaced by Verify. Signature
// mismatch, malformed segments, wrong algorithm, missing claims and expiry
// all map here so the API never acts as a validity oracle.
var ErrInvalidToken = errors.New("jwtx: invalid or expired token")

// Claims is the verified claim set of an access token.
type Claims struct {
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies access tokens with a single HMAC-SHA256 server
// secret. It performs no I/O and is safe for concurrent use.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock overrides the time source. For tests.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) { c.now = now }
}

// NewCodec builds a Codec. The secret must be non-empty and ttl positive;
// refusing a blank secret here backs up the config-level check.
func NewCodec(secret string, ttl time.Duration, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwtx: empty signing secret")
	}
	if ttl <= 0 {
		return nil, errors.New("jwtx: non-positive access token ttl")
	}
	c := &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured access-token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue mints a signed token for userID with iat=now and exp=now+ttl.
func (c *Codec) Issue(userID string) (string, error) {
	now := c.now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// Verify checks the signature and claims of token and returns the claim set.
// Every rejection is ErrInvalidToken: the header must declare exactly
// HS256/JWT, the signature must match, and sub/iat/exp must be present and
// well-typed with exp in the future.
func (c *Codec) Verify(token string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(func() time.Time { return c.now().UTC() }),
	)

	var claims jwt.RegisteredClaims
	parsed, err := parser.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if typ, _ := t.Header["typ"].(string); typ != "JWT" {
			return nil, ErrInvalidToken
		}
		return c.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Claims{}, ErrInvalidToken
	}

	// The parser treats iat as optional; the session contract does not.
	if claims.Subject == "" || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		UserID:    claims.Subject,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
