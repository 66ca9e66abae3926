// Package auth signs and verifies the bearer access tokens: three-segment
// HS256 JWTs carrying the user id, email and the bound session id (jti).
package auth

import (
	"strings"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/common"
	"github.com/dmitrijs2005/zkvault/internal/timex"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the access token payload. RegisteredClaims.ID is the jti, i.e.
// the session id; tokens minted before sessions existed have none.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// SessionID returns the jti claim.
func (c *Claims) SessionID() string {
	return c.ID
}

// TokenCodec holds the signing secret and the clock used for iat/exp.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
}

type Option func(*TokenCodec)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCodec) { c.now = now }
}

func NewTokenCodec(secret []byte, opts ...Option) *TokenCodec {
	c := &TokenCodec{secret: secret, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Sign stamps iat=now and exp=now+ttl, where ttl uses the compact grammar
// ("15m", "7d"). A malformed ttl is an error.
func (c *TokenCodec) Sign(claims Claims, ttl string) (string, error) {
	d, err := timex.ParseCompact(ttl)
	if err != nil {
		return "", err
	}
	return c.SignFor(claims, d)
}

// SignFor is Sign with an already parsed lifetime.
func (c *TokenCodec) SignFor(claims Claims, ttl time.Duration) (string, error) {
	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString(c.secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// Verify checks structure, algorithm, signature and expiry. Every failure is
// reported as common.ErrInvalidToken.
func (c *TokenCodec) Verify(tokenString string) (*Claims, error) {
	if strings.Count(tokenString, ".") != 2 {
		return nil, common.ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, common.ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
