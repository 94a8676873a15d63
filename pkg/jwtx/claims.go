package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed claim set carried by both access and refresh tokens.
// The two token kinds are structurally identical; they differ only in TTL and
// signing configuration. Claims are immutable once minted: a refresh replaces
// the whole token rather than editing fields.
type Claims struct {
	Issuer      string // iss: the application's own domain
	Audience    string // aud: the requesting origin
	IssuedAt    int64  // iat: unix seconds
	ExpiresAt   int64  // exp: unix seconds, always iat + TTL
	Subject     string // sub: user id
	Role        string // role: user role
	Fingerprint string // fingerprint: keyed hash binding to the session context
}

// NewClaims mints a claim set at the given instant. ExpiresAt is derived as
// IssuedAt plus the whole-second TTL; validators check this exact relation,
// so the two must never be computed independently.
func NewClaims(issuer, audience, subject, role, fingerprint string, now time.Time, ttl time.Duration) Claims {
	iat := now.Unix()
	return Claims{
		Issuer:      issuer,
		Audience:    audience,
		IssuedAt:    iat,
		ExpiresAt:   iat + int64(ttl.Seconds()),
		Subject:     subject,
		Role:        role,
		Fingerprint: fingerprint,
	}
}

// HasExactTTL reports whether exp equals iat plus the whole-second TTL. A
// token where the relation does not hold is treated as forged even when it is
// unexpired by wall clock.
func (c Claims) HasExactTTL(ttl time.Duration) bool {
	return c.ExpiresAt == c.IssuedAt+int64(ttl.Seconds())
}

// ExpiredAt reports whether the token is past its expiry at the given instant.
func (c Claims) ExpiredAt(now time.Time) bool {
	return now.Unix() > c.ExpiresAt
}

func (c Claims) mapClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"iss":         c.Issuer,
		"aud":         c.Audience,
		"iat":         c.IssuedAt,
		"exp":         c.ExpiresAt,
		"sub":         c.Subject,
		"role":        c.Role,
		"fingerprint": c.Fingerprint,
	}
}

// requiredClaims lists every claim that must be present for a token to
// decode at all. Absence of any is a hard decode failure.
var requiredClaims = []string{"iss", "aud", "iat", "exp", "sub", "role", "fingerprint"}
