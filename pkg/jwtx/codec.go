package jwtx

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMalformed reports a token that is not a well-formed JWS.
	ErrMalformed = errors.New("jwtx: malformed token")
	// ErrInvalidSignature reports a tampered or wrongly-signed token.
	ErrInvalidSignature = errors.New("jwtx: invalid signature")
	// ErrMissingClaim reports a well-signed token lacking a required claim.
	ErrMissingClaim = errors.New("jwtx: missing required claim")

	// ErrExpired reports a well-formed, correctly-signed token past its
	// expiry. Decode still returns the claims alongside this error so
	// callers can branch into refresh handling.
	ErrExpired = errors.New("jwtx: token expired")
)

// Codec encodes and decodes one kind of token with a fixed signing method
// and key pair. Access and refresh tokens each get their own Codec since the
// deployment may sign them with different algorithms.
type Codec struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any

	// Now is the clock used to classify expired tokens. Defaults to
	// time.Now; override in tests.
	Now func() time.Time
}

// NewHMACCodec returns a Codec for an HMAC-family algorithm
// (HS256, HS384, HS512) signing and verifying with the shared secret.
func NewHMACCodec(algorithm string, secret []byte) (*Codec, error) {
	switch algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return nil, fmt.Errorf("jwtx: unsupported HMAC algorithm %q", algorithm)
	}
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwtx: empty HMAC secret")
	}
	return &Codec{
		method:    jwt.GetSigningMethod(algorithm),
		signKey:   secret,
		verifyKey: secret,
	}, nil
}

// NewRSACodec returns a Codec for an RSA-family algorithm
// (RS256, RS384, RS512) signing with the private key.
func NewRSACodec(algorithm string, key *rsa.PrivateKey) (*Codec, error) {
	switch algorithm {
	case "RS256", "RS384", "RS512":
	default:
		return nil, fmt.Errorf("jwtx: unsupported RSA algorithm %q", algorithm)
	}
	if key == nil {
		return nil, fmt.Errorf("jwtx: nil RSA key")
	}
	return &Codec{
		method:    jwt.GetSigningMethod(algorithm),
		signKey:   key,
		verifyKey: &key.PublicKey,
	}, nil
}

// Encode produces the compact signed form of the claims.
func (c *Codec) Encode(claims Claims) (string, error) {
	signed, err := jwt.NewWithClaims(c.method, claims.mapClaims()).SignedString(c.signKey)
	if err != nil {
		return "", fmt.Errorf("jwtx: sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies the signature and extracts the claims.
//
// Outcomes:
//   - (claims, nil): valid, unexpired token.
//   - (claims, ErrExpired): signature and claims are fine, the token is
//     merely past exp. Callers use this to drive refresh flows.
//   - (zero, ErrMalformed | ErrInvalidSignature | ErrMissingClaim): hard
//     rejection; no claims are recoverable.
func (c *Codec) Decode(raw string) (Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.method.Alg()}),
		// Expiry is classified below so expired tokens still yield claims.
		jwt.WithoutClaimsValidation(),
	)

	mapped := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, mapped, func(*jwt.Token) (any, error) {
		return c.verifyKey, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSignature
		default:
			return Claims{}, ErrMalformed
		}
	}

	claims, err := claimsFromMap(mapped)
	if err != nil {
		return Claims{}, err
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if claims.ExpiredAt(now()) {
		return claims, ErrExpired
	}
	return claims, nil
}

func claimsFromMap(m jwt.MapClaims) (Claims, error) {
	for _, name := range requiredClaims {
		if _, ok := m[name]; !ok {
			return Claims{}, fmt.Errorf("%w: %s", ErrMissingClaim, name)
		}
	}

	iss, ok := m["iss"].(string)
	if !ok {
		return Claims{}, fmt.Errorf("%w: iss", ErrMissingClaim)
	}
	aud, ok := m["aud"].(string)
	if !ok {
		return Claims{}, fmt.Errorf("%w: aud", ErrMissingClaim)
	}
	sub, ok := m["sub"].(string)
	if !ok {
		return Claims{}, fmt.Errorf("%w: sub", ErrMissingClaim)
	}
	role, ok := m["role"].(string)
	if !ok {
		return Claims{}, fmt.Errorf("%w: role", ErrMissingClaim)
	}
	fingerprint, ok := m["fingerprint"].(string)
	if !ok {
		return Claims{}, fmt.Errorf("%w: fingerprint", ErrMissingClaim)
	}
	iat, ok := numericClaim(m["iat"])
	if !ok {
		return Claims{}, fmt.Errorf("%w: iat", ErrMissingClaim)
	}
	exp, ok := numericClaim(m["exp"])
	if !ok {
		return Claims{}, fmt.Errorf("%w: exp", ErrMissingClaim)
	}

	return Claims{
		Issuer:      iss,
		Audience:    aud,
		IssuedAt:    iat,
		ExpiresAt:   exp,
		Subject:     sub,
		Role:        role,
		Fingerprint: fingerprint,
	}, nil
}

// numericClaim normalises the types encoding/json may hand back for a
// numeric claim.
func numericClaim(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
