package cryptox

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"hash"
)

// Binder computes keyed fingerprints that tie a token to a per-session
// context value. The same binder must be used at issuance and validation so
// both sides agree on the hash algorithm.
type Binder struct {
	newHash func() hash.Hash
}

// NewBinder returns a Binder for the named HMAC hash algorithm.
// Supported: "sha256", "sha512".
func NewBinder(algorithm string) (*Binder, error) {
	switch algorithm {
	case "sha256":
		return &Binder{newHash: sha256.New}, nil
	case "sha512":
		return &Binder{newHash: sha512.New}, nil
	default:
		return nil, fmt.Errorf("cryptox: unsupported fingerprint algorithm %q", algorithm)
	}
}

// Fingerprint returns the HMAC of the session context value keyed by the
// user's authorization key, base64url encoded.
func (b *Binder) Fingerprint(contextValue string, key []byte) string {
	mac := hmac.New(b.newHash, key)
	mac.Write([]byte(contextValue))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

// Matches recomputes the fingerprint and compares it against the presented
// value over the full length. Prefix matches are not accepted.
func (b *Binder) Matches(presented, contextValue string, key []byte) bool {
	return hmac.Equal([]byte(presented), []byte(b.Fingerprint(contextValue, key)))
}
