package service

import (
	"fmt"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
	"github.com/quayside/gatehouse/pkg/cryptox"
	"github.com/quayside/gatehouse/pkg/jwtx"
)

// Token pairs a compact signed token with its decoded claims so callers
// never re-parse what they just minted.
type Token struct {
	Raw    string
	Claims jwtx.Claims
}

// TokenService mints access and refresh tokens. The two kinds may be signed
// with different algorithms, hence separate codecs.
type TokenService struct {
	AccessCodec  *jwtx.Codec
	RefreshCodec *jwtx.Codec
	Binder       *cryptox.Binder

	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Now is the clock used for iat/exp. Defaults to time.Now.
	Now func() time.Time
}

func (s *TokenService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// IssuePair mints a matching access and refresh token for the user, both
// bound to the given session context value through the fingerprint.
func (s *TokenService) IssuePair(user *domain.User, audience, contextValue string) (access, refresh Token, err error) {
	now := s.now()
	fingerprint := s.Binder.Fingerprint(contextValue, user.AuthorizationKey)

	access, err = s.issue(s.AccessCodec, user, audience, fingerprint, now, s.AccessTTL)
	if err != nil {
		return Token{}, Token{}, fmt.Errorf("issue access token: %w", err)
	}

	refresh, err = s.issue(s.RefreshCodec, user, audience, fingerprint, now, s.RefreshTTL)
	if err != nil {
		return Token{}, Token{}, fmt.Errorf("issue refresh token: %w", err)
	}

	return access, refresh, nil
}

func (s *TokenService) issue(codec *jwtx.Codec, user *domain.User, audience, fingerprint string, now time.Time, ttl time.Duration) (Token, error) {
	claims := jwtx.NewClaims(s.Issuer, audience, user.ID, user.Role, fingerprint, now, ttl)
	raw, err := codec.Encode(claims)
	if err != nil {
		return Token{}, err
	}
	return Token{Raw: raw, Claims: claims}, nil
}
