package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
	"github.com/quayside/gatehouse/internal/gatehouse/store"
	"github.com/quayside/gatehouse/pkg/cryptox"
	"github.com/quayside/gatehouse/pkg/jwtx"
	"github.com/quayside/gatehouse/pkg/slogx"
)

// Validation-predicate failures. Opportunistic access-token checks collapse
// any of these into the anonymous user; refresh validation surfaces them.
var (
	ErrIssuerMismatch      = errors.New("token issuer mismatch")
	ErrAudienceMismatch    = errors.New("token audience does not match request origin")
	ErrOriginNotAllowed    = errors.New("token audience is not an allowed origin")
	ErrIssuedInFuture      = errors.New("token issued in the future")
	ErrForgedExpiry        = errors.New("token expiry does not match issuance formula")
	ErrTokenExpired        = errors.New("token expired")
	ErrUnknownUser         = errors.New("token subject is not a known user")
	ErrSubjectMismatch     = errors.New("token subject mismatch")
	ErrRoleMismatch        = errors.New("token role mismatch")
	ErrFingerprintMismatch = errors.New("token fingerprint does not match session context")
)

// Refresh failures surfaced to the request boundary.
var (
	ErrRefreshUnset   = errors.New("refresh token unset")
	ErrRefreshExpired = errors.New("refresh token expired")
	ErrRefreshInvalid = errors.New("refresh token invalid")
)

// Authenticator validates presented tokens against the current request
// context and resolves them to a user identity. It orchestrates predicate
// evaluation only; identity storage is the Store's concern.
type Authenticator struct {
	AccessCodec  *jwtx.Codec
	RefreshCodec *jwtx.Codec
	Binder       *cryptox.Binder
	Secrets      *cryptox.SecretCipher
	Store        store.Store

	Issuer         string
	AllowedOrigins []string
	AccessTTL      time.Duration
	RefreshTTL     time.Duration

	Now func() time.Time
}

func (a *Authenticator) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

// AuthenticateAccess resolves the request's presented access token to a
// user, returning the decoded claims alongside. Every failure mode degrades
// to the anonymous user (with zero claims); access tokens encountered
// opportunistically are never a hard error.
func (a *Authenticator) AuthenticateAccess(ctx context.Context, req *Request) (*domain.User, jwtx.Claims) {
	log := slogx.FromContext(ctx)

	if req.AccessToken == "" {
		return &domain.User{}, jwtx.Claims{}
	}

	claims, err := a.AccessCodec.Decode(req.AccessToken)
	if err != nil {
		log.Debug("access token rejected at decode", "err", err)
		return &domain.User{}, jwtx.Claims{}
	}

	user, err := a.authenticates(ctx, claims, req, a.AccessTTL)
	if err != nil {
		log.Debug("access token failed validation", "err", err)
		return &domain.User{}, jwtx.Claims{}
	}
	return user, claims
}

// ValidateRefresh fully validates a presented refresh token against the
// request context. Unlike access validation this is a hard path: failures
// are returned, distinguishing mere expiry from everything else.
func (a *Authenticator) ValidateRefresh(ctx context.Context, raw string, req *Request) (*domain.User, error) {
	if raw == "" {
		return nil, ErrRefreshUnset
	}

	claims, err := a.RefreshCodec.Decode(raw)
	switch {
	case errors.Is(err, jwtx.ErrExpired):
		return nil, ErrRefreshExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrRefreshInvalid, err)
	}

	user, err := a.authenticates(ctx, claims, req, a.RefreshTTL)
	switch {
	case errors.Is(err, ErrTokenExpired):
		return nil, ErrRefreshExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %w", ErrRefreshInvalid, err)
	}
	return user, nil
}

// authenticates evaluates the full predicate conjunction for one claim set.
// All must hold; the first failure wins and names the reason.
func (a *Authenticator) authenticates(ctx context.Context, claims jwtx.Claims, req *Request, ttl time.Duration) (*domain.User, error) {
	now := a.now()

	if claims.Issuer != a.Issuer {
		return nil, ErrIssuerMismatch
	}
	if claims.Audience != req.Origin {
		return nil, ErrAudienceMismatch
	}
	if !slices.Contains(a.AllowedOrigins, claims.Audience) {
		return nil, ErrOriginNotAllowed
	}
	if claims.IssuedAt > now.Unix() {
		return nil, ErrIssuedInFuture
	}

	// exp must equal iat + TTL exactly. A token that is unexpired by wall
	// clock but fails the formula was not minted by us.
	if !claims.HasExactTTL(ttl) {
		return nil, ErrForgedExpiry
	}
	if claims.ExpiredAt(now) {
		return nil, ErrTokenExpired
	}

	user, err := a.resolveUser(ctx, claims)
	if err != nil {
		return nil, err
	}

	if claims.Subject != user.ID {
		return nil, ErrSubjectMismatch
	}
	if claims.Role != user.Role {
		return nil, ErrRoleMismatch
	}
	if !a.Binder.Matches(claims.Fingerprint, req.ContextCookie, user.AuthorizationKey) {
		return nil, ErrFingerprintMismatch
	}

	return user, nil
}

// resolveUser looks the claim subject up in the identity store and unseals
// its authorization key for fingerprint verification.
func (a *Authenticator) resolveUser(ctx context.Context, claims jwtx.Claims) (*domain.User, error) {
	acc, err := a.Store.Accounts().GetAccount(ctx, claims.Subject, claims.Role)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	key, err := a.Secrets.Decrypt(acc.AuthorizationKey)
	if err != nil {
		return nil, fmt.Errorf("unseal authorization key: %w", err)
	}

	return &domain.User{ID: acc.ID, Role: acc.Role, AuthorizationKey: key}, nil
}
