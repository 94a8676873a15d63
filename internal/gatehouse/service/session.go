package service

import (
	"context"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
	"github.com/quayside/gatehouse/pkg/cryptox"
	"github.com/quayside/gatehouse/pkg/idx"
)

// Session holds the token pair and context cookie for one authenticated
// interaction. It is mutated only through Sessions.Refresh, which replaces
// all three fields together; callers must serialize access to one session.
type Session struct {
	ID idx.ID

	Access  Token
	Refresh *Token

	// Cookie is the opaque per-session context value the client stores in
	// the user_context cookie.
	Cookie string
}

// EstablishedDuring reports whether the session was newly established while
// handling the given request. The transport layer uses this to decide
// whether fresh token headers go out with the response.
func (s *Session) EstablishedDuring(req *Request) bool {
	return s.Access.Claims.IssuedAt >= req.SeenAt.Unix()
}

// Sessions creates and refreshes sessions.
type Sessions struct {
	Tokens *TokenService
	Auth   *Authenticator

	Now func() time.Time
}

func (s *Sessions) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Start establishes a brand-new session for an already-authenticated user
// (fresh login). A new random context value is generated and both tokens
// are bound to it.
func (s *Sessions) Start(user *domain.User, origin string) (*Session, error) {
	contextValue, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.Tokens.IssuePair(user, origin, contextValue)
	if err != nil {
		return nil, err
	}

	return &Session{
		ID:      idx.NewAt(s.now()),
		Access:  access,
		Refresh: &refresh,
		Cookie:  contextValue,
	}, nil
}

// Resume reconstructs a session from the tokens a request presented. Used
// when an access token authenticated the request: the session mirrors what
// the client already holds, so EstablishedDuring reports false and no fresh
// headers are emitted.
func (s *Sessions) Resume(req *Request, access Token) *Session {
	sess := &Session{
		ID:     idx.NewAt(s.now()),
		Access: access,
		Cookie: req.ContextCookie,
	}
	if req.RefreshToken != "" {
		// Claims deliberately left undecoded; the refresh path validates
		// from the raw form when it is actually exercised.
		sess.Refresh = &Token{Raw: req.RefreshToken}
	}
	return sess
}

// RefreshSession re-issues the session's token pair and returns the user
// the refresh token resolved to. This is the only mutation path for a
// session. Failure modes are distinct and hard: ErrRefreshUnset when no
// refresh token exists, ErrRefreshExpired when it is merely past expiry,
// ErrRefreshInvalid otherwise. On success all three session fields are
// replaced together.
func (s *Sessions) RefreshSession(ctx context.Context, sess *Session, req *Request) (*domain.User, error) {
	if sess.Refresh == nil || sess.Refresh.Raw == "" {
		return nil, ErrRefreshUnset
	}

	user, err := s.Auth.ValidateRefresh(ctx, sess.Refresh.Raw, req)
	if err != nil {
		return nil, err
	}

	contextValue, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return nil, err
	}

	access, refresh, err := s.Tokens.IssuePair(user, req.Origin, contextValue)
	if err != nil {
		return nil, err
	}

	sess.Access = access
	sess.Refresh = &refresh
	sess.Cookie = contextValue
	return user, nil
}
