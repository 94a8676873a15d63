package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
	"github.com/quayside/gatehouse/internal/gatehouse/service"
	"github.com/quayside/gatehouse/pkg/httpx"
	"github.com/quayside/gatehouse/pkg/idx"
	"github.com/quayside/gatehouse/pkg/slogx"
)

// ReauthorizationHeader carries the refresh token as a bearer credential.
const ReauthorizationHeader = "Reauthorization"

// Response headers carrying a freshly issued token pair.
const (
	AccessTokenHeader  = "X-Access-Token"
	RefreshTokenHeader = "X-Refresh-Token"
)

// RateLimitMiddleware runs every request past the gatekeeper before
// anything else touches it.
func RateLimitMiddleware(gate service.Gatekeeper, window time.Duration) httpx.Middleware {
	retryAfter := strconv.Itoa(max(int(window.Seconds()), 1))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			ip := httpx.ClientIP(r)
			if err := gate.Admit(ctx, ip); err != nil {
				if errors.Is(err, service.ErrRateLimited) {
					w.Header().Set("Retry-After", retryAfter)
					log.Warn("rate limit exceeded", "client_ip", ip)
					httpx.WriteError(w, http.StatusTooManyRequests,
						"rate_limit_exceeded", "Too many requests. Please try again later.")
					return
				}

				log.Error("gatekeeper failure", "err", err)
				httpx.WriteError(w, http.StatusInternalServerError,
					"internal_error", "Unable to evaluate request budget.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// AuthConfig carries the knobs the authentication middleware needs to emit
// fresh token headers.
type AuthConfig struct {
	RefreshTTL    time.Duration
	SecureCookies bool
}

// AuthMiddleware associates a user (and session, when one can be
// established) with the request.
//
// Three paths, in priority order:
//  1. Reauthorization header present: explicit refresh. Failures are hard,
//     typed 401 responses; success re-issues the pair and emits fresh
//     headers immediately.
//  2. Authorization header present: opportunistic access validation. Any
//     failure degrades to the anonymous user.
//  3. Neither: anonymous.
//
// The association registry lives for exactly this request and is torn down
// on the way out.
func AuthMiddleware(auth *service.Authenticator, sessions *service.Sessions, cfg AuthConfig) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			req := &service.Request{
				ID:            idx.New(),
				Origin:        r.Header.Get("Origin"),
				ContextCookie: httpx.ContextCookieValue(r),
				AccessToken:   httpx.BearerToken(r, "Authorization"),
				RefreshToken:  httpx.BearerToken(r, ReauthorizationHeader),
				ClientIP:      httpx.ClientIP(r),
				SeenAt:        time.Now(),
			}

			registry := service.NewRegistry()
			defer registry.Teardown()

			var sess *service.Session

			if req.RefreshToken != "" {
				// The presented access token is carried into the session
				// as-is; refresh validation works from the refresh token.
				sess = sessions.Resume(req, service.Token{Raw: req.AccessToken})
				refreshed, err := sessions.RefreshSession(ctx, sess, req)
				if err != nil {
					writeRefreshError(w, err)
					return
				}

				registry.AssociateUser(req, refreshed)
				registry.AssociateSession(refreshed, sess)
				emitSession(w, sess, cfg)
				log.Info("session refreshed", "user_id", refreshed.ID, "session_id", sess.ID)

				ctx = withAuth(ctx, req, registry, refreshed, sess)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			user, claims := auth.AuthenticateAccess(ctx, req)
			registry.AssociateUser(req, user)

			if !user.Anonymous() {
				sess = sessions.Resume(req, service.Token{Raw: req.AccessToken, Claims: claims})
				registry.AssociateSession(user, sess)
			}

			ctx = withAuth(ctx, req, registry, user, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func withAuth(ctx context.Context, req *service.Request, registry *service.Registry, user *domain.User, sess *service.Session) context.Context {
	ctx = context.WithValue(ctx, ctxKeyRequest, req)
	ctx = context.WithValue(ctx, ctxKeyRegistry, registry)
	ctx = context.WithValue(ctx, ctxKeyUser, user)
	if sess != nil {
		ctx = context.WithValue(ctx, ctxKeySession, sess)
	}
	return ctx
}

// emitSession writes the fresh token pair and context cookie to the
// response. Only sessions established during this request get this.
func emitSession(w http.ResponseWriter, sess *service.Session, cfg AuthConfig) {
	w.Header().Set(AccessTokenHeader, sess.Access.Raw)
	if sess.Refresh != nil {
		w.Header().Set(RefreshTokenHeader, sess.Refresh.Raw)
	}
	httpx.SetContextCookie(w, sess.Cookie, cfg.RefreshTTL, cfg.SecureCookies)
}

func writeRefreshError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrRefreshUnset):
		httpx.WriteError(w, http.StatusUnauthorized, "refresh_token_unset",
			"No refresh token accompanies this request.")
	case errors.Is(err, service.ErrRefreshExpired):
		httpx.WriteError(w, http.StatusUnauthorized, "refresh_token_expired",
			"The refresh token has expired. Sign in again.")
	case errors.Is(err, service.ErrRefreshInvalid):
		httpx.WriteError(w, http.StatusUnauthorized, "refresh_token_invalid",
			"The refresh token failed validation.")
	default:
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to refresh the session.")
	}
}
