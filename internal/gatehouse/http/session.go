package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"github.com/quayside/gatehouse/internal/gatehouse/mail"
	"github.com/quayside/gatehouse/internal/gatehouse/queue"
	"github.com/quayside/gatehouse/internal/gatehouse/service"
	"github.com/quayside/gatehouse/pkg/httpx"
	"github.com/quayside/gatehouse/pkg/slogx"
)

// SessionHandler serves login, explicit refresh confirmation, and logout.
type SessionHandler struct {
	Accounts *service.AccountService
	Sessions *service.Sessions
	Mail     queue.Queue

	AllowedOrigins []string
	Auth           AuthConfig
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	TokenType string `json:"token_type"`
	ExpiresIn int64  `json:"expires_in"`
}

// HandleLogin establishes a fresh session from an email/password pair. The
// new token pair travels in the X-Access-Token / X-Refresh-Token response
// headers; the session context value in the user_context cookie.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var body loginRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Email == "" || body.Password == "" {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request",
			"A JSON body with email and password is required.")
		return
	}

	req := RequestFromContext(ctx)
	if !slices.Contains(h.AllowedOrigins, req.Origin) {
		httpx.WriteError(w, http.StatusForbidden, "origin_not_allowed",
			"Requests from this origin cannot establish sessions.")
		return
	}

	user, err := h.Accounts.VerifyCredentials(ctx, body.Email, body.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.WriteError(w, http.StatusUnauthorized, "invalid_credentials",
				"Email or password is incorrect.")
			return
		}
		log.Error("credential verification failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to verify credentials.")
		return
	}

	sess, err := h.Sessions.Start(user, req.Origin)
	if err != nil {
		log.Error("session start failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error",
			"Unable to establish a session.")
		return
	}

	// The pipeline associated the anonymous user on the way in; hand the
	// request over to the authenticated one.
	registry := registryFromContext(ctx)
	registry.DissociateUser(req, UserFromContext(ctx))
	registry.AssociateUser(req, user)
	registry.AssociateSession(user, sess)

	emitSession(w, sess, h.Auth)

	if h.Mail != nil {
		msg := mail.Message{
			To:      body.Email,
			Subject: "New sign-in to your account",
			Body:    fmt.Sprintf("Your account was signed in from %s.", req.ClientIP),
		}
		if err := h.Mail.Enqueue(ctx, msg); err != nil {
			// Best effort; the session is already established.
			log.Warn("sign-in notification enqueue failed", "err", err)
		}
	}

	log.Info("session established", "user_id", user.ID, "session_id", sess.ID)
	httpx.WriteJSON(w, http.StatusCreated, sessionResponse{
		TokenType: "Bearer",
		ExpiresIn: sess.Access.Claims.ExpiresAt - sess.Access.Claims.IssuedAt,
	})
}

// HandleRefresh confirms an explicit refresh. The actual re-issuance
// happened in the authentication middleware when the Reauthorization header
// was validated; this handler only reports the result.
func (h *SessionHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	req := RequestFromContext(r.Context())

	if sess == nil || !sess.EstablishedDuring(req) {
		writeRefreshError(w, service.ErrRefreshUnset)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, sessionResponse{
		TokenType: "Bearer",
		ExpiresIn: sess.Access.Claims.ExpiresAt - sess.Access.Claims.IssuedAt,
	})
}

// HandleLogout tears the session down and expires the context cookie. The
// tokens themselves remain valid until expiry (they are stateless); what
// dies here is the context binding that fingerprint checks require.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := UserFromContext(ctx)

	if sess := SessionFromContext(ctx); sess != nil {
		registryFromContext(ctx).DissociateSession(user, sess)
	}

	httpx.ClearContextCookie(w, h.Auth.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}
