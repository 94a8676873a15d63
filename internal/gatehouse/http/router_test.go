package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/quayside/gatehouse/internal/gatehouse/cache"
	"github.com/quayside/gatehouse/internal/gatehouse/queue"
	"github.com/quayside/gatehouse/internal/gatehouse/service"
	"github.com/quayside/gatehouse/internal/gatehouse/store/drivers/sqlite"
	"github.com/quayside/gatehouse/pkg/cryptox"
	"github.com/quayside/gatehouse/pkg/httpx"
	"github.com/quayside/gatehouse/pkg/jwtx"
)

const testOrigin = "https://app.example.com"

type testRig struct {
	router *Router
	mail   *queue.Redis
}

// newTestRig stands up the full router over an in-memory store and
// miniredis, with real clocks. rateLimit bounds requests per minute.
func newTestRig(t *testing.T, rateLimit int) *testRig {
	t.Helper()

	st, err := sqlite.NewStore(fmt.Sprintf("file:%s?_busy_timeout=5000", filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ca := cache.NewRedis(client, "test")
	mailQueue := queue.NewRedis(client, "test:mail")

	accessCodec, err := jwtx.NewHMACCodec("HS256", []byte("test-access-secret"))
	require.NoError(t, err)
	refreshCodec, err := jwtx.NewHMACCodec("HS512", []byte("test-refresh-secret"))
	require.NoError(t, err)
	binder, err := cryptox.NewBinder("sha256")
	require.NoError(t, err)
	secrets, err := cryptox.NewSecretCipher([]byte("test-master-key"))
	require.NoError(t, err)

	tokens := &service.TokenService{
		AccessCodec:  accessCodec,
		RefreshCodec: refreshCodec,
		Binder:       binder,
		Issuer:       "api.example.com",
		AccessTTL:    15 * time.Minute,
		RefreshTTL:   24 * time.Hour,
	}
	auth := &service.Authenticator{
		AccessCodec:    accessCodec,
		RefreshCodec:   refreshCodec,
		Binder:         binder,
		Secrets:        secrets,
		Store:          st,
		Issuer:         "api.example.com",
		AllowedOrigins: []string{testOrigin},
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     24 * time.Hour,
	}

	router := NewRouter(st, ca, slog.New(slog.DiscardHandler))
	router.Gatekeeper = &service.SlidingWindowLimiter{Cache: ca, Limit: rateLimit, Window: time.Minute}
	router.Authenticator = auth
	router.Sessions = &service.Sessions{Tokens: tokens, Auth: auth}
	router.Accounts = &service.AccountService{Store: st, Secrets: secrets}
	router.Mail = mailQueue
	router.API = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		httpx.WriteJSON(w, http.StatusOK, map[string]any{
			"user_id":   user.ID,
			"role":      user.Role,
			"anonymous": user.Anonymous(),
		})
	})
	router.AllowedOrigins = []string{testOrigin}
	router.RateLimitWindow = time.Minute
	router.RefreshTTL = 24 * time.Hour
	router.ApplyRoutes()

	return &testRig{router: router, mail: mailQueue}
}

func (rig *testRig) do(req *http.Request) *httptest.ResponseRecorder {
	req.Header.Set("Origin", testOrigin)
	if req.Header.Get("X-Forwarded-For") == "" {
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
	}
	rec := httptest.NewRecorder()
	rig.router.ServeHTTP(rec, req)
	return rec
}

func jsonBody(t *testing.T, v any) *bytes.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func (rig *testRig) register(t *testing.T, email, password string) {
	t.Helper()
	rec := rig.do(httptest.NewRequest(http.MethodPost, "/v1/accounts",
		jsonBody(t, map[string]string{"email": email, "password": password})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// login returns the fresh credentials from the response.
func (rig *testRig) login(t *testing.T, email, password string) (access, refresh, cookie string) {
	t.Helper()
	rec := rig.do(httptest.NewRequest(http.MethodPost, "/v1/session",
		jsonBody(t, map[string]string{"email": email, "password": password})))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	access = rec.Header().Get(AccessTokenHeader)
	refresh = rec.Header().Get(RefreshTokenHeader)
	for _, c := range rec.Result().Cookies() {
		if c.Name == httpx.ContextCookieName {
			cookie = c.Value
		}
	}
	require.NotEmpty(t, access)
	require.NotEmpty(t, refresh)
	require.NotEmpty(t, cookie)
	return access, refresh, cookie
}

func TestRegisterEndpoint(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 100)

	rec := rig.do(httptest.NewRequest(http.MethodPost, "/v1/accounts",
		jsonBody(t, map[string]string{"email": "dana@example.com", "password": "correct horse battery"})))
	require.Equal(t, http.StatusCreated, rec.Code)

	var body struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.ID)
	require.Equal(t, "dana@example.com", body.Email)
	require.Equal(t, DefaultRole, body.Role)

	// A welcome email was queued.
	task, err := rig.mail.Dequeue(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, "dana@example.com", task.Message.To)

	t.Run("duplicate email conflicts", func(t *testing.T) {
		rec := rig.do(httptest.NewRequest(http.MethodPost, "/v1/accounts",
			jsonBody(t, map[string]string{"email": "dana@example.com", "password": "another password"})))
		require.Equal(t, http.StatusConflict, rec.Code)

		var e httpx.ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
		require.Equal(t, "email_taken", e.Error)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := rig.do(httptest.NewRequest(http.MethodPost, "/v1/accounts",
			jsonBody(t, map[string]string{"email": "x@example.com"})))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLoginEndpoint(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 100)
	rig.register(t, "dana@example.com", "correct horse battery")

	t.Run("issues a token pair and context cookie", func(t *testing.T) {
		rec := rig.do(httptest.NewRequest(http.MethodPost, "/v1/session",
			jsonBody(t, map[string]string{"email": "dana@example.com", "password": "correct horse battery"})))
		require.Equal(t, http.StatusCreated, rec.Code)

		require.NotEmpty(t, rec.Header().Get(AccessTokenHeader))
		require.NotEmpty(t, rec.Header().Get(RefreshTokenHeader))
		require.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		var found *http.Cookie
		for _, c := range rec.Result().Cookies() {
			if c.Name == httpx.ContextCookieName {
				found = c
			}
		}
		require.NotNil(t, found)
		require.NotEmpty(t, found.Value)
		require.True(t, found.HttpOnly)
		require.Equal(t, http.SameSiteStrictMode, found.SameSite)
		require.Equal(t, int((24 * time.Hour).Seconds()), found.MaxAge)

		var body struct {
			TokenType string `json:"token_type"`
			ExpiresIn int64  `json:"expires_in"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		require.Equal(t, "Bearer", body.TokenType)
		require.Equal(t, int64(900), body.ExpiresIn)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := rig.do(httptest.NewRequest(http.MethodPost, "/v1/session",
			jsonBody(t, map[string]string{"email": "dana@example.com", "password": "incorrect"})))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var e httpx.ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
		require.Equal(t, "invalid_credentials", e.Error)
	})

	t.Run("disallowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/session",
			jsonBody(t, map[string]string{"email": "dana@example.com", "password": "correct horse battery"}))
		req.Header.Set("Origin", "https://rogue.example.com")
		req.Header.Set("X-Forwarded-For", "203.0.113.7")
		rec := httptest.NewRecorder()
		rig.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestAuthenticatedAPIAccess(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 100)
	rig.register(t, "dana@example.com", "correct horse battery")
	access, _, cookie := rig.login(t, "dana@example.com", "correct horse battery")

	apiRequest := func(access, cookie string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader([]byte(`{}`)))
		if access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: httpx.ContextCookieName, Value: cookie})
		}
		return req
	}

	type identity struct {
		UserID    string `json:"user_id"`
		Anonymous bool   `json:"anonymous"`
	}

	t.Run("valid token and cookie resolve the user", func(t *testing.T) {
		rec := rig.do(apiRequest(access, cookie))
		require.Equal(t, http.StatusOK, rec.Code)

		var id identity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
		require.False(t, id.Anonymous)
		require.NotEmpty(t, id.UserID)

		// No fresh credentials go out for an established session.
		require.Empty(t, rec.Header().Get(AccessTokenHeader))
		require.Empty(t, rec.Header().Get(RefreshTokenHeader))
	})

	t.Run("missing cookie degrades to anonymous", func(t *testing.T) {
		rec := rig.do(apiRequest(access, ""))
		require.Equal(t, http.StatusOK, rec.Code)

		var id identity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
		require.True(t, id.Anonymous)
	})

	t.Run("no credentials at all is anonymous, not an error", func(t *testing.T) {
		rec := rig.do(apiRequest("", ""))
		require.Equal(t, http.StatusOK, rec.Code)

		var id identity
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &id))
		require.True(t, id.Anonymous)
	})
}

func TestRefreshEndpoint(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 100)
	rig.register(t, "dana@example.com", "correct horse battery")
	access, refresh, cookie := rig.login(t, "dana@example.com", "correct horse battery")

	refreshRequest := func(refresh, cookie string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/v1/session/refresh", nil)
		if refresh != "" {
			req.Header.Set(ReauthorizationHeader, "Bearer "+refresh)
		}
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: httpx.ContextCookieName, Value: cookie})
		}
		return req
	}

	t.Run("rotates the pair and the cookie", func(t *testing.T) {
		rec := rig.do(refreshRequest(refresh, cookie))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		newAccess := rec.Header().Get(AccessTokenHeader)
		newRefresh := rec.Header().Get(RefreshTokenHeader)
		require.NotEmpty(t, newAccess)
		require.NotEmpty(t, newRefresh)
		require.NotEqual(t, access, newAccess)
		require.NotEqual(t, refresh, newRefresh)

		var newCookie string
		for _, c := range rec.Result().Cookies() {
			if c.Name == httpx.ContextCookieName {
				newCookie = c.Value
			}
		}
		require.NotEmpty(t, newCookie)
		require.NotEqual(t, cookie, newCookie)

		t.Run("superseded refresh token is rejected", func(t *testing.T) {
			rec := rig.do(refreshRequest(refresh, newCookie))
			require.Equal(t, http.StatusUnauthorized, rec.Code)

			var e httpx.ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
			require.Equal(t, "refresh_token_invalid", e.Error)
		})

		t.Run("fresh pair works in turn", func(t *testing.T) {
			rec := rig.do(refreshRequest(newRefresh, newCookie))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		})
	})

	t.Run("no refresh token", func(t *testing.T) {
		rec := rig.do(refreshRequest("", cookie))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var e httpx.ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
		require.Equal(t, "refresh_token_unset", e.Error)
	})

	t.Run("garbage refresh token", func(t *testing.T) {
		rec := rig.do(refreshRequest("not-a-token", cookie))
		require.Equal(t, http.StatusUnauthorized, rec.Code)

		var e httpx.ErrorBody
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
		require.Equal(t, "refresh_token_invalid", e.Error)
	})
}

func TestLogoutEndpoint(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 100)
	rig.register(t, "dana@example.com", "correct horse battery")
	access, _, cookie := rig.login(t, "dana@example.com", "correct horse battery")

	req := httptest.NewRequest(http.MethodDelete, "/v1/session", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	req.AddCookie(&http.Cookie{Name: httpx.ContextCookieName, Value: cookie})

	rec := rig.do(req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == httpx.ContextCookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	require.Empty(t, cleared.Value)
	require.Less(t, cleared.MaxAge, 0)
}

func TestRateLimiting(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 3)

	hit := func() *httptest.ResponseRecorder {
		return rig.do(httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader([]byte(`{}`))))
	}

	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, hit().Code)
	}

	rec := hit()
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "60", rec.Header().Get("Retry-After"))

	var e httpx.ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	require.Equal(t, "rate_limit_exceeded", e.Error)

	t.Run("limit applies before authentication", func(t *testing.T) {
		// A garbage refresh token would 401 in the auth middleware, but the
		// gatekeeper rejects first.
		req := httptest.NewRequest(http.MethodPost, "/v1/session/refresh", nil)
		req.Header.Set(ReauthorizationHeader, "Bearer garbage")
		rec := rig.do(req)
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("another client is unaffected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/graphql", bytes.NewReader([]byte(`{}`)))
		req.Header.Set("X-Forwarded-For", "198.51.100.4")
		require.Equal(t, http.StatusOK, rig.do(req).Code)
	})

	t.Run("health stays reachable", func(t *testing.T) {
		rec := rig.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	rig := newTestRig(t, 100)

	rec := rig.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.Equal(t, "ok", status["store"])
	require.Equal(t, "ok", status["cache"])
}
