package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/cache"
	"github.com/quayside/gatehouse/internal/gatehouse/queue"
	"github.com/quayside/gatehouse/internal/gatehouse/service"
	"github.com/quayside/gatehouse/internal/gatehouse/store"
	"github.com/quayside/gatehouse/pkg/httpx"
	"github.com/quayside/gatehouse/pkg/slogx"
)

// Router holds shared dependencies for HTTP handlers and wires the request
// pipeline: rate limiting first, then authentication, then handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	logger *slog.Logger

	store store.Store
	cache cache.Cache

	Gatekeeper    service.Gatekeeper
	Authenticator *service.Authenticator
	Sessions      *service.Sessions
	Accounts      *service.AccountService
	Mail          queue.Queue

	// API is the backend executor served at POST /graphql. It is an
	// external collaborator; when nil the route is not mounted.
	API http.Handler

	AllowedOrigins  []string
	RateLimitWindow time.Duration
	RefreshTTL      time.Duration
	SecureCookies   bool
}

func NewRouter(st store.Store, ca cache.Cache, logger *slog.Logger) *Router {
	r := &Router{
		Mux:    http.NewServeMux(),
		logger: logger,
		store:  st,
		cache:  ca,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) ApplyRoutes() {
	authCfg := AuthConfig{
		RefreshTTL:    r.RefreshTTL,
		SecureCookies: r.SecureCookies,
	}

	// Every request passes the gatekeeper before anything else; the
	// authentication middleware follows for all routes that resolve an
	// identity. Health stays outside both so monitors are never limited.
	pipeline := []httpx.Middleware{
		RateLimitMiddleware(r.Gatekeeper, r.RateLimitWindow),
		AuthMiddleware(r.Authenticator, r.Sessions, authCfg),
	}

	sessionHandler := &SessionHandler{
		Accounts:       r.Accounts,
		Sessions:       r.Sessions,
		Mail:           r.Mail,
		AllowedOrigins: r.AllowedOrigins,
		Auth:           authCfg,
	}
	accountsHandler := &AccountsHandler{
		Accounts: r.Accounts,
		Mail:     r.Mail,
	}

	r.Mux.Handle("POST /v1/accounts",
		httpx.Chain(http.HandlerFunc(accountsHandler.HandleRegister), pipeline...))
	r.Mux.Handle("POST /v1/session",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleLogin), pipeline...))
	r.Mux.Handle("POST /v1/session/refresh",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleRefresh), pipeline...))
	r.Mux.Handle("DELETE /v1/session",
		httpx.Chain(http.HandlerFunc(sessionHandler.HandleLogout), pipeline...))

	if r.API != nil {
		r.Mux.Handle("POST /graphql", httpx.Chain(r.API, pipeline...))
	}

	r.Mux.Handle("GET /healthz", HealthHandler(r.store, r.cache))
}
