package http

import (
	"context"

	"github.com/quayside/gatehouse/internal/gatehouse/domain"
	"github.com/quayside/gatehouse/internal/gatehouse/service"
)

type ctxKey int

const (
	ctxKeyRequest ctxKey = iota
	ctxKeyRegistry
	ctxKeyUser
	ctxKeySession
)

// RequestFromContext returns the authentication-core view of the current
// request, or nil outside the pipeline.
func RequestFromContext(ctx context.Context) *service.Request {
	v, _ := ctx.Value(ctxKeyRequest).(*service.Request)
	return v
}

// UserFromContext returns the user associated with the current request.
// Inside the pipeline this is never nil; unauthenticated requests carry the
// anonymous user.
func UserFromContext(ctx context.Context) *domain.User {
	v, _ := ctx.Value(ctxKeyUser).(*domain.User)
	return v
}

// SessionFromContext returns the current session, or nil for anonymous
// requests.
func SessionFromContext(ctx context.Context) *service.Session {
	v, _ := ctx.Value(ctxKeySession).(*service.Session)
	return v
}

func registryFromContext(ctx context.Context) *service.Registry {
	v, _ := ctx.Value(ctxKeyRegistry).(*service.Registry)
	return v
}
