package http

import (
	"context"
	"net/http"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/cache"
	"github.com/quayside/gatehouse/internal/gatehouse/store"
	"github.com/quayside/gatehouse/pkg/httpx"
)

// HealthHandler reports whether the store and cache are reachable.
func HealthHandler(st store.Store, ca cache.Cache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := map[string]string{"store": "ok", "cache": "ok"}
		healthy := true

		if err := st.Ping(ctx); err != nil {
			status["store"] = err.Error()
			healthy = false
		}
		if err := ca.Ping(ctx); err != nil {
			status["cache"] = err.Error()
			healthy = false
		}

		code := http.StatusOK
		if !healthy {
			code = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, code, status)
	})
}
