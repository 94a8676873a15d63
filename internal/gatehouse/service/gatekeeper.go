package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quayside/gatehouse/internal/gatehouse/cache"
)

// ErrRateLimited reports that a client exceeded its request budget. It is a
// recoverable, caller-visible condition mapped to HTTP 429, never a crash.
var ErrRateLimited = errors.New("rate limit exceeded")

// Gatekeeper decides whether a client may proceed. The two concrete
// strategies (sliding window, growing window) are interchangeable behind
// this contract; a deployment picks exactly one.
type Gatekeeper interface {
	// Admit permits or rejects one request from the client. Only
	// ErrRateLimited is a policy rejection; any other error is an
	// infrastructure failure.
	Admit(ctx context.Context, clientKey string) error
}

// SlidingWindowLimiter counts requests inside a trailing time window that
// moves continuously with the clock. State is a per-client list of access
// timestamps in the shared cache, stored with TTL equal to the window.
//
// The read-modify-write against the cache runs without a distributed lock;
// concurrent bursts from one client can slip a few extra requests through.
// That approximation is accepted: the consequence of a lost race is a
// slightly permissive limit, not a security violation.
type SlidingWindowLimiter struct {
	Cache  cache.Cache
	Limit  int
	Window time.Duration

	Now func() time.Time
}

func (l *SlidingWindowLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *SlidingWindowLimiter) Admit(ctx context.Context, clientKey string) error {
	key := "ratelimit:window:" + clientKey
	now := l.now().Unix()
	oldest := now - int64(l.Window.Seconds())

	var accesses []int64
	stored, err := l.Cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrMiss):
		// first request in this window
	case err != nil:
		return fmt.Errorf("rate limiter state read: %w", err)
	default:
		if err := json.Unmarshal(stored, &accesses); err != nil {
			// Unreadable state is discarded rather than locking the
			// client out forever.
			accesses = nil
		}
	}

	accesses = append(accesses, now)

	kept := accesses[:0]
	for _, at := range accesses {
		if at >= oldest {
			kept = append(kept, at)
		}
	}

	updated, err := json.Marshal(kept)
	if err != nil {
		return fmt.Errorf("rate limiter state encode: %w", err)
	}
	if err := l.Cache.Set(ctx, key, updated, l.Window); err != nil {
		return fmt.Errorf("rate limiter state write: %w", err)
	}

	if len(kept) > l.Limit {
		return ErrRateLimited
	}
	return nil
}

// GrowingWindowLimiter is the alternate strategy: a fixed counting window
// whose size doubles each time the client overflows it, and resets once a
// window passes cleanly. Same contract, different eviction semantics; do
// not mix the two within one deployment.
type GrowingWindowLimiter struct {
	Cache      cache.Cache
	Limit      int
	BaseWindow time.Duration

	// MaxDoublings caps the punishment window at BaseWindow << MaxDoublings.
	MaxDoublings int

	Now func() time.Time
}

type growingWindowState struct {
	WindowStart int64 `json:"window_start"`
	Count       int   `json:"count"`
	Overflows   int   `json:"overflows"`
}

func (l *GrowingWindowLimiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *GrowingWindowLimiter) windowFor(overflows int) time.Duration {
	if l.MaxDoublings > 0 && overflows > l.MaxDoublings {
		overflows = l.MaxDoublings
	}
	return l.BaseWindow << overflows
}

func (l *GrowingWindowLimiter) Admit(ctx context.Context, clientKey string) error {
	key := "ratelimit:growing:" + clientKey
	now := l.now().Unix()

	var state growingWindowState
	stored, err := l.Cache.Get(ctx, key)
	switch {
	case errors.Is(err, cache.ErrMiss):
		state = growingWindowState{WindowStart: now}
	case err != nil:
		return fmt.Errorf("rate limiter state read: %w", err)
	default:
		if err := json.Unmarshal(stored, &state); err != nil {
			state = growingWindowState{WindowStart: now}
		}
	}

	window := l.windowFor(state.Overflows)
	if now >= state.WindowStart+int64(window.Seconds()) {
		// The previous window elapsed. A clean window also clears the
		// overflow escalation.
		if state.Count <= l.Limit {
			state.Overflows = 0
		}
		state.WindowStart = now
		state.Count = 0
		window = l.windowFor(state.Overflows)
	}

	state.Count++
	exceeded := state.Count > l.Limit
	if exceeded {
		state.Overflows++
		window = l.windowFor(state.Overflows)
	}

	updated, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("rate limiter state encode: %w", err)
	}
	if err := l.Cache.Set(ctx, key, updated, window); err != nil {
		return fmt.Errorf("rate limiter state write: %w", err)
	}

	if exceeded {
		return ErrRateLimited
	}
	return nil
}
