package service

import (
	"time"

	"github.com/quayside/gatehouse/pkg/idx"
)

// Request captures everything the authentication core needs to know about
// one in-flight HTTP request. It is built once by the transport layer and
// passed through the pipeline; the Registry keys its associations on the
// pointer identity of this value.
type Request struct {
	ID idx.ID

	// Origin is the request's Origin header value, empty when absent.
	// Token audiences are checked against it verbatim.
	Origin string

	// ContextCookie is the opaque user_context cookie value feeding the
	// fingerprint computation.
	ContextCookie string

	// AccessToken and RefreshToken are the raw bearer credentials from the
	// Authorization and Reauthorization headers.
	AccessToken  string
	RefreshToken string

	ClientIP string

	// SeenAt is the instant the request was first observed. Sessions whose
	// access token was issued at or after this instant are newly
	// established and get fresh token headers in the response.
	SeenAt time.Time
}
