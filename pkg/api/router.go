package api

import (
	"net/http"

	"github.com/brikk-labs/brikk/pkg/auth"
	"github.com/brikk-labs/brikk/pkg/envelope"
)

// RouterDeps carries everything the HTTP surface needs; nil optional
// pieces (edge limiter, observability, admin JWT) disable that layer.
type RouterDeps struct {
	Coordination *CoordinationHandler
	Health       *HealthHandler
	Admin        *AdminHandler
	JWTValidator *auth.JWTValidator
	Edge         *EdgeLimiter
	Tracing      func(http.Handler) http.Handler
}

// NewRouter builds the full handler chain:
//
//	request id -> security headers -> tracing -> edge limiter -> mux
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /v1/coordination", deps.Coordination)
	mux.HandleFunc("GET /v1/coordination/schema", serveSchema)
	mux.Handle("GET /health", deps.Health)

	if deps.Admin != nil && deps.JWTValidator != nil {
		guard := auth.AdminMiddleware(deps.JWTValidator, WriteUnauthorized)
		mux.Handle("POST /v1/admin/ratelimit/reset",
			guard(http.HandlerFunc(deps.Admin.ResetRateLimit)))
	}

	var handler http.Handler = mux
	if deps.Edge != nil {
		handler = deps.Edge.Middleware(handler)
	}
	if deps.Tracing != nil {
		handler = deps.Tracing(handler)
	}
	handler = SecurityHeadersMiddleware(handler)
	handler = auth.RequestIDMiddleware(handler)
	return handler
}

// serveSchema publishes the envelope contract so integrators can
// validate client-side before sending.
func serveSchema(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/schema+json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(envelope.SchemaJSON))
}
