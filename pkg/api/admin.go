package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/brikk-labs/brikk/pkg/auth"
	"github.com/brikk-labs/brikk/pkg/ratelimit"
)

// AdminHandler serves the operator endpoints. Callers must already be
// past auth.AdminMiddleware when these run.
type AdminHandler struct {
	Limiter *ratelimit.Limiter
}

// ResetRateLimit handles POST /v1/admin/ratelimit/reset. Resetting a
// scope that holds no counter succeeds the same as one that does.
func (h *AdminHandler) ResetRateLimit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ScopeKey string `json:"scope_key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		WriteError(w, r, http.StatusBadRequest, CodeProtocolError,
			"request body is not a valid JSON object")
		return
	}

	scopeKey := strings.TrimSpace(body.ScopeKey)
	if scopeKey == "" {
		WriteError(w, r, http.StatusBadRequest, CodeProtocolError,
			"scope_key is required",
			ErrorDetail{FieldPath: "scope_key", Message: "must not be empty"})
		return
	}

	if err := h.Limiter.ResetScope(r.Context(), scopeKey); err != nil {
		WriteInternal(w, r, err)
		return
	}

	claims, _ := auth.GetAdminClaims(r.Context())
	resp := map[string]any{
		"status":    "reset",
		"scope_key": scopeKey,
	}
	if claims != nil {
		resp["reset_by"] = claims.Subject
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
