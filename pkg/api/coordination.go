package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/brikk-labs/brikk/pkg/dedup"
	"github.com/brikk-labs/brikk/pkg/metering"
	"github.com/brikk-labs/brikk/pkg/ratelimit"
)

// dedupTTL is how long a claimed nonce stays claimed. It covers the
// full signature skew window on both sides.
const dedupTTL = 10 * time.Minute

// CoordinationHandler serves POST /v1/coordination: the full staged
// pipeline, nonce replay protection, and usage metering.
type CoordinationHandler struct {
	Pipeline *Pipeline
	Deduper  dedup.Deduper
	Meter    metering.Recorder
	Logger   *slog.Logger
}

func (h *CoordinationHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			WriteInternal(w, r, fmt.Errorf("panic: %v", rec))
		}
	}()

	req := &Request{HTTP: r}
	if rej := h.Pipeline.Run(r.Context(), req); rej != nil {
		h.writeRejection(w, r, req, rej)
		return
	}

	env := req.Envelope
	// Unauthenticated deployments still dedup and meter, under the same
	// anonymous tenant the rate limiter uses.
	orgID := "anon"
	if req.Credential != nil {
		orgID = req.Credential.OrgID
	}

	contentHash, err := env.ContentHash()
	if err != nil {
		// Unreachable for a validated envelope; keep the message moving.
		h.logger().Warn("content hash failed", "message_id", env.MessageID, "error", err)
	}

	// The nonce is the caller's replay token; without one, the content
	// hash stands in so an exact resend is still caught.
	dedupKey := env.Nonce
	if dedupKey == "" {
		dedupKey = contentHash
	}
	if dedupKey != "" && h.Deduper != nil {
		claimed, err := h.Deduper.Claim(r.Context(), orgID, dedupKey, dedupTTL)
		if err != nil {
			// Dedup is best-effort: a broken claim store must not take
			// the coordination path down with it.
			h.logger().Warn("dedup claim store unavailable, accepting",
				"org_id", orgID, "error", err)
		} else if !claimed {
			writeRateHeaders(w, req.RateResult)
			msg := "nonce has already been used"
			if env.Nonce == "" {
				msg = "identical message has already been accepted"
			}
			WriteError(w, r, http.StatusConflict, CodeProtocolError, msg)
			return
		}
	}

	h.record(r, metering.Event{
		OrgID:     orgID,
		EventType: metering.EventMessage,
		Quantity:  1,
		Timestamp: time.Now().UTC(),
		Metadata: map[string]string{
			"message_id": env.MessageID,
			"type":       env.Type,
		},
	})

	writeRateHeaders(w, req.RateResult)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status": "accepted",
		"echo": map[string]any{
			"message_id":   env.MessageID,
			"ts":           env.TS,
			"content_hash": contentHash,
		},
	})
}

func (h *CoordinationHandler) writeRejection(w http.ResponseWriter, r *http.Request, req *Request, rej *Rejection) {
	writeRateHeaders(w, req.RateResult)
	if rej.Status == http.StatusTooManyRequests && req.RateResult != nil {
		w.Header().Set("Retry-After", strconv.Itoa(req.RateResult.RetryAfter))
	}

	if req.Credential != nil {
		h.record(r, metering.Event{
			OrgID:     req.Credential.OrgID,
			EventType: metering.EventRejected,
			Quantity:  1,
			Timestamp: time.Now().UTC(),
			Metadata:  map[string]string{"code": string(rej.Code)},
		})
	}

	WriteError(w, r, rej.Status, rej.Code, rej.Message, rej.Details...)
}

func (h *CoordinationHandler) record(r *http.Request, event metering.Event) {
	if h.Meter == nil {
		return
	}
	if err := h.Meter.Record(r.Context(), event); err != nil {
		h.logger().Warn("usage event dropped", "org_id", event.OrgID, "error", err)
	}
}

func (h *CoordinationHandler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// writeRateHeaders exposes the quota decision on every response that
// had one, accepted or rejected.
func writeRateHeaders(w http.ResponseWriter, res *ratelimit.Result) {
	if res == nil {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetTime, 10))
}
