package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/brikk-labs/brikk/pkg/config"
	"github.com/brikk-labs/brikk/pkg/envelope"
	"github.com/brikk-labs/brikk/pkg/guard"
	"github.com/brikk-labs/brikk/pkg/hmacauth"
	"github.com/brikk-labs/brikk/pkg/ratelimit"
)

// GuardStage runs the transport-level checks before anything reads or
// parses the body.
type GuardStage struct {
	Guard *guard.Guard
}

func (s *GuardStage) Name() string { return "guard" }

func (s *GuardStage) Run(_ context.Context, req *Request) *Rejection {
	if v := s.Guard.Check(req.HTTP); v != nil {
		return &Rejection{Status: v.Status, Code: CodeProtocolError, Message: v.Message}
	}
	return nil
}

// BodyStage reads the request body under the byte ceiling. The guard
// checked the declared length; this enforces the bytes actually sent.
type BodyStage struct {
	MaxBytes int64
}

func (s *BodyStage) Name() string { return "body" }

func (s *BodyStage) Run(_ context.Context, req *Request) *Rejection {
	body, err := io.ReadAll(http.MaxBytesReader(nil, req.HTTP.Body, s.MaxBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &Rejection{
				Status:  http.StatusRequestEntityTooLarge,
				Code:    CodeProtocolError,
				Message: fmt.Sprintf("request body exceeds the %d byte limit", s.MaxBytes),
			}
		}
		return &Rejection{
			Status:  http.StatusBadRequest,
			Code:    CodeProtocolError,
			Message: "request body could not be read",
		}
	}
	req.Body = body
	return nil
}

// ParseStage decodes the body as a JSON object.
type ParseStage struct{}

func (s *ParseStage) Name() string { return "parse" }

func (s *ParseStage) Run(_ context.Context, req *Request) *Rejection {
	var raw map[string]any
	if err := json.Unmarshal(req.Body, &raw); err != nil {
		return &Rejection{
			Status:  http.StatusBadRequest,
			Code:    CodeProtocolError,
			Message: "request body is not a valid JSON object",
		}
	}
	req.Raw = raw
	return nil
}

// AuthStage verifies the HMAC request signature. Disabled deployments
// skip it; an enabled one fails closed on any verification error.
type AuthStage struct {
	Verifier *hmacauth.Verifier
	Enabled  bool
	Logger   *slog.Logger
}

func (s *AuthStage) Name() string { return "auth" }

func (s *AuthStage) Run(ctx context.Context, req *Request) *Rejection {
	if !s.Enabled {
		return nil
	}

	r := req.HTTP
	messageID, _ := req.Raw["message_id"].(string)

	cred, err := s.Verifier.Verify(ctx,
		r.Header.Get(guard.HeaderKey),
		r.Method,
		r.URL.Path,
		r.Header.Get(guard.HeaderTimestamp),
		req.Body,
		messageID,
		r.Header.Get(guard.HeaderSignature),
	)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Info("request signature rejected",
				"key_id", r.Header.Get(guard.HeaderKey), "error", err)
		}
		return &Rejection{
			Status:  http.StatusUnauthorized,
			Code:    CodeAuthError,
			Message: "request signature verification failed",
		}
	}
	req.Credential = cred
	return nil
}

// RateStage counts the request against its scope and rejects over-budget
// callers with machine-actionable retry data.
type RateStage struct {
	Limiter       *ratelimit.Limiter
	Scope         ratelimit.Scope
	DefaultPolicy ratelimit.Policy
	// Policies holds per-organization overrides loaded from YAML.
	Policies map[string]config.RatePolicy
}

func (s *RateStage) Name() string { return "rate" }

func (s *RateStage) Run(ctx context.Context, req *Request) *Rejection {
	var orgID, keyID string
	if req.Credential != nil {
		orgID = req.Credential.OrgID
		keyID = req.Credential.KeyID
	}

	req.ScopeKey = ratelimit.ScopeKeyFor(s.Scope, orgID, keyID)
	result := s.Limiter.Check(ctx, req.ScopeKey, s.policyFor(orgID))
	req.RateResult = result

	if !result.Allowed {
		return &Rejection{
			Status:  http.StatusTooManyRequests,
			Code:    CodeRateLimited,
			Message: fmt.Sprintf("rate limit exceeded, retry after %d seconds", result.RetryAfter),
		}
	}
	return nil
}

func (s *RateStage) policyFor(orgID string) ratelimit.Policy {
	if override, ok := s.Policies[orgID]; ok {
		return ratelimit.Policy{PerMinute: override.PerMinute, Burst: override.Burst}
	}
	return s.DefaultPolicy
}

// ValidateStage runs the envelope schema validator, reporting every
// violated field in one rejection.
type ValidateStage struct {
	Validator *envelope.Validator
}

func (s *ValidateStage) Name() string { return "validate" }

func (s *ValidateStage) Run(_ context.Context, req *Request) *Rejection {
	env, errs := s.Validator.Validate(req.Raw)
	if len(errs) > 0 {
		details := make([]ErrorDetail, len(errs))
		for i, e := range errs {
			details[i] = ErrorDetail{FieldPath: e.FieldPath, Message: e.Message}
		}
		return &Rejection{
			Status:  http.StatusUnprocessableEntity,
			Code:    CodeValidationError,
			Message: "envelope failed schema validation",
			Details: details,
		}
	}
	req.Envelope = env
	return nil
}
