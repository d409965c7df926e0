package api

import (
	"context"
	"net/http"

	"github.com/brikk-labs/brikk/pkg/envelope"
	"github.com/brikk-labs/brikk/pkg/hmacauth"
	"github.com/brikk-labs/brikk/pkg/ratelimit"
)

// Rejection is the uniform stage failure value: enough to render the
// standard error envelope without the stage knowing about HTTP writers.
type Rejection struct {
	Status  int
	Code    ErrorCode
	Message string
	Details []ErrorDetail
}

// Request carries one coordination request through the pipeline. Stages
// populate fields for the stages after them; the zero value plus the
// inbound *http.Request is a valid starting state.
type Request struct {
	HTTP *http.Request

	// Body is the raw request bytes, filled by the body stage.
	Body []byte
	// Raw is the JSON-decoded body, filled by the parse stage.
	Raw map[string]any
	// Credential identifies the authenticated caller; nil when HMAC
	// auth is disabled or the request is anonymous.
	Credential *hmacauth.Credential
	// RateResult is the quota decision, set whenever the rate stage ran.
	RateResult *ratelimit.Result
	// ScopeKey is the rate-limit partition the request was counted in.
	ScopeKey string
	// Envelope is the validated message, set by the validate stage.
	Envelope *envelope.Envelope
}

// Stage is one ordered step of the coordination pipeline. A nil return
// continues to the next stage; a Rejection short-circuits the rest.
type Stage interface {
	Name() string
	Run(ctx context.Context, req *Request) *Rejection
}

// Pipeline is an explicit ordered stage list. Ordering is part of the
// protocol contract: guard, then auth, then rate, then validate.
type Pipeline struct {
	stages []Stage
}

// NewPipeline composes stages in the given order.
func NewPipeline(stages ...Stage) *Pipeline {
	return &Pipeline{stages: stages}
}

// Run executes the stages in order and returns the first rejection,
// or nil when every stage passed.
func (p *Pipeline) Run(ctx context.Context, req *Request) *Rejection {
	for _, stage := range p.stages {
		if rej := stage.Run(ctx, req); rej != nil {
			return rej
		}
	}
	return nil
}

// StageNames reports the composed order, for logging and tests.
func (p *Pipeline) StageNames() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}
