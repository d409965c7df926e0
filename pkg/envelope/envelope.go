// Package envelope implements the Brikk coordination wire format — the
// message unit exchanged between agents — and its closed-schema validator.
//
// The envelope is the protocol boundary of the coordination path:
//   - Every inbound message must validate before anything downstream runs
//   - The schema is closed: unknown keys anywhere are a rejection, not a drop
//   - Validation is fail-closed; any ambiguity is an error
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"
)

// Version is the only accepted envelope version literal.
const Version = "1.0"

// Message type enumeration.
const (
	TypeMessage = "message"
	TypeEvent   = "event"
	TypeCommand = "command"
	TypeResult  = "result"
	TypeError   = "error"
)

// TTL bounds in milliseconds.
const (
	MinTTLMs     = 1
	MaxTTLMs     = 120000
	DefaultTTLMs = 30000
)

// MaxFieldLen bounds every free-form string field (agent ids, org ids,
// reply_to, nonce).
const MaxFieldLen = 255

// AgentRef identifies one party of an exchange.
type AgentRef struct {
	AgentID string `json:"agent_id"`
	OrgID   string `json:"org_id,omitempty"`
}

// Envelope is a validated coordination message. Construct via
// Validator.Validate; treat as immutable afterwards. Minify produces
// the only sanctioned derived copy.
type Envelope struct {
	Version   string         `json:"version"`
	MessageID string         `json:"message_id"`
	TS        string         `json:"ts"`
	Type      string         `json:"type"`
	Sender    AgentRef       `json:"sender"`
	Recipient AgentRef       `json:"recipient"`
	Payload   map[string]any `json:"payload"`
	TTLMs     int            `json:"ttl_ms"`
	ReplyTo   string         `json:"reply_to,omitempty"`
	Nonce     string         `json:"nonce,omitempty"`
}

// Minify returns a deep copy of the envelope's data with every null value
// removed, recursively through nested maps and slices. Unset optional
// string fields are omitted entirely. Supports downstream serialization
// that must not emit unset fields. The receiver is not mutated.
func (e *Envelope) Minify() map[string]any {
	// Round-trip through JSON so omitempty drops unset optional fields and
	// the payload is copied rather than aliased.
	raw, err := json.Marshal(e)
	if err != nil {
		// An already-validated envelope always marshals; this path is
		// unreachable with a well-formed receiver.
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return MinifyValue(m).(map[string]any)
}

// MinifyValue removes nil values from maps, recursively through maps and
// slices. Empty maps and slices are kept: an empty payload is meaningful,
// an explicit null is not. Idempotent.
func MinifyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if val == nil {
				continue
			}
			out[k] = MinifyValue(val)
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, val := range t {
			if val == nil {
				continue
			}
			out = append(out, MinifyValue(val))
		}
		return out
	default:
		return v
	}
}

// ContentHash returns the SHA-256 hash of the RFC 8785 canonical JSON of
// the minified envelope, prefixed "sha256:". Two envelopes with the same
// content always hash identically regardless of key order or unset fields.
func (e *Envelope) ContentHash() (string, error) {
	raw, err := json.Marshal(e.Minify())
	if err != nil {
		return "", fmt.Errorf("marshal envelope: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("canonicalize envelope: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
