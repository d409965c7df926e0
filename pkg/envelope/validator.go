package envelope

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ValidationError describes one field that failed validation.
type ValidationError struct {
	FieldPath string `json:"field_path"`
	Message   string `json:"message"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.FieldPath, e.Message)
}

// tsPattern accepts RFC3339 UTC timestamps with optional fractional
// seconds and a mandatory trailing Z. Semantic validity (month 13 etc.)
// is caught by the parse step that follows the match.
var tsPattern = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d{1,9})?Z$`)

// envelopeFields is the closed top-level schema.
var envelopeFields = map[string]bool{
	"version": true, "message_id": true, "ts": true, "type": true,
	"sender": true, "recipient": true, "payload": true,
	"ttl_ms": true, "reply_to": true, "nonce": true,
}

// agentRefFields is the closed schema for sender/recipient records.
var agentRefFields = map[string]bool{
	"agent_id": true, "org_id": true,
}

var messageTypes = map[string]bool{
	TypeMessage: true, TypeEvent: true, TypeCommand: true,
	TypeResult: true, TypeError: true,
}

// Validator validates untyped JSON objects into Envelopes.
// Validation is pure: the only state is the UUID compatibility flag.
type Validator struct {
	// allowUUID4 accepts UUIDv4 message ids in addition to UUIDv7.
	// Interim compatibility behavior, controlled by BRIKK_ALLOW_UUID4.
	allowUUID4 bool
}

// NewValidator creates a validator. allowUUID4 mirrors BRIKK_ALLOW_UUID4.
func NewValidator(allowUUID4 bool) *Validator {
	return &Validator{allowUUID4: allowUUID4}
}

// Validate parses a JSON-decoded object into a normalized Envelope.
// It accumulates every field failure rather than stopping at the first;
// on any failure the returned envelope is nil.
func (v *Validator) Validate(raw map[string]any) (*Envelope, []ValidationError) {
	var errs []ValidationError
	add := func(path, msg string) {
		errs = append(errs, ValidationError{FieldPath: path, Message: msg})
	}

	for key := range raw {
		if !envelopeFields[key] {
			add(key, "unknown field not permitted by the envelope schema")
		}
	}

	env := &Envelope{
		Version: Version,
		Type:    TypeMessage,
		TTLMs:   DefaultTTLMs,
		Payload: map[string]any{},
	}

	if val, ok := raw["version"]; ok {
		if s, ok := requireString(val, "version", add); ok && s != Version {
			add("version", fmt.Sprintf("version must be %q", Version))
		} else if ok {
			env.Version = s
		}
	}

	env.MessageID = v.validateMessageID(raw["message_id"], add)
	env.TS = validateTS(raw["ts"], add)

	if val, ok := raw["type"]; ok {
		if s, ok := requireString(val, "type", add); ok {
			if !messageTypes[s] {
				add("type", "type must be one of message, event, command, result, error")
			} else {
				env.Type = s
			}
		}
	}

	env.Sender = validateAgentRef(raw["sender"], "sender", add)
	env.Recipient = validateAgentRef(raw["recipient"], "recipient", add)

	if val, ok := raw["payload"]; ok {
		if m, ok := val.(map[string]any); ok {
			env.Payload = m
		} else {
			add("payload", "payload must be an object")
		}
	}

	if val, ok := raw["ttl_ms"]; ok {
		env.TTLMs = validateTTL(val, add)
	}

	env.ReplyTo = validateOptionalString(raw, "reply_to", add)
	env.Nonce = validateOptionalString(raw, "nonce", add)

	if len(errs) > 0 {
		return nil, errs
	}
	return env, nil
}

// validateMessageID parses the message id as a UUID and enforces the
// version nibble: v7 always accepted, v4 only under the compatibility
// flag, anything else rejected. The canonical form is lowercased.
func (v *Validator) validateMessageID(val any, add func(path, msg string)) string {
	if val == nil {
		add("message_id", "message_id is required")
		return ""
	}
	s, ok := val.(string)
	if !ok {
		add("message_id", "message_id must be a string")
		return ""
	}
	id, err := uuid.Parse(s)
	if err != nil {
		add("message_id", "message_id must be a valid UUID")
		return ""
	}
	switch id.Version() {
	case 7:
	case 4:
		if !v.allowUUID4 {
			add("message_id", "UUIDv4 message ids require BRIKK_ALLOW_UUID4=true; use UUIDv7")
			return ""
		}
	default:
		add("message_id", fmt.Sprintf("message_id must be UUIDv7 (or UUIDv4 in compatibility mode), got version %d", id.Version()))
		return ""
	}
	return strings.ToLower(id.String())
}

// validateTS checks the timestamp against the UTC-Z pattern, then parses
// it to reject dates that match the pattern but do not exist.
func validateTS(val any, add func(path, msg string)) string {
	if val == nil {
		add("ts", "ts is required")
		return ""
	}
	s, ok := val.(string)
	if !ok {
		add("ts", "ts must be a string")
		return ""
	}
	if !tsPattern.MatchString(s) {
		add("ts", "ts must be an RFC3339 UTC timestamp ending in Z")
		return ""
	}
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		add("ts", "ts is not a valid calendar timestamp")
		return ""
	}
	return s
}

func validateAgentRef(val any, path string, add func(path, msg string)) AgentRef {
	var ref AgentRef
	if val == nil {
		add(path, path+" is required")
		return ref
	}
	m, ok := val.(map[string]any)
	if !ok {
		add(path, path+" must be an object")
		return ref
	}
	for key := range m {
		if !agentRefFields[key] {
			add(path+"."+key, "unknown field not permitted by the envelope schema")
		}
	}

	agentID, ok := m["agent_id"].(string)
	if !ok || agentID == "" {
		add(path+".agent_id", "agent_id is required and must be a non-empty string")
	} else if len(agentID) > MaxFieldLen {
		add(path+".agent_id", fmt.Sprintf("agent_id must be at most %d characters", MaxFieldLen))
	} else {
		ref.AgentID = agentID
	}

	if raw, ok := m["org_id"]; ok && raw != nil {
		orgID, ok := raw.(string)
		if !ok {
			add(path+".org_id", "org_id must be a string")
		} else if len(orgID) > MaxFieldLen {
			add(path+".org_id", fmt.Sprintf("org_id must be at most %d characters", MaxFieldLen))
		} else {
			ref.OrgID = orgID
		}
	}
	return ref
}

// validateTTL accepts integral JSON numbers within [MinTTLMs, MaxTTLMs].
func validateTTL(val any, add func(path, msg string)) int {
	f, ok := val.(float64)
	if !ok || f != math.Trunc(f) {
		add("ttl_ms", "ttl_ms must be an integer")
		return DefaultTTLMs
	}
	n := int(f)
	if n < MinTTLMs || n > MaxTTLMs {
		add("ttl_ms", fmt.Sprintf("ttl_ms must be between %d and %d", MinTTLMs, MaxTTLMs))
		return DefaultTTLMs
	}
	return n
}

func validateOptionalString(raw map[string]any, key string, add func(path, msg string)) string {
	val, ok := raw[key]
	if !ok || val == nil {
		return ""
	}
	s, ok := val.(string)
	if !ok {
		add(key, key+" must be a string")
		return ""
	}
	if len(s) > MaxFieldLen {
		add(key, fmt.Sprintf("%s must be at most %d characters", key, MaxFieldLen))
		return ""
	}
	return s
}

func requireString(val any, path string, add func(path, msg string)) (string, bool) {
	s, ok := val.(string)
	if !ok {
		add(path, path+" must be a string")
		return "", false
	}
	return s, true
}
