package envelope

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaURL identifies the published envelope schema document.
const SchemaURL = "https://schemas.brikk.dev/coordination/envelope-1.0.schema.json"

// SchemaJSON is the envelope wire contract as JSON Schema (draft 2020-12).
// It is served at GET /v1/coordination/schema so SDKs can validate
// client-side before signing. The version-nibble compatibility rule
// (v4 only under BRIKK_ALLOW_UUID4) is enforced server-side; the published
// pattern admits the compatibility superset.
const SchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://schemas.brikk.dev/coordination/envelope-1.0.schema.json",
  "title": "Brikk Coordination Envelope",
  "type": "object",
  "additionalProperties": false,
  "required": ["message_id", "ts", "sender", "recipient"],
  "properties": {
    "version": {"const": "1.0"},
    "message_id": {
      "type": "string",
      "pattern": "^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[47][0-9a-fA-F]{3}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$"
    },
    "ts": {
      "type": "string",
      "pattern": "^\\d{4}-\\d{2}-\\d{2}T\\d{2}:\\d{2}:\\d{2}(\\.\\d{1,9})?Z$"
    },
    "type": {"enum": ["message", "event", "command", "result", "error"]},
    "sender": {"$ref": "#/$defs/agentRef"},
    "recipient": {"$ref": "#/$defs/agentRef"},
    "payload": {"type": "object"},
    "ttl_ms": {"type": "integer", "minimum": 1, "maximum": 120000},
    "reply_to": {"type": "string", "maxLength": 255},
    "nonce": {"type": "string", "maxLength": 255}
  },
  "$defs": {
    "agentRef": {
      "type": "object",
      "additionalProperties": false,
      "required": ["agent_id"],
      "properties": {
        "agent_id": {"type": "string", "minLength": 1, "maxLength": 255},
        "org_id": {"type": "string", "maxLength": 255}
      }
    }
  }
}`

// CompileSchema compiles the published schema document. Used at startup to
// guarantee the served document is a valid schema, and in tests to check
// that the document and the validator agree.
func CompileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(SchemaURL, strings.NewReader(SchemaJSON)); err != nil {
		return nil, err
	}
	return c.Compile(SchemaURL)
}
