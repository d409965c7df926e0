package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalEnvelope() *Envelope {
	return &Envelope{
		Version:   Version,
		MessageID: "018f6d4f-36ad-7bd8-9f43-6c2f5fd0a1b3",
		TS:        "2023-10-02T14:30:00Z",
		Type:      TypeMessage,
		Sender:    AgentRef{AgentID: "a1"},
		Recipient: AgentRef{AgentID: "a2"},
		Payload:   map[string]any{"action": "test"},
		TTLMs:     DefaultTTLMs,
	}
}

func TestMinify_OmitsUnsetOptionalFields(t *testing.T) {
	m := minimalEnvelope().Minify()

	assert.NotContains(t, m, "reply_to")
	assert.NotContains(t, m, "nonce")
	sender, ok := m["sender"].(map[string]any)
	require.True(t, ok)
	assert.NotContains(t, sender, "org_id")
}

func TestMinify_StripsNullsRecursively(t *testing.T) {
	env := minimalEnvelope()
	env.Payload = map[string]any{
		"keep":   "value",
		"drop":   nil,
		"nested": map[string]any{"also_drop": nil, "keep": 1.0},
		"list":   []any{nil, "x", map[string]any{"gone": nil}},
	}

	m := env.Minify()
	payload := m["payload"].(map[string]any)

	assert.NotContains(t, payload, "drop")
	nested := payload["nested"].(map[string]any)
	assert.NotContains(t, nested, "also_drop")
	assert.Equal(t, 1.0, nested["keep"])
	list := payload["list"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "x", list[0])
	assert.Empty(t, list[1].(map[string]any))
}

func TestMinify_KeepsEmptyCollections(t *testing.T) {
	env := minimalEnvelope()
	env.Payload = map[string]any{"empty_map": map[string]any{}, "empty_list": []any{}}

	payload := env.Minify()["payload"].(map[string]any)
	assert.Contains(t, payload, "empty_map")
	assert.Contains(t, payload, "empty_list")
}

func TestMinify_DoesNotMutateOriginal(t *testing.T) {
	env := minimalEnvelope()
	env.Payload = map[string]any{"drop": nil, "keep": "v"}

	_ = env.Minify()
	assert.Contains(t, env.Payload, "drop", "minify must work on a copy")
}

func TestMinifyValue_Idempotent(t *testing.T) {
	in := map[string]any{
		"a": nil,
		"b": map[string]any{"c": nil, "d": []any{nil, 1.0}},
	}
	once := MinifyValue(in)
	twice := MinifyValue(once)
	assert.Equal(t, once, twice)
}

func TestContentHash_StableAcrossKeyOrderAndUnsetFields(t *testing.T) {
	a := minimalEnvelope()
	b := minimalEnvelope()
	b.Payload = map[string]any{"action": "test"} // fresh map, same content

	ha, err := a.ContentHash()
	require.NoError(t, err)
	hb, err := b.ContentHash()
	require.NoError(t, err)

	assert.Equal(t, ha, hb)
	assert.Contains(t, ha, "sha256:")

	b.Payload["action"] = "other"
	hc, err := b.ContentHash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}
