package envelope

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRaw() map[string]any {
	return map[string]any{
		"message_id": "018f6d4f-36ad-7bd8-9f43-6c2f5fd0a1b3",
		"ts":         "2023-10-02T14:30:00Z",
		"sender":     map[string]any{"agent_id": "a1"},
		"recipient":  map[string]any{"agent_id": "a2"},
		"payload":    map[string]any{"action": "test"},
	}
}

func fieldPaths(errs []ValidationError) []string {
	paths := make([]string, 0, len(errs))
	for _, e := range errs {
		paths = append(paths, e.FieldPath)
	}
	return paths
}

func TestValidate_MinimalEnvelope(t *testing.T) {
	v := NewValidator(false)

	env, errs := v.Validate(validRaw())
	require.Empty(t, errs)
	require.NotNil(t, env)

	assert.Equal(t, "1.0", env.Version)
	assert.Equal(t, "018f6d4f-36ad-7bd8-9f43-6c2f5fd0a1b3", env.MessageID)
	assert.Equal(t, TypeMessage, env.Type, "type defaults to message")
	assert.Equal(t, DefaultTTLMs, env.TTLMs, "ttl_ms defaults to 30000")
	assert.Equal(t, "a1", env.Sender.AgentID)
	assert.Equal(t, "a2", env.Recipient.AgentID)
}

func TestValidate_RoundTripStability(t *testing.T) {
	v := NewValidator(false)

	raw := validRaw()
	raw["version"] = "1.0"
	raw["type"] = "command"
	raw["ttl_ms"] = float64(5000)
	raw["reply_to"] = "018f6d4f-36ad-7bd8-9f43-6c2f5fd0a1b3"
	raw["nonce"] = "n-1"
	raw["sender"] = map[string]any{"agent_id": "a1", "org_id": "org-1"}

	env, errs := v.Validate(raw)
	require.Empty(t, errs)

	// Serialize and validate again: the result must be identical.
	data, err := json.Marshal(env)
	require.NoError(t, err)
	var again map[string]any
	require.NoError(t, json.Unmarshal(data, &again))

	env2, errs := v.Validate(again)
	require.Empty(t, errs)
	assert.Equal(t, env, env2)
}

func TestValidate_MessageIDLowercased(t *testing.T) {
	v := NewValidator(false)
	raw := validRaw()
	raw["message_id"] = "018F6D4F-36AD-7BD8-9F43-6C2F5FD0A1B3"

	env, errs := v.Validate(raw)
	require.Empty(t, errs)
	assert.Equal(t, "018f6d4f-36ad-7bd8-9f43-6c2f5fd0a1b3", env.MessageID)
}

func TestValidate_UUIDVersions(t *testing.T) {
	v4 := uuid.New().String()
	v7 := uuid.Must(uuid.NewV7()).String()
	v1 := "c232ab00-9414-11ec-b3c8-9f6bdeced846" // version nibble 1

	cases := []struct {
		name       string
		id         string
		allowUUID4 bool
		wantValid  bool
	}{
		{"v7 strict", v7, false, true},
		{"v7 compat", v7, true, true},
		{"v4 strict", v4, false, false},
		{"v4 compat", v4, true, true},
		{"v1 strict", v1, false, false},
		{"v1 compat", v1, true, false},
		{"not a uuid", "not-a-uuid", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRaw()
			raw["message_id"] = tc.id
			_, errs := v7Validator(tc.allowUUID4).Validate(raw)
			if tc.wantValid {
				assert.Empty(t, errs)
			} else {
				require.NotEmpty(t, errs)
				assert.Contains(t, fieldPaths(errs), "message_id")
			}
		})
	}
}

func TestValidate_UUID4RejectionNamesFlag(t *testing.T) {
	raw := validRaw()
	raw["message_id"] = uuid.New().String()

	_, errs := NewValidator(false).Validate(raw)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "BRIKK_ALLOW_UUID4")
}

func v7Validator(allowUUID4 bool) *Validator { return NewValidator(allowUUID4) }

func TestValidate_Timestamp(t *testing.T) {
	cases := []struct {
		name      string
		ts        string
		wantValid bool
	}{
		{"plain", "2023-10-02T14:30:00Z", true},
		{"fractional", "2023-10-02T14:30:00.123456789Z", true},
		{"no Z", "2023-10-02T14:30:00", false},
		{"offset instead of Z", "2023-10-02T14:30:00+00:00", false},
		{"month 13", "2023-13-02T14:30:00Z", false},
		{"day 32", "2023-01-32T14:30:00Z", false},
		{"garbage", "yesterday", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := validRaw()
			raw["ts"] = tc.ts
			_, errs := NewValidator(false).Validate(raw)
			if tc.wantValid {
				assert.Empty(t, errs)
			} else {
				require.NotEmpty(t, errs)
				assert.Contains(t, fieldPaths(errs), "ts")
			}
		})
	}
}

func TestValidate_TTLBounds(t *testing.T) {
	for _, ttl := range []float64{0, -1, 120001, 999999} {
		raw := validRaw()
		raw["ttl_ms"] = ttl
		_, errs := NewValidator(false).Validate(raw)
		require.Len(t, errs, 1, "ttl %v", ttl)
		assert.Equal(t, "ttl_ms", errs[0].FieldPath)
		assert.Contains(t, errs[0].Message, "between 1 and 120000", "bounds must be named")
	}

	for _, ttl := range []float64{1, 120000, 30000} {
		raw := validRaw()
		raw["ttl_ms"] = ttl
		env, errs := NewValidator(false).Validate(raw)
		require.Empty(t, errs, "ttl %v", ttl)
		assert.Equal(t, int(ttl), env.TTLMs)
	}
}

func TestValidate_TTLMustBeInteger(t *testing.T) {
	raw := validRaw()
	raw["ttl_ms"] = 1.5
	_, errs := NewValidator(false).Validate(raw)
	require.NotEmpty(t, errs)
	assert.Contains(t, errs[0].Message, "integer")
}

func TestValidate_ClosedSchema(t *testing.T) {
	t.Run("top level", func(t *testing.T) {
		raw := validRaw()
		raw["foo"] = "bar"
		_, errs := NewValidator(false).Validate(raw)
		require.Len(t, errs, 1)
		assert.Equal(t, "foo", errs[0].FieldPath)
	})

	t.Run("nested in sender", func(t *testing.T) {
		raw := validRaw()
		raw["sender"] = map[string]any{"agent_id": "a1", "role": "admin"}
		_, errs := NewValidator(false).Validate(raw)
		require.Len(t, errs, 1)
		assert.Equal(t, "sender.role", errs[0].FieldPath)
	})

	t.Run("nested in recipient", func(t *testing.T) {
		raw := validRaw()
		raw["recipient"] = map[string]any{"agent_id": "a2", "priority": 1}
		_, errs := NewValidator(false).Validate(raw)
		require.Len(t, errs, 1)
		assert.Equal(t, "recipient.priority", errs[0].FieldPath)
	})
}

func TestValidate_AccumulatesAllErrors(t *testing.T) {
	raw := map[string]any{
		"message_id": "nope",
		"ts":         "nope",
		"sender":     map[string]any{},
		"recipient":  map[string]any{"agent_id": ""},
		"ttl_ms":     float64(0),
		"junk":       true,
	}
	_, errs := NewValidator(false).Validate(raw)
	paths := fieldPaths(errs)
	for _, want := range []string{"message_id", "ts", "sender.agent_id", "recipient.agent_id", "ttl_ms", "junk"} {
		assert.Contains(t, paths, want)
	}
}

func TestValidate_FieldLengthCeilings(t *testing.T) {
	long := make([]byte, MaxFieldLen+1)
	for i := range long {
		long[i] = 'x'
	}

	raw := validRaw()
	raw["sender"] = map[string]any{"agent_id": string(long)}
	raw["nonce"] = string(long)
	_, errs := NewValidator(false).Validate(raw)
	paths := fieldPaths(errs)
	assert.Contains(t, paths, "sender.agent_id")
	assert.Contains(t, paths, "nonce")
}

func TestValidate_BadVersionLiteral(t *testing.T) {
	raw := validRaw()
	raw["version"] = "2.0"
	_, errs := NewValidator(false).Validate(raw)
	require.Len(t, errs, 1)
	assert.Equal(t, "version", errs[0].FieldPath)
}

func TestValidate_WrongTypes(t *testing.T) {
	raw := validRaw()
	raw["payload"] = "not an object"
	raw["type"] = 5
	_, errs := NewValidator(false).Validate(raw)
	paths := fieldPaths(errs)
	assert.Contains(t, paths, "payload")
	assert.Contains(t, paths, "type")
}

func TestValidate_UnknownMessageType(t *testing.T) {
	raw := validRaw()
	raw["type"] = "broadcast"
	_, errs := NewValidator(false).Validate(raw)
	require.Len(t, errs, 1)
	assert.Equal(t, "type", errs[0].FieldPath)
}
