package hmacauth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCreds = StaticCredentials{
	"key-1": {KeyID: "key-1", OrgID: "org-1", Secret: "s3cret"},
}

func frozenVerifier(at time.Time) *Verifier {
	return NewVerifier(testCreds).WithClock(func() time.Time { return at })
}

func TestCanonicalString_FixedOrder(t *testing.T) {
	got := CanonicalString("POST", "/v1/coordination", "2023-10-02T14:30:00Z", "abc123", "msg-1")
	assert.Equal(t, "POST\n/v1/coordination\n2023-10-02T14:30:00Z\nabc123\nmsg-1", got)

	// Empty message id leaves a trailing empty field, not a shorter string.
	got = CanonicalString("POST", "/p", "t", "h", "")
	assert.Equal(t, "POST\n/p\nt\nh\n", got)
}

func TestBodyHash_Deterministic(t *testing.T) {
	assert.Equal(t, BodyHash([]byte(`{"a":1}`)), BodyHash([]byte(`{"a":1}`)))
	assert.NotEqual(t, BodyHash([]byte(`{"a":1}`)), BodyHash([]byte(`{"a":2}`)))
	// SHA-256 of the empty body, a fixed point of the wire contract.
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", BodyHash(nil))
}

func TestVerify_RoundTrip(t *testing.T) {
	now := time.Date(2023, 10, 2, 14, 30, 0, 0, time.UTC)
	v := frozenVerifier(now)

	body := []byte(`{"message_id":"m-1"}`)
	ts := now.Format(time.RFC3339)
	canonical := CanonicalString("POST", "/v1/coordination", ts, BodyHash(body), "m-1")
	sig := Sign("s3cret", canonical)

	cred, err := v.Verify(context.Background(), "key-1", "POST", "/v1/coordination", ts, body, "m-1", sig)
	require.NoError(t, err)
	assert.Equal(t, "org-1", cred.OrgID)
}

func TestVerify_TamperedBody(t *testing.T) {
	now := time.Date(2023, 10, 2, 14, 30, 0, 0, time.UTC)
	v := frozenVerifier(now)

	ts := now.Format(time.RFC3339)
	sig := Sign("s3cret", CanonicalString("POST", "/p", ts, BodyHash([]byte(`{"a":1}`)), ""))

	_, err := v.Verify(context.Background(), "key-1", "POST", "/p", ts, []byte(`{"a":2}`), "", sig)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerify_WrongSecret(t *testing.T) {
	now := time.Date(2023, 10, 2, 14, 30, 0, 0, time.UTC)
	v := frozenVerifier(now)

	ts := now.Format(time.RFC3339)
	sig := Sign("wrong", CanonicalString("POST", "/p", ts, BodyHash(nil), ""))

	_, err := v.Verify(context.Background(), "key-1", "POST", "/p", ts, nil, "", sig)
	assert.ErrorIs(t, err, ErrSignatureMismatch)
}

func TestVerify_UnknownKey(t *testing.T) {
	v := frozenVerifier(time.Now())
	_, err := v.Verify(context.Background(), "nobody", "POST", "/p", time.Now().Format(time.RFC3339), nil, "", "sig")
	assert.ErrorIs(t, err, ErrUnknownKey)
}

func TestVerify_TimestampDrift(t *testing.T) {
	now := time.Date(2023, 10, 2, 14, 30, 0, 0, time.UTC)
	v := frozenVerifier(now)

	cases := []struct {
		name string
		ts   time.Time
		ok   bool
	}{
		{"current", now, true},
		{"4m59s old", now.Add(-5*time.Minute + time.Second), true},
		{"4m59s ahead", now.Add(5*time.Minute - time.Second), true},
		{"6m old", now.Add(-6 * time.Minute), false},
		{"6m ahead", now.Add(6 * time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := tc.ts.Format(time.RFC3339)
			sig := Sign("s3cret", CanonicalString("POST", "/p", ts, BodyHash(nil), ""))
			_, err := v.Verify(context.Background(), "key-1", "POST", "/p", ts, nil, "", sig)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrStaleTimestamp)
			}
		})
	}
}

func TestVerify_EpochSecondsTimestamp(t *testing.T) {
	now := time.Date(2023, 10, 2, 14, 30, 0, 0, time.UTC)
	v := frozenVerifier(now)

	ts := "1696257000" // 2023-10-02T14:30:00Z
	sig := Sign("s3cret", CanonicalString("POST", "/p", ts, BodyHash(nil), ""))
	_, err := v.Verify(context.Background(), "key-1", "POST", "/p", ts, nil, "", sig)
	assert.NoError(t, err)
}

func TestVerify_UnparsableTimestamp(t *testing.T) {
	v := frozenVerifier(time.Now())
	_, err := v.Verify(context.Background(), "key-1", "POST", "/p", "noon-ish", nil, "", "sig")
	assert.ErrorIs(t, err, ErrBadTimestamp)
}

func TestVerify_NeverSkipsOnError(t *testing.T) {
	// A credential source that fails must yield an error, never a pass.
	v := NewVerifier(failingSource{})
	_, err := v.Verify(context.Background(), "key-1", "POST", "/p", time.Now().Format(time.RFC3339), nil, "", "sig")
	assert.Error(t, err)
}

type failingSource struct{}

func (failingSource) Lookup(context.Context, string) (*Credential, error) {
	return nil, errors.New("backend down")
}
