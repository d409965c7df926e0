// Package hmacauth implements Brikk request signing: an HMAC-SHA256
// signature over a canonical string binding method, path, timestamp,
// body hash, and message id to a caller's shared secret.
//
// The canonical string is a versioned wire contract. Changing the field
// order or the newline separator breaks every existing signature.
package hmacauth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultMaxSkew is the accepted clock drift between the caller's
// timestamp and server time: five minutes either way.
const DefaultMaxSkew = 5 * time.Minute

var (
	// ErrUnknownKey means the caller key id has no registered secret.
	ErrUnknownKey = errors.New("hmacauth: unknown key id")
	// ErrStaleTimestamp means the request timestamp drifted beyond the
	// accepted window (replay defense).
	ErrStaleTimestamp = errors.New("hmacauth: request timestamp outside accepted drift window")
	// ErrBadTimestamp means the timestamp header could not be parsed.
	ErrBadTimestamp = errors.New("hmacauth: unparsable request timestamp")
	// ErrSignatureMismatch means the recomputed signature differs from
	// the caller-supplied one.
	ErrSignatureMismatch = errors.New("hmacauth: signature mismatch")
)

// Credential is a caller's signing identity: a stable key id, the org it
// belongs to, and the shared secret.
type Credential struct {
	KeyID  string
	OrgID  string
	Secret string
}

// CredentialSource resolves a caller key id to its credential.
// Implementations must fail closed: any lookup ambiguity is an error.
type CredentialSource interface {
	Lookup(ctx context.Context, keyID string) (*Credential, error)
}

// StaticCredentials is a CredentialSource over a fixed map, used for
// config-provisioned secrets and tests.
type StaticCredentials map[string]Credential

// Lookup implements CredentialSource.
func (s StaticCredentials) Lookup(_ context.Context, keyID string) (*Credential, error) {
	cred, ok := s[keyID]
	if !ok {
		return nil, ErrUnknownKey
	}
	return &cred, nil
}

// BodyHash returns the hex-encoded SHA-256 of the raw request body bytes.
func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// CanonicalString joins the signed request fields with newline
// separators, in fixed order. messageID may be empty when the body
// carries none; the trailing field is then the empty string.
func CanonicalString(method, path, timestamp, bodyHash, messageID string) string {
	return strings.Join([]string{method, path, timestamp, bodyHash, messageID}, "\n")
}

// Sign computes the hex-encoded HMAC-SHA256 of the canonical string
// under the shared secret.
func Sign(secret, canonical string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verifier verifies request signatures against a credential source.
type Verifier struct {
	Credentials CredentialSource
	// MaxSkew bounds the accepted timestamp drift; zero selects
	// DefaultMaxSkew.
	MaxSkew time.Duration
	// clock allows deterministic time for testing.
	clock func() time.Time
}

// NewVerifier creates a verifier with the default drift window.
func NewVerifier(creds CredentialSource) *Verifier {
	return &Verifier{Credentials: creds, MaxSkew: DefaultMaxSkew, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	v.clock = clock
	return v
}

// Verify recomputes the signature server-side and compares it in
// constant time against the caller-supplied value. It returns the
// caller's credential on success. Every failure mode is an error;
// there is no skip path.
func (v *Verifier) Verify(ctx context.Context, keyID, method, path, timestamp string, body []byte, messageID, signature string) (*Credential, error) {
	cred, err := v.Credentials.Lookup(ctx, keyID)
	if err != nil {
		return nil, err
	}

	if err := v.checkFreshness(timestamp); err != nil {
		return nil, err
	}

	canonical := CanonicalString(method, path, timestamp, BodyHash(body), messageID)
	expected := Sign(cred.Secret, canonical)
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return nil, ErrSignatureMismatch
	}
	return cred, nil
}

// checkFreshness parses the timestamp header (RFC3339 or epoch seconds)
// and rejects drift beyond the window.
func (v *Verifier) checkFreshness(timestamp string) error {
	maxSkew := v.MaxSkew
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}

	ts, err := parseTimestamp(timestamp)
	if err != nil {
		return err
	}

	now := v.now()
	drift := now.Sub(ts)
	if drift < 0 {
		drift = -drift
	}
	if drift > maxSkew {
		return fmt.Errorf("%w: drift %s exceeds %s", ErrStaleTimestamp, drift.Round(time.Second), maxSkew)
	}
	return nil
}

func (v *Verifier) now() time.Time {
	if v.clock != nil {
		return v.clock()
	}
	return time.Now()
}

func parseTimestamp(timestamp string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339Nano, timestamp); err == nil {
		return ts, nil
	}
	if secs, err := strconv.ParseInt(timestamp, 10, 64); err == nil {
		return time.Unix(secs, 0), nil
	}
	return time.Time{}, ErrBadTimestamp
}
