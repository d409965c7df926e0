// Package guard pre-validates transport-level request constraints before
// any schema or cryptographic work runs. Checks are ordered and each
// short-circuits: content type, then declared body size, then required
// auth headers. Non-POST requests pass through untouched.
package guard

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// Required request headers on the coordination endpoint.
const (
	HeaderKey       = "X-Brikk-Key"
	HeaderTimestamp = "X-Brikk-Timestamp"
	HeaderSignature = "X-Brikk-Signature"
)

// DefaultMaxBodyBytes is the request body ceiling (256 KiB).
const DefaultMaxBodyBytes = 262144

// Violation describes one failed transport check. Status carries the
// HTTP mapping; all violations classify as protocol errors.
type Violation struct {
	Status  int
	Message string
}

func (v *Violation) Error() string { return v.Message }

// Guard holds the transport constraints.
type Guard struct {
	MaxBodyBytes int64
}

// New creates a guard with the given body ceiling; zero or negative
// selects the default 256 KiB.
func New(maxBodyBytes int64) *Guard {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &Guard{MaxBodyBytes: maxBodyBytes}
}

// Check runs the ordered transport checks and returns the first
// violation, or nil when the request may proceed.
func (g *Guard) Check(r *http.Request) *Violation {
	if r.Method != http.MethodPost {
		return nil
	}

	if v := g.checkContentType(r); v != nil {
		return v
	}
	if v := g.checkBodySize(r); v != nil {
		return v
	}
	return g.checkRequiredHeaders(r)
}

// checkContentType requires the application/json prefix; charset and
// other media-type parameters are tolerated as a suffix.
func (g *Guard) checkContentType(r *http.Request) *Violation {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "application/json") {
		return &Violation{
			Status:  http.StatusUnsupportedMediaType,
			Message: "Content-Type must be application/json",
		}
	}
	return nil
}

// checkBodySize validates the declared Content-Length against the
// ceiling. A non-numeric declaration is itself a violation. The actual
// received byte count is enforced separately by the body reader.
func (g *Guard) checkBodySize(r *http.Request) *Violation {
	n := r.ContentLength
	if declared := r.Header.Get("Content-Length"); declared != "" {
		parsed, err := strconv.ParseInt(declared, 10, 64)
		if err != nil || parsed < 0 {
			return &Violation{
				Status:  http.StatusBadRequest,
				Message: "Content-Length header must be a non-negative integer",
			}
		}
		n = parsed
	}
	if n > g.MaxBodyBytes {
		return &Violation{
			Status:  http.StatusRequestEntityTooLarge,
			Message: fmt.Sprintf("request body exceeds the %d byte limit", g.MaxBodyBytes),
		}
	}
	return nil
}

// checkRequiredHeaders requires the caller key, timestamp, and signature
// headers, reporting every missing name rather than the first.
func (g *Guard) checkRequiredHeaders(r *http.Request) *Violation {
	var missing []string
	for _, name := range []string{HeaderKey, HeaderTimestamp, HeaderSignature} {
		if strings.TrimSpace(r.Header.Get(name)) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return &Violation{
			Status:  http.StatusBadRequest,
			Message: "missing required headers: " + strings.Join(missing, ", "),
		}
	}
	return nil
}
