package guard

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedRequest(method, contentType string) *http.Request {
	r := httptest.NewRequest(method, "/v1/coordination", strings.NewReader(`{}`))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	r.Header.Set(HeaderKey, "key-1")
	r.Header.Set(HeaderTimestamp, "2023-10-02T14:30:00Z")
	r.Header.Set(HeaderSignature, "deadbeef")
	return r
}

func TestCheck_NonPostBypassesEverything(t *testing.T) {
	g := New(0)

	r := httptest.NewRequest(http.MethodGet, "/v1/coordination", nil)
	r.Header.Set("Content-Type", "text/plain")
	assert.Nil(t, g.Check(r), "GET must bypass all guard checks")
}

func TestCheck_ContentType(t *testing.T) {
	g := New(0)

	cases := []struct {
		ct string
		ok bool
	}{
		{"application/json", true},
		{"application/json; charset=utf-8", true},
		{"text/plain", false},
		{"application/xml", false},
		{"", false},
	}
	for _, tc := range cases {
		v := g.Check(signedRequest(http.MethodPost, tc.ct))
		if tc.ok {
			assert.Nil(t, v, "content type %q", tc.ct)
		} else {
			require.NotNil(t, v, "content type %q", tc.ct)
			assert.Equal(t, http.StatusUnsupportedMediaType, v.Status)
		}
	}
}

func TestCheck_BodySizeCeiling(t *testing.T) {
	g := New(0)

	r := signedRequest(http.MethodPost, "application/json")
	r.Header.Set("Content-Length", "262145")
	v := g.Check(r)
	require.NotNil(t, v)
	assert.Equal(t, http.StatusRequestEntityTooLarge, v.Status)
	assert.Contains(t, v.Message, "262144", "message must state the exact byte ceiling")

	r = signedRequest(http.MethodPost, "application/json")
	r.Header.Set("Content-Length", "262144")
	assert.Nil(t, g.Check(r), "exactly at the ceiling is allowed")
}

func TestCheck_NonNumericContentLength(t *testing.T) {
	g := New(0)

	r := signedRequest(http.MethodPost, "application/json")
	r.Header.Set("Content-Length", "lots")
	v := g.Check(r)
	require.NotNil(t, v)
	assert.Equal(t, http.StatusBadRequest, v.Status)
}

func TestCheck_MissingHeadersListedTogether(t *testing.T) {
	g := New(0)

	r := httptest.NewRequest(http.MethodPost, "/v1/coordination", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(HeaderKey, "key-1")

	v := g.Check(r)
	require.NotNil(t, v)
	assert.Equal(t, http.StatusBadRequest, v.Status)
	assert.Contains(t, v.Message, HeaderTimestamp)
	assert.Contains(t, v.Message, HeaderSignature)
	assert.NotContains(t, v.Message, HeaderKey+",", "present header must not be reported")
}

func TestCheck_OrderingContentTypeFirst(t *testing.T) {
	g := New(0)

	// Both content type and headers are wrong; content type must win.
	r := httptest.NewRequest(http.MethodPost, "/v1/coordination", strings.NewReader(`{}`))
	r.Header.Set("Content-Type", "text/plain")
	v := g.Check(r)
	require.NotNil(t, v)
	assert.Equal(t, http.StatusUnsupportedMediaType, v.Status)
}

func TestCheck_CustomCeiling(t *testing.T) {
	g := New(16)

	r := signedRequest(http.MethodPost, "application/json")
	r.Header.Set("Content-Length", "17")
	v := g.Check(r)
	require.NotNil(t, v)
	assert.Contains(t, v.Message, "16")
}
