package httpsig

import (
	"crypto/ed25519"
	"net/http"
	"strings"
	"testing"

	gofed "github.com/go-fed/httpsig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// signedRequest builds a request the way the hub client does and signs it.
func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, "https://hub.example.test/trp/join", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set(HeaderHost, "hub.example.test")
	req.Header.Set(HeaderDate, "Sat, 17 Oct 2026 10:00:00 GMT")
	req.Header.Set(HeaderDigest, Digest([]byte(body)))

	signer, err := NewSigner("https://example.test#key-1", testKey())
	require.NoError(t, err)
	auth, err := signer.SignExpectingDigest(req.Method, req.URL.RequestURI(), req.Header)
	require.NoError(t, err)
	req.Header.Set(HeaderAuthorization, auth)
	return req
}

func TestInterop_GoFedVerifierAccepts(t *testing.T) {
	req := signedRequest(t, `{"ringSlug":"demo"}`)

	v, err := gofed.NewVerifier(req)
	require.NoError(t, err)
	assert.Equal(t, "https://example.test#key-1", v.KeyId())

	pub := testKey().Public().(ed25519.PublicKey)
	assert.NoError(t, v.Verify(pub, gofed.ED25519))
}

func TestInterop_GoFedVerifierRejectsTampering(t *testing.T) {
	pub := testKey().Public().(ed25519.PublicKey)

	tests := []struct {
		name   string
		header string
		value  string
	}{
		{"date", HeaderDate, "Sun, 18 Oct 2026 10:00:00 GMT"},
		{"digest", HeaderDigest, Digest([]byte(`{"ringSlug":"other"}`))},
		{"host", HeaderHost, "evil.example.test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := signedRequest(t, `{"ringSlug":"demo"}`)
			req.Header.Set(tt.header, tt.value)

			v, err := gofed.NewVerifier(req)
			require.NoError(t, err)
			assert.Error(t, v.Verify(pub, gofed.ED25519))
		})
	}
}
