package policy

import (
	"net/http"
	"testing"

	"hublink/pkg/identity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequiresSignature_GET(t *testing.T) {
	id, _, err := identity.Generate("https://example.test")
	require.NoError(t, err)

	tests := []struct {
		path string
		want bool
	}{
		{"/trp/my/memberships", true},
		{"/trp/my/feed?limit=20", true},
		{"/trp/rings", true},
		{"/trp/rings?search=art", true},
		{"/trp/rings/demo", true},
		{"/trp/rings/demo/feed", true},
		{"/trp/rings/demo/members", true},
		{"/trp/rings/demo/membership-info", true},
		{"/trp/rings/demo/badges", true},
		{"/trp/stats", false},
		{"/trp/root", false},
		{"/trp/actors/did:web:example.test/badges", false},
		{"/trp/posts/123", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, RequiresSignature(id, http.MethodGet, tt.path))
		})
	}
}

func TestRequiresSignature_MutatingAlwaysSigned(t *testing.T) {
	id, _, err := identity.Generate("https://example.test")
	require.NoError(t, err)

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, "post"} {
		for _, path := range []string{"/trp/stats", "/trp/join", "/trp/root", "/anything"} {
			assert.True(t, RequiresSignature(id, method, path), "%s %s", method, path)
		}
	}
}

func TestRequiresSignature_PublicNeverSigned(t *testing.T) {
	pub := identity.NewPublic("https://example.test")

	for _, method := range []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete} {
		for _, path := range []string{"/trp/my/memberships", "/trp/rings/demo", "/trp/join", "/trp/stats"} {
			assert.False(t, RequiresSignature(pub, method, path), "%s %s", method, path)
		}
	}
}

func TestRequiresSignature_NilIdentity(t *testing.T) {
	assert.False(t, RequiresSignature(nil, http.MethodPost, "/trp/join"))
}

func TestIsSingleRing(t *testing.T) {
	assert.True(t, isSingleRing("/trp/rings/demo"))
	assert.False(t, isSingleRing("/trp/rings/"))
	assert.False(t, isSingleRing("/trp/rings"))
	assert.False(t, isSingleRing("/trp/rings/demo/feed"))
}
