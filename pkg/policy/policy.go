// Package policy decides which outbound hub requests carry an HTTP signature.
//
// Every mutating call is signed. Reads are signed when they touch the
// caller's own resources or anything under the rings collection. The rings
// prefix rule also covers per-ring sub-resources (feed, members,
// membership-info, badges) even where the hub documents them as public.
package policy

import (
	"net/http"
	"strings"

	"hublink/pkg/identity"
)

const (
	// RingsPrefix is the path prefix of the rings collection.
	RingsPrefix = "/trp/rings"

	mySegment = "/my/"
)

// RequiresSignature reports whether a request must be signed. A public
// identity is never signed.
func RequiresSignature(id identity.Identity, method, path string) bool {
	if _, ok := id.(*identity.Authenticated); !ok {
		return false
	}
	if !strings.EqualFold(method, http.MethodGet) {
		return true
	}
	return isSensitiveRead(path)
}

func isSensitiveRead(path string) bool {
	path = stripQuery(path)

	if strings.Contains(path, mySegment) || strings.HasSuffix(path, "/my") {
		return true
	}
	if strings.HasPrefix(path, RingsPrefix) {
		return true
	}
	return isSingleRing(path)
}

// isSingleRing matches /trp/rings/<slug> exactly.
func isSingleRing(path string) bool {
	rest, ok := strings.CutPrefix(path, RingsPrefix+"/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}

func stripQuery(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}
