package httpsig

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
)

const (
	HeaderHost          = "Host"
	HeaderDate          = "Date"
	HeaderDigest        = "Digest"
	HeaderAuthorization = "Authorization"

	// Algorithm is the only signature algorithm this package produces.
	Algorithm = "ed25519"

	requestTarget = "(request-target)"
	schemePrefix  = "Signature "
)

var (
	ErrMissingHeader          = errors.New("missing signed header")
	ErrMalformedAuthorization = errors.New("malformed authorization header")
	ErrInvalidSignature       = errors.New("signature verification failed")
	ErrInvalidKey             = errors.New("invalid ed25519 private key")
)

var paramPattern = regexp.MustCompile(`([A-Za-z]+)="([^"]*)"`)

// Signer produces draft-cavage style Authorization values with a single
// Ed25519 key.
type Signer struct {
	keyID string
	key   ed25519.PrivateKey
}

// NewSigner creates a signer for keyID. The key is copied.
func NewSigner(keyID string, key ed25519.PrivateKey) (*Signer, error) {
	if keyID == "" {
		return nil, fmt.Errorf("key id cannot be empty")
	}
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKey, len(key))
	}
	return &Signer{
		keyID: keyID,
		key:   append(ed25519.PrivateKey(nil), key...),
	}, nil
}

// KeyID returns the keyId parameter placed in every signature.
func (s *Signer) KeyID() string {
	return s.keyID
}

// Sign builds the signing string for the request and returns the complete
// Authorization header value.
func (s *Signer) Sign(method, target string, headers http.Header) (string, error) {
	signingString, names, err := SigningString(method, target, headers)
	if err != nil {
		return "", err
	}
	signature := ed25519.Sign(s.key, []byte(signingString))
	return FormatAuthorization(s.keyID, names, signature), nil
}

// SignExpectingDigest is Sign for requests that carry a body: a missing
// Digest header is an error instead of being left out of the signing string.
func (s *Signer) SignExpectingDigest(method, target string, headers http.Header) (string, error) {
	if headers.Get(HeaderDigest) == "" {
		return "", fmt.Errorf("%w: digest", ErrMissingHeader)
	}
	return s.Sign(method, target, headers)
}

// SigningString returns the canonical string to sign together with the
// ordered list of header names it covers. The order is always
// (request-target), host, date and then digest when a Digest header exists.
func SigningString(method, target string, headers http.Header) (string, []string, error) {
	if method == "" || target == "" {
		return "", nil, fmt.Errorf("%w: (request-target)", ErrMissingHeader)
	}
	host := headers.Get(HeaderHost)
	if host == "" {
		return "", nil, fmt.Errorf("%w: host", ErrMissingHeader)
	}
	date := headers.Get(HeaderDate)
	if date == "" {
		return "", nil, fmt.Errorf("%w: date", ErrMissingHeader)
	}

	names := []string{requestTarget, "host", "date"}
	lines := []string{
		fmt.Sprintf("%s: %s %s", requestTarget, strings.ToLower(method), target),
		"host: " + host,
		"date: " + date,
	}

	if digest := headers.Get(HeaderDigest); digest != "" {
		names = append(names, "digest")
		lines = append(lines, "digest: "+digest)
	}

	return strings.Join(lines, "\n"), names, nil
}

// FormatAuthorization renders the Authorization header value.
func FormatAuthorization(keyID string, names []string, signature []byte) string {
	return fmt.Sprintf(`%skeyId="%s",algorithm="%s",headers="%s",signature="%s"`,
		schemePrefix,
		keyID,
		Algorithm,
		strings.Join(names, " "),
		base64.StdEncoding.EncodeToString(signature))
}

// Digest returns the Digest header value for body.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return "sha-256=" + base64.StdEncoding.EncodeToString(sum[:])
}
