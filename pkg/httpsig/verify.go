package httpsig

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// Authorization is a parsed Signature Authorization header.
type Authorization struct {
	KeyID     string
	Algorithm string
	Headers   []string
	Signature []byte
}

// ParseAuthorization parses a value produced by FormatAuthorization.
func ParseAuthorization(value string) (*Authorization, error) {
	if !strings.HasPrefix(value, schemePrefix) {
		return nil, fmt.Errorf("%w: missing Signature scheme", ErrMalformedAuthorization)
	}

	params := make(map[string]string)
	for _, m := range paramPattern.FindAllStringSubmatch(strings.TrimPrefix(value, schemePrefix), -1) {
		params[m[1]] = m[2]
	}

	auth := &Authorization{
		KeyID:     params["keyId"],
		Algorithm: params["algorithm"],
	}
	if auth.KeyID == "" {
		return nil, fmt.Errorf("%w: keyId not found", ErrMalformedAuthorization)
	}
	if h := params["headers"]; h != "" {
		auth.Headers = strings.Fields(h)
	}
	if len(auth.Headers) == 0 {
		return nil, fmt.Errorf("%w: headers not found", ErrMalformedAuthorization)
	}

	sig, err := base64.StdEncoding.DecodeString(params["signature"])
	if err != nil || len(sig) == 0 {
		return nil, fmt.Errorf("%w: bad signature encoding", ErrMalformedAuthorization)
	}
	auth.Signature = sig

	return auth, nil
}

// Verify checks authorization against the request described by method,
// target and headers.
func Verify(pub ed25519.PublicKey, method, target string, headers http.Header, authorization string) error {
	auth, err := ParseAuthorization(authorization)
	if err != nil {
		return err
	}
	if auth.Algorithm != Algorithm {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidSignature, auth.Algorithm)
	}
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: bad public key length %d", ErrInvalidSignature, len(pub))
	}

	signingString, names, err := SigningString(method, target, headers)
	if err != nil {
		return err
	}
	if strings.Join(names, " ") != strings.Join(auth.Headers, " ") {
		return fmt.Errorf("%w: signed headers %q do not match request", ErrInvalidSignature, strings.Join(auth.Headers, " "))
	}
	if !ed25519.Verify(pub, []byte(signingString), auth.Signature) {
		return ErrInvalidSignature
	}
	return nil
}
