package identity

import (
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-varint"
)

// ed25519PubCodec is the multicodec code for ed25519-pub.
const ed25519PubCodec = 0xed

const didKeyPrefix = "did:key:z"

// EncodePublicKey renders pub as a base58btc multibase string carrying the
// ed25519-pub multicodec prefix (the "z6Mk..." form).
func EncodePublicKey(pub ed25519.PublicKey) (string, error) {
	if len(pub) != ed25519.PublicKeySize {
		return "", fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(pub))
	}
	return multibase.Encode(multibase.Base58BTC, withCodec(pub))
}

// DecodePublicKey accepts any multibase encoding of either a bare 32-byte key
// or a multicodec-prefixed ed25519-pub key.
func DecodePublicKey(value string) (ed25519.PublicKey, error) {
	_, data, err := multibase.Decode(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return stripCodec(data)
}

// DIDKey returns the did:key form of the identity's public key.
func (a *Authenticated) DIDKey() string {
	return didKeyPrefix + base58.Encode(withCodec(a.key.Public().(ed25519.PublicKey)))
}

func withCodec(pub ed25519.PublicKey) []byte {
	prefix := varint.ToUvarint(ed25519PubCodec)
	out := make([]byte, 0, len(prefix)+len(pub))
	out = append(out, prefix...)
	return append(out, pub...)
}

func stripCodec(data []byte) (ed25519.PublicKey, error) {
	if len(data) == ed25519.PublicKeySize {
		return ed25519.PublicKey(append([]byte(nil), data...)), nil
	}

	code, n, err := varint.FromUvarint(data)
	if err != nil {
		return nil, fmt.Errorf("%w: bad multicodec prefix: %v", ErrInvalidPublicKey, err)
	}
	if code != ed25519PubCodec {
		return nil, fmt.Errorf("%w: unexpected multicodec 0x%x", ErrInvalidPublicKey, code)
	}
	if len(data)-n != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d key bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(data)-n)
	}
	return ed25519.PublicKey(append([]byte(nil), data[n:]...)), nil
}
