package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"hublink/pkg/httpsig"
)

var (
	ErrNotConfigured      = errors.New("signing identity not configured")
	ErrInvalidSeed        = errors.New("invalid private key seed")
	ErrInvalidKeyMaterial = errors.New("invalid private key material")
	ErrInvalidPublicKey   = errors.New("invalid multibase public key")
)

// KeyFragment is appended to the instance identifier to form the keyId.
const KeyFragment = "#key-1"

// pkcs8Ed25519Prefix is the DER header of an unencrypted PKCS8 PrivateKeyInfo
// for OID 1.3.101.112 with a 32-byte OCTET STRING payload.
var pkcs8Ed25519Prefix = []byte{
	0x30, 0x2e, 0x02, 0x01, 0x00, 0x30, 0x05, 0x06,
	0x03, 0x2b, 0x65, 0x70, 0x04, 0x22, 0x04, 0x20,
}

// Identity is either *Authenticated or *Public.
type Identity interface {
	// InstanceID is the stable URI-like identifier of this instance.
	InstanceID() string
	sealed()
}

// Authenticated holds a usable Ed25519 signing key.
type Authenticated struct {
	instanceID         string
	publicKeyMultibase string
	key                ed25519.PrivateKey
	signer             *httpsig.Signer
}

// Public is an anonymous identity used for read-only access. It carries no
// key material.
type Public struct {
	instanceID string
}

// New builds an authenticated identity from a base64url encoded 32-byte seed
// and the published multibase public key. The public key is checked for
// syntax only; binding it to the seed is the job of whatever publishes it.
func New(instanceID, seed, publicKeyMultibase string) (*Authenticated, error) {
	instanceID = strings.TrimSpace(instanceID)
	seed = strings.TrimSpace(seed)
	publicKeyMultibase = strings.TrimSpace(publicKeyMultibase)
	if instanceID == "" || seed == "" || publicKeyMultibase == "" {
		return nil, ErrNotConfigured
	}

	raw, err := DecodeSeed(seed)
	if err != nil {
		return nil, err
	}
	key, err := PrivateKeyFromSeed(raw)
	if err != nil {
		return nil, err
	}
	if _, err := DecodePublicKey(publicKeyMultibase); err != nil {
		return nil, err
	}

	return newAuthenticated(instanceID, publicKeyMultibase, key)
}

// NewPublic builds the anonymous identity.
func NewPublic(instanceID string) *Public {
	return &Public{instanceID: strings.TrimSpace(instanceID)}
}

// Generate creates a fresh key for instanceID and returns the identity along
// with its base64url seed, suitable for configuration.
func Generate(instanceID string) (*Authenticated, string, error) {
	if strings.TrimSpace(instanceID) == "" {
		return nil, "", ErrNotConfigured
	}
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, "", fmt.Errorf("failed to generate seed: %w", err)
	}
	key, err := PrivateKeyFromSeed(seed)
	if err != nil {
		return nil, "", err
	}
	mb, err := EncodePublicKey(key.Public().(ed25519.PublicKey))
	if err != nil {
		return nil, "", err
	}
	id, err := newAuthenticated(strings.TrimSpace(instanceID), mb, key)
	if err != nil {
		return nil, "", err
	}
	return id, base64.RawURLEncoding.EncodeToString(seed), nil
}

func newAuthenticated(instanceID, publicKeyMultibase string, key ed25519.PrivateKey) (*Authenticated, error) {
	signer, err := httpsig.NewSigner(instanceID+KeyFragment, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	return &Authenticated{
		instanceID:         instanceID,
		publicKeyMultibase: publicKeyMultibase,
		key:                key,
		signer:             signer,
	}, nil
}

// DecodeSeed decodes a base64url seed with or without padding.
func DecodeSeed(seed string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(seed, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if len(raw) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSeed, ed25519.SeedSize, len(raw))
	}
	return raw, nil
}

// PrivateKeyFromSeed wraps the raw seed in a PKCS8 DER envelope and imports it.
func PrivateKeyFromSeed(seed []byte) (ed25519.PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidSeed, ed25519.SeedSize, len(seed))
	}

	der := make([]byte, 0, len(pkcs8Ed25519Prefix)+len(seed))
	der = append(der, pkcs8Ed25519Prefix...)
	der = append(der, seed...)

	parsed, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyMaterial, err)
	}
	key, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected key type %T", ErrInvalidKeyMaterial, parsed)
	}
	return key, nil
}

func (a *Authenticated) InstanceID() string { return a.instanceID }

// KeyID is the keyId placed in signatures.
func (a *Authenticated) KeyID() string { return a.signer.KeyID() }

// PublicKeyMultibase returns the configured public key string.
func (a *Authenticated) PublicKeyMultibase() string { return a.publicKeyMultibase }

// PublicKey returns the public half of the signing key.
func (a *Authenticated) PublicKey() ed25519.PublicKey {
	return append(ed25519.PublicKey(nil), a.key.Public().(ed25519.PublicKey)...)
}

// Signer returns the request signer bound to this identity.
func (a *Authenticated) Signer() *httpsig.Signer { return a.signer }

// MatchesPublicKey reports whether the configured multibase key is the public
// half of the signing key.
func (a *Authenticated) MatchesPublicKey() bool {
	pub, err := DecodePublicKey(a.publicKeyMultibase)
	if err != nil {
		return false
	}
	return pub.Equal(a.key.Public())
}

func (a *Authenticated) sealed() {}

func (p *Public) InstanceID() string { return p.instanceID }

func (p *Public) sealed() {}
