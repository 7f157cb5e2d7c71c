// Package signing computes and verifies the keyed digest that proves a queued
// job payload was produced by a holder of the shared secret.
package signing

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Algorithm names the hash behind the HMAC.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	// SHA1 matches producers that predate SHA256 digests.
	SHA1 Algorithm = "sha1"
)

const derivationInfo = "sqsworker job signature"

var (
	// ErrInvalidSignature marks a payload whose digest header is missing,
	// malformed or does not match.
	ErrInvalidSignature = errors.New("invalid message signature")
	ErrEmptySecret      = errors.New("signing secret is empty")
)

// Outcome is the explicit result of a verification.
type Outcome int

const (
	InvalidSignature Outcome = iota
	Verified
)

func (o Outcome) String() string {
	if o == Verified {
		return "verified"
	}
	return "invalid_signature"
}

// Err maps the outcome onto ErrInvalidSignature.
func (o Outcome) Err() error {
	if o == Verified {
		return nil
	}
	return ErrInvalidSignature
}

// Verifier holds the key and hash; it is immutable and safe for concurrent use.
type Verifier struct {
	key  []byte
	hash func() hash.Hash
}

// NewVerifier copies secret so later changes to the caller's slice have no effect.
func NewVerifier(secret []byte, alg Algorithm) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	var h func() hash.Hash
	switch alg {
	case SHA256, "":
		h = sha256.New
	case SHA1:
		h = sha1.New
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %q", alg)
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Verifier{key: key, hash: h}, nil
}

// Sign returns the lowercase hex digest of message, the form producers put
// in the message-digest attribute.
func (v *Verifier) Sign(message []byte) string {
	mac := hmac.New(v.hash, v.key)
	mac.Write(message)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest over the exact message bytes and compares it
// with supplied in constant time. The supplied value is compared as sent, so
// a change in letter case is a mismatch.
func (v *Verifier) Verify(message []byte, supplied string) Outcome {
	if supplied == "" {
		return InvalidSignature
	}
	if hmac.Equal([]byte(v.Sign(message)), []byte(supplied)) {
		return Verified
	}
	return InvalidSignature
}

// DeriveKey expands a master secret into a key dedicated to job signatures
// with HKDF-SHA256. Producers must apply the same derivation.
func DeriveKey(secret []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	key := make([]byte, sha256.Size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte(derivationInfo)), key); err != nil {
		return nil, fmt.Errorf("derive signing key: %w", err)
	}
	return key, nil
}
