// Package cryptoutil implements the signing, verification, and at-rest
// symmetric protection primitives shared by both binaries.
package cryptoutil

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Ed25519PublicKeyLen is the raw Ed25519 public key length in bytes.
const Ed25519PublicKeyLen = 32

var (
	// ErrInvalidPublicKey is returned for wrong-length or all-zero keys.
	ErrInvalidPublicKey = errors.New("invalid public key")
	// ErrInvalidBase64 is a distinct error from ErrInvalidPublicKey so
	// callers can tell a decode failure from a content failure.
	ErrInvalidBase64 = errors.New("invalid base64 encoding")
)

// ValidatePublicKey rejects wrong-length or all-zero Ed25519 public keys.
func ValidatePublicKey(publicKey []byte) error {
	if len(publicKey) != Ed25519PublicKeyLen {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidPublicKey, Ed25519PublicKeyLen, len(publicKey))
	}
	allZero := true
	for _, b := range publicKey {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return fmt.Errorf("%w: all-zero public key", ErrInvalidPublicKey)
	}
	return nil
}

// ValidatePublicKeyBase64 decodes then validates a standard-alphabet
// base64-encoded public key.
func ValidatePublicKeyBase64(publicKeyB64 string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(publicKeyB64))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	if err := ValidatePublicKey(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// Sign produces a detached Ed25519 signature over message.
func Sign(privateKey ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(privateKey, message)
}

// Verify checks a detached Ed25519 signature. It returns (false, nil) for a
// structurally valid but non-matching signature, and a non-nil error only
// when the public key itself is malformed.
func Verify(publicKey, message, signature []byte) (bool, error) {
	if err := ValidatePublicKey(publicKey); err != nil {
		return false, err
	}
	return ed25519.Verify(publicKey, message, signature), nil
}

// VerifyIdentity mirrors Verify but never surfaces a signature mismatch as
// an error — only a malformed public key is an error. This matches the
// challenge-proof contract, which folds "signature didn't verify" into a
// uniform authentication-failed outcome at the caller.
func VerifyIdentity(publicKey, message, signature []byte) (bool, error) {
	return Verify(publicKey, message, signature)
}

// ProofTranscript builds the exact byte sequence signed (and verified) for
// a challenge proof: userID || '|' || deviceID || '|' || timestampSeconds.
func ProofTranscript(userID, deviceID string, timestampSeconds int64) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", userID, deviceID, timestampSeconds))
}
