// Package token implements the Authorization Plane's credential lifecycle:
// minting, signature/expiry/revocation validation, rotation, renewal, and
// cross-device leak detection.
package token

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/cache"
	"github.com/edda-mesh/bifrost-heimdall/internal/cryptoutil"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
	"github.com/google/uuid"
)

var (
	ErrTokenNotFound = errors.New("token: not found")
	ErrTokenExpired  = errors.New("token: expired")
	ErrTokenRevoked  = errors.New("token: revoked")
	ErrBadSignature  = errors.New("token: signature did not verify")
	ErrWrongKind     = errors.New("token: wrong kind for this operation")
)

// canonicalForm builds the exact bytes signed over a token: everything
// except the signature itself, so verification is order-independent of how
// the token was transmitted.
func canonicalForm(t models.Token) ([]byte, error) {
	clone := t
	clone.Signature = nil
	return json.Marshal(clone)
}

// Service mints and validates tokens, signing with the Plane's own Ed25519
// keypair (as distinct from the per-device keys challenge/proof verifies).
type Service struct {
	store      Store
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
	validation *cache.TTLCache[models.Decision]
	now        func() time.Time
}

// NewService creates a token service signing with the given Plane keypair.
func NewService(store Store, pub ed25519.PublicKey, priv ed25519.PrivateKey, validationTTL time.Duration) *Service {
	return &Service{
		store:      store,
		publicKey:  pub,
		privateKey: priv,
		validation: cache.New[models.Decision](validationTTL),
		now:        time.Now,
	}
}

// Mint creates, signs, and persists a new token of the given kind.
func (s *Service) Mint(kind models.TokenKind, deviceID, userID string, payload models.TokenPayload, ttl time.Duration) (models.Token, error) {
	t := models.Token{
		TokenID:       uuid.NewString(),
		Kind:          kind,
		SubjectDevice: deviceID,
		SubjectUser:   userID,
		IssuedAt:      s.now(),
		ExpiresAt:     s.now().Add(ttl),
		Payload:       payload,
	}
	form, err := canonicalForm(t)
	if err != nil {
		return models.Token{}, fmt.Errorf("token: canonicalizing: %w", err)
	}
	t.Signature = cryptoutil.Sign(s.privateKey, form)
	if err := s.store.Put(t); err != nil {
		return models.Token{}, err
	}
	return t, nil
}

// Validate checks, in order, the signature, the expiry, the validation
// cache and the store's revocation record, terminating at the first
// failure. A cache hit skips the store lookup; Revoke evicts the cached
// decision, so a revocation is still observed. A cached denial is returned
// without the error that produced it.
func (s *Service) Validate(t models.Token) (models.Decision, error) {
	form, err := canonicalForm(t)
	if err != nil {
		return models.Denied, fmt.Errorf("token: canonicalizing: %w", err)
	}
	ok, err := cryptoutil.Verify(s.publicKey, form, t.Signature)
	if err != nil {
		return models.Denied, err
	}
	if !ok {
		return models.Denied, ErrBadSignature
	}

	if !s.now().Before(t.ExpiresAt) {
		s.validation.Set(t.TokenID, models.Denied)
		return models.Denied, ErrTokenExpired
	}

	if cached, hit := s.validation.Get(t.TokenID); hit {
		return cached, nil
	}

	stored, found, err := s.store.Get(t.TokenID)
	if err != nil {
		return models.Denied, err
	}
	if !found {
		return models.Denied, ErrTokenNotFound
	}
	if stored.Revoked {
		s.validation.Set(t.TokenID, models.Denied)
		return models.Denied, ErrTokenRevoked
	}

	s.validation.Set(t.TokenID, models.Allowed)
	return models.Allowed, nil
}

// Revoke marks a token revoked and evicts any cached validation decision
// for it, so the next Validate call observes the revocation immediately.
func (s *Service) Revoke(tokenID string) error {
	if err := s.store.Revoke(tokenID); err != nil {
		return err
	}
	s.validation.Invalidate(tokenID)
	return nil
}
