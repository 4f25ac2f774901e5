package token

import (
	"time"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// ShouldRotate reports whether a token has aged past the rotation
// threshold and should be replaced on its next use.
func ShouldRotate(t models.Token, rotationInterval time.Duration, now time.Time) bool {
	return now.Sub(t.IssuedAt) >= rotationInterval
}

// Rotate validates the current token, mints a fresh one of the same kind,
// subject, and payload with ttl, and revokes the old token. The old
// token's validity is re-checked rather than assumed, since a caller could
// request rotation of a token that was revoked between issuance and now.
func (s *Service) Rotate(old models.Token, ttl time.Duration) (models.Token, error) {
	if _, err := s.Validate(old); err != nil {
		return models.Token{}, err
	}
	fresh, err := s.Mint(old.Kind, old.SubjectDevice, old.SubjectUser, old.Payload, ttl)
	if err != nil {
		return models.Token{}, err
	}
	if err := s.Revoke(old.TokenID); err != nil {
		return models.Token{}, err
	}
	return fresh, nil
}
