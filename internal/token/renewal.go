package token

import (
	"time"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// ShouldRenew reports whether a token is close enough to expiry (within
// proactiveRenewal) that the holder should renew it before it lapses.
func ShouldRenew(t models.Token, proactiveRenewal time.Duration, now time.Time) bool {
	return t.ExpiresAt.Sub(now) <= proactiveRenewal
}

// RenewWithRefreshToken validates a refresh token and, if valid, mints a
// fresh session token for the same subject. It rejects any token whose
// Kind is not TokenRefresh, since session tokens cannot renew themselves.
func (s *Service) RenewWithRefreshToken(refresh models.Token, sessionTTL time.Duration) (models.Token, error) {
	if refresh.Kind != models.TokenRefresh {
		return models.Token{}, ErrWrongKind
	}
	if _, err := s.Validate(refresh); err != nil {
		return models.Token{}, err
	}
	return s.Mint(models.TokenSession, refresh.SubjectDevice, refresh.SubjectUser, refresh.Payload, sessionTTL)
}
