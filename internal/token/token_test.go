package token

import (
	"crypto/ed25519"
	"testing"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return NewService(NewMemoryStore(), pub, priv, 30*time.Second)
}

func TestMintThenValidateRoundTrip(t *testing.T) {
	s := newTestService(t)
	tok, err := s.Mint(models.TokenSession, "dev1", "user1", models.TokenPayload{Roles: []string{"user"}}, time.Hour)
	require.NoError(t, err)

	decision, err := s.Validate(tok)
	require.NoError(t, err)
	require.Equal(t, models.Allowed, decision)
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	s := newTestService(t)
	tick := time.Now()
	s.now = func() time.Time { return tick }
	tok, err := s.Mint(models.TokenSession, "dev1", "user1", models.TokenPayload{}, time.Minute)
	require.NoError(t, err)

	s.now = func() time.Time { return tick.Add(2 * time.Minute) }
	_, err = s.Validate(tok)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateRejectsTamperedSignature(t *testing.T) {
	s := newTestService(t)
	tok, err := s.Mint(models.TokenSession, "dev1", "user1", models.TokenPayload{}, time.Hour)
	require.NoError(t, err)
	tok.Signature[0] ^= 0xFF

	_, err = s.Validate(tok)
	require.ErrorIs(t, err, ErrBadSignature)
}

func TestRevokePropagatesThroughValidationCache(t *testing.T) {
	s := newTestService(t)
	tok, err := s.Mint(models.TokenSession, "dev1", "user1", models.TokenPayload{}, time.Hour)
	require.NoError(t, err)

	decision, err := s.Validate(tok)
	require.NoError(t, err)
	require.Equal(t, models.Allowed, decision)

	require.NoError(t, s.Revoke(tok.TokenID))

	_, err = s.Validate(tok)
	require.ErrorIs(t, err, ErrTokenRevoked)
}

func TestRotateMintsFreshAndRevokesOld(t *testing.T) {
	s := newTestService(t)
	old, err := s.Mint(models.TokenSession, "dev1", "user1", models.TokenPayload{}, time.Hour)
	require.NoError(t, err)

	fresh, err := s.Rotate(old, time.Hour)
	require.NoError(t, err)
	require.NotEqual(t, old.TokenID, fresh.TokenID)

	_, err = s.Validate(old)
	require.ErrorIs(t, err, ErrTokenRevoked)

	decision, err := s.Validate(fresh)
	require.NoError(t, err)
	require.Equal(t, models.Allowed, decision)
}

func TestShouldRotateAndShouldRenewThresholds(t *testing.T) {
	now := time.Now()
	tok := models.Token{IssuedAt: now.Add(-15 * time.Minute), ExpiresAt: now.Add(time.Minute)}
	require.True(t, ShouldRotate(tok, 10*time.Minute, now))
	require.True(t, ShouldRenew(tok, 2*time.Minute, now))

	fresh := models.Token{IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	require.False(t, ShouldRotate(fresh, 10*time.Minute, now))
	require.False(t, ShouldRenew(fresh, 2*time.Minute, now))
}

func TestRenewWithRefreshTokenRejectsWrongKind(t *testing.T) {
	s := newTestService(t)
	sessionTok, err := s.Mint(models.TokenSession, "dev1", "user1", models.TokenPayload{}, time.Hour)
	require.NoError(t, err)

	_, err = s.RenewWithRefreshToken(sessionTok, 15*time.Minute)
	require.ErrorIs(t, err, ErrWrongKind)
}

func TestRenewWithRefreshTokenMintsNewSession(t *testing.T) {
	s := newTestService(t)
	refresh, err := s.Mint(models.TokenRefresh, "dev1", "user1", models.TokenPayload{Roles: []string{"user"}}, 30*24*time.Hour)
	require.NoError(t, err)

	session, err := s.RenewWithRefreshToken(refresh, 15*time.Minute)
	require.NoError(t, err)
	require.Equal(t, models.TokenSession, session.Kind)
	require.Equal(t, refresh.SubjectDevice, session.SubjectDevice)
}

func TestLeakDetectorAlertsAboveThreshold(t *testing.T) {
	d := NewLeakDetector(2, time.Minute)
	d.RecordUsage("tok1", "dev1")
	d.RecordUsage("tok1", "dev2")
	require.Nil(t, d.CheckAnomaly("tok1"))

	d.RecordUsage("tok1", "dev3")
	alert := d.CheckAnomaly("tok1")
	require.NotNil(t, alert)
	require.Equal(t, 3, alert.DistinctDevices)
	require.NotEmpty(t, alert.Message)
	require.False(t, alert.FirstSeen.IsZero())
	require.False(t, alert.LastSeen.IsZero())
}

func TestLeakDetectorDoesNotRealertWhileStillOverThreshold(t *testing.T) {
	d := NewLeakDetector(2, time.Minute)
	d.RecordUsage("tok1", "dev1")
	d.RecordUsage("tok1", "dev2")
	d.RecordUsage("tok1", "dev3")
	require.NotNil(t, d.CheckAnomaly("tok1"))
	require.Nil(t, d.CheckAnomaly("tok1"))

	d.RecordUsage("tok1", "dev4")
	require.Nil(t, d.CheckAnomaly("tok1"))
}

func TestLeakDetectorPrunesUsageOutsideWindow(t *testing.T) {
	d := NewLeakDetector(2, time.Minute)
	tick := time.Now()
	d.now = func() time.Time { return tick }
	d.RecordUsage("tok1", "dev1")
	d.RecordUsage("tok1", "dev2")

	d.now = func() time.Time { return tick.Add(2 * time.Minute) }
	d.RecordUsage("tok1", "dev3")
	require.Nil(t, d.CheckAnomaly("tok1"))
}

func TestLeakDetectorUsageByDevice(t *testing.T) {
	d := NewLeakDetector(5, time.Minute)
	d.RecordUsage("tok1", "dev1")
	d.RecordUsage("tok1", "dev1")
	d.RecordUsage("tok1", "dev2")

	usage := d.GetUsageByDevice("tok1")
	require.Equal(t, 2, usage["dev1"])
	require.Equal(t, 1, usage["dev2"])
}
