// Package store declares the Plane's persistence surface. It uses its own
// uniquely-named methods per entity (rather than embedding the narrower
// challenge.Store/token.Store/mesh.Store interfaces directly) since those
// three interfaces each happen to define a same-named Put/Get pair with
// different signatures, which a single concrete type cannot satisfy at
// once. Adapter types in this package bridge a Store to each of those
// narrower interfaces for the subsystem that needs it.
package store

import (
	"context"
	"errors"

	"github.com/edda-mesh/bifrost-heimdall/internal/challenge"
	"github.com/edda-mesh/bifrost-heimdall/internal/mesh"
	"github.com/edda-mesh/bifrost-heimdall/internal/token"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// DeviceKeyAdapter exposes a Store's registered device public keys as a
// challenge.DeviceKeyLookup, for handing to challenge.NewIssuer.
type DeviceKeyAdapter struct{ Store Store }

func (a DeviceKeyAdapter) PublicKeyForDevice(deviceID string) ([]byte, error) {
	d, err := a.Store.GetDevice(context.Background(), deviceID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.PublicKey, nil
}

var _ challenge.DeviceKeyLookup = DeviceKeyAdapter{}

// ErrNotFound is returned by lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// Store is the Plane's full persistence surface.
type Store interface {
	PutDevice(ctx context.Context, d models.Device) error
	GetDevice(ctx context.Context, deviceID string) (models.Device, error)
	ListDevicesByUser(ctx context.Context, userID string) ([]models.Device, error)

	PutChallenge(c models.Challenge) error
	GetChallenge(challengeID string) (models.Challenge, bool, error)
	MarkChallengeConsumed(challengeID string) error

	PutToken(t models.Token) error
	GetToken(tokenID string) (models.Token, bool, error)
	RevokeToken(tokenID string) error

	PutMembership(m models.MeshMembership) error
	GetMembership(deviceID string) (models.MeshMembership, bool, error)
	ListMembershipsByOwner(ownerUser string) ([]models.MeshMembership, error)
}

// ChallengeAdapter exposes a Store's challenge-shaped methods as a
// challenge.Store, for handing to challenge.NewIssuer.
type ChallengeAdapter struct{ Store Store }

func (a ChallengeAdapter) Put(c models.Challenge) error { return a.Store.PutChallenge(c) }
func (a ChallengeAdapter) Get(challengeID string) (models.Challenge, bool, error) {
	return a.Store.GetChallenge(challengeID)
}
func (a ChallengeAdapter) MarkConsumed(challengeID string) error {
	return a.Store.MarkChallengeConsumed(challengeID)
}

var _ challenge.Store = ChallengeAdapter{}

// TokenAdapter exposes a Store's token-shaped methods as a token.Store,
// for handing to token.NewService.
type TokenAdapter struct{ Store Store }

func (a TokenAdapter) Put(t models.Token) error { return a.Store.PutToken(t) }
func (a TokenAdapter) Get(tokenID string) (models.Token, bool, error) {
	return a.Store.GetToken(tokenID)
}
func (a TokenAdapter) Revoke(tokenID string) error { return a.Store.RevokeToken(tokenID) }

var _ token.Store = TokenAdapter{}

// MeshAdapter exposes a Store's membership-shaped methods as a
// mesh.Store, for handing to mesh.NewRegistry.
type MeshAdapter struct{ Store Store }

func (a MeshAdapter) Put(m models.MeshMembership) error { return a.Store.PutMembership(m) }
func (a MeshAdapter) Get(deviceID string) (models.MeshMembership, bool, error) {
	return a.Store.GetMembership(deviceID)
}
func (a MeshAdapter) ListByOwner(ownerUser string) ([]models.MeshMembership, error) {
	return a.Store.ListMembershipsByOwner(ownerUser)
}

var _ mesh.Store = MeshAdapter{}
