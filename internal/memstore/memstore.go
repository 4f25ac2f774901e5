// Package memstore provides an in-memory implementation of store.Store,
// suitable for tests and single-process deployments.
package memstore

import (
	"context"
	"sync"

	"github.com/edda-mesh/bifrost-heimdall/internal/challenge"
	"github.com/edda-mesh/bifrost-heimdall/internal/mesh"
	"github.com/edda-mesh/bifrost-heimdall/internal/store"
	"github.com/edda-mesh/bifrost-heimdall/internal/token"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// MemoryStore composes the already-built per-entity memory stores into a
// single store.Store, delegating explicitly to each (rather than
// embedding, since challenge/token/mesh all happen to define a same-named
// Put method with different signatures) and adding only the
// device-identity bookkeeping none of those subsystems own.
type MemoryStore struct {
	challenges *challenge.MemoryStore
	tokens     *token.MemoryStore
	memberships *mesh.MemoryStore

	mu      sync.Mutex
	devices map[string]models.Device
}

// New creates an empty in-memory Plane store.
func New() *MemoryStore {
	return &MemoryStore{
		challenges:  challenge.NewMemoryStore(),
		tokens:      token.NewMemoryStore(),
		memberships: mesh.NewMemoryStore(),
		devices:     make(map[string]models.Device),
	}
}

var _ store.Store = (*MemoryStore)(nil)

// -- challenge-shaped methods --

func (s *MemoryStore) PutChallenge(c models.Challenge) error { return s.challenges.Put(c) }

func (s *MemoryStore) GetChallenge(challengeID string) (models.Challenge, bool, error) {
	return s.challenges.Get(challengeID)
}

func (s *MemoryStore) MarkChallengeConsumed(challengeID string) error {
	return s.challenges.MarkConsumed(challengeID)
}

// -- token-shaped methods --

func (s *MemoryStore) PutToken(t models.Token) error { return s.tokens.Put(t) }

func (s *MemoryStore) GetToken(tokenID string) (models.Token, bool, error) {
	return s.tokens.Get(tokenID)
}

func (s *MemoryStore) RevokeToken(tokenID string) error { return s.tokens.Revoke(tokenID) }

// -- mesh-shaped methods --

func (s *MemoryStore) PutMembership(m models.MeshMembership) error { return s.memberships.Put(m) }

func (s *MemoryStore) GetMembership(deviceID string) (models.MeshMembership, bool, error) {
	return s.memberships.Get(deviceID)
}

func (s *MemoryStore) ListMembershipsByOwner(ownerUser string) ([]models.MeshMembership, error) {
	return s.memberships.ListByOwner(ownerUser)
}

// -- device identity --

func (s *MemoryStore) PutDevice(_ context.Context, d models.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[d.DeviceID] = d
	return nil
}

func (s *MemoryStore) GetDevice(_ context.Context, deviceID string) (models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.devices[deviceID]
	if !ok {
		return models.Device{}, store.ErrNotFound
	}
	return d, nil
}

func (s *MemoryStore) ListDevicesByUser(_ context.Context, userID string) ([]models.Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Device
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}
