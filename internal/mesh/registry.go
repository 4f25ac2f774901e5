// Package mesh implements mesh membership: the owner-approval workflow
// that admits devices into a mesh, and the connection-time enforcer that
// gates access to mesh-scoped routing on that membership.
package mesh

import (
	"errors"
	"sync"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

var ErrMembershipNotFound = errors.New("mesh: no membership record")

// Store persists mesh membership records.
type Store interface {
	Put(m models.MeshMembership) error
	Get(deviceID string) (models.MeshMembership, bool, error)
	ListByOwner(ownerUser string) ([]models.MeshMembership, error)
}

// MemoryStore is a mutex-guarded in-memory Store, indexed by device ID
// with a secondary scan-free index by owning user.
type MemoryStore struct {
	mu       sync.Mutex
	members  map[string]models.MeshMembership
	byOwner  map[string]map[string]bool // ownerUser -> set of deviceID
}

// NewMemoryStore creates an empty in-memory membership store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		members: make(map[string]models.MeshMembership),
		byOwner: make(map[string]map[string]bool),
	}
}

func (s *MemoryStore) Put(m models.MeshMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prior, ok := s.members[m.Device]; ok && prior.OwnerUser != m.OwnerUser {
		delete(s.byOwner[prior.OwnerUser], m.Device)
	}
	s.members[m.Device] = m
	if s.byOwner[m.OwnerUser] == nil {
		s.byOwner[m.OwnerUser] = make(map[string]bool)
	}
	s.byOwner[m.OwnerUser][m.Device] = true
	return nil
}

func (s *MemoryStore) Get(deviceID string) (models.MeshMembership, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[deviceID]
	return m, ok, nil
}

func (s *MemoryStore) ListByOwner(ownerUser string) ([]models.MeshMembership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.MeshMembership, 0, len(s.byOwner[ownerUser]))
	for deviceID := range s.byOwner[ownerUser] {
		out = append(out, s.members[deviceID])
	}
	return out, nil
}

// Registry runs the mesh owner-approval workflow: a device requests to
// join, and the mesh owner explicitly approves or rejects it.
type Registry struct {
	store Store
	now   func() time.Time
}

// NewRegistry creates a Registry backed by store.
func NewRegistry(store Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// ApproveDevice admits deviceID into ownerUser's mesh with the given role,
// setting role and active atomically — a device is never left active
// without a role or vice versa.
func (r *Registry) ApproveDevice(deviceID, ownerUser string, role models.MeshRole) error {
	return r.store.Put(models.MeshMembership{
		Device:       deviceID,
		OwnerUser:    ownerUser,
		Role:         role,
		Active:       true,
		RegisteredAt: r.now(),
		LastSeen:     r.now(),
	})
}

// RejectDevice deactivates deviceID's membership without altering its role
// or ownership record, preserving history for audit.
func (r *Registry) RejectDevice(deviceID string) error {
	m, ok, err := r.store.Get(deviceID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrMembershipNotFound
	}
	m.Active = false
	return r.store.Put(m)
}

// Get returns the membership record for deviceID, if any.
func (r *Registry) Get(deviceID string) (models.MeshMembership, bool, error) {
	return r.store.Get(deviceID)
}

// ListByOwner returns every membership record owned by ownerUser.
func (r *Registry) ListByOwner(ownerUser string) ([]models.MeshMembership, error) {
	return r.store.ListByOwner(ownerUser)
}
