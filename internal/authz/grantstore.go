package authz

import (
	"sync"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// GrantStore holds permission grants keyed by subject. A subject is
// either a user ID or a mesh role name (e.g. "admin"), matching
// PermissionGrant.Subject's dual use: a grant issued directly to a user,
// or one that applies to every device carrying a given mesh role.
type GrantStore struct {
	mu        sync.Mutex
	bySubject map[string][]models.PermissionGrant
}

// NewGrantStore creates an empty grant store.
func NewGrantStore() *GrantStore {
	return &GrantStore{bySubject: make(map[string][]models.PermissionGrant)}
}

// Add records a grant under its own Subject.
func (s *GrantStore) Add(g models.PermissionGrant) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bySubject[g.Subject] = append(s.bySubject[g.Subject], g)
}

// ForSubject returns every grant recorded for subject, in insertion order.
func (s *GrantStore) ForSubject(subject string) []models.PermissionGrant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PermissionGrant, len(s.bySubject[subject]))
	copy(out, s.bySubject[subject])
	return out
}

// RoleResolver resolves the mesh role a device currently carries, so
// CheckPermission can evaluate role-scoped grants alongside the user's
// own. An inactive or unknown device resolves to the empty role.
type RoleResolver interface {
	RoleForDevice(deviceID string) (string, error)
}

// CheckPermission resolves the grants applicable to userID and to the
// mesh role deviceID carries, and returns Allowed if any of them permits
// req. Grants are never accepted from the caller directly; they are
// always looked up here.
func (e *Engine) CheckPermission(grants *GrantStore, roles RoleResolver, userID, deviceID string, req Request) (models.Decision, error) {
	userReq := req
	userReq.Subject = userID
	for _, g := range grants.ForSubject(userID) {
		allowed, err := e.Evaluate(g, userReq)
		if err != nil {
			return models.Denied, err
		}
		if allowed {
			return models.Allowed, nil
		}
	}

	role, err := roles.RoleForDevice(deviceID)
	if err != nil {
		return models.Denied, err
	}
	if role != "" {
		roleReq := req
		roleReq.Subject = role
		for _, g := range grants.ForSubject(role) {
			allowed, err := e.Evaluate(g, roleReq)
			if err != nil {
				return models.Denied, err
			}
			if allowed {
				return models.Allowed, nil
			}
		}
	}

	return models.Denied, nil
}
