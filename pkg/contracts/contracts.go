// Package contracts defines the capability interfaces at the boundary
// between this module's wiring (pkg/broker, pkg/plane) and the concrete
// subsystem implementations in internal/. Deployments that need an
// alternate backing — a different relay transport, a managed NAT
// traversal provider, a different store — implement one of these
// interfaces and inject it via the Server structs' exported fields,
// without importing internal/ directly.
package contracts

import (
	"context"

	"github.com/edda-mesh/bifrost-heimdall/internal/mesh"
	"github.com/edda-mesh/bifrost-heimdall/internal/message"
	"github.com/edda-mesh/bifrost-heimdall/internal/natutil"
	"github.com/edda-mesh/bifrost-heimdall/internal/store"
)

// Store is an alias for the Plane's persistence interface, exposed here so
// callers outside this module's internal/ tree can reference it.
type Store = store.Store

// ErrNotFound is an alias for the store's not-found sentinel.
var ErrNotFound = store.ErrNotFound

// RelayClient delivers a message to a device this instance has no live
// local connection to, via an external relay (Asgard or Yggdrasil in this
// deployment's terms).
type RelayClient interface {
	Deliver(ctx context.Context, env message.Envelope) error
}

// MeshMembershipProvider is the capability internal/mesh.Enforcer checks
// connection attempts against. A deployment with an external membership
// source (an org directory, say) implements this instead of relying on
// internal/mesh.RegistryProvider.
type MeshMembershipProvider interface {
	IsUserInMesh(userID string) (bool, error)
	IsDeviceInMesh(deviceID string) (bool, error)
}

// STUNClientProvider is the capability a real NAT-traversal backend
// implements; internal/natutil.UnavailableSTUNClient is the no-op default.
type STUNClientProvider = natutil.STUNClient

var _ mesh.Provider = (MeshMembershipProvider)(nil)
