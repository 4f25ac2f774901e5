package mesh

import "errors"

// ErrAccessDenied means the membership check completed and the user or
// device is definitively not an active mesh member.
var ErrAccessDenied = errors.New("mesh: access denied")

// ErrCheckFailed means the membership check itself could not be
// completed — distinct from ErrAccessDenied so callers relay a different
// wire message ("MESH_CHECK_ERROR" vs "MESH_ACCESS_DENIED") to the client.
var ErrCheckFailed = errors.New("mesh: membership check failed")

// Provider is the minimal membership surface the Enforcer needs.
type Provider interface {
	IsUserInMesh(userID string) (bool, error)
	IsDeviceInMesh(deviceID string) (bool, error)
}

// Enforcer gates connection attempts on mesh membership. It fails closed:
// any error from the underlying provider is treated as "cannot connect",
// never as "allow by default".
type Enforcer struct {
	provider Provider
	enforce  bool
}

// NewEnforcer creates an Enforcer. When enforce is false, AllowConnection
// always succeeds — used to disable mesh gating entirely via configuration.
func NewEnforcer(provider Provider, enforce bool) *Enforcer {
	return &Enforcer{provider: provider, enforce: enforce}
}

// AllowConnection checks that both userID and deviceID are active mesh
// members. A backend error on either check returns ErrCheckFailed at once
// (the device check is skipped when the user check errors); ErrAccessDenied
// is decided only after both checks succeed, so it never masks a backend
// error.
func (e *Enforcer) AllowConnection(userID, deviceID string) error {
	if !e.enforce {
		return nil
	}

	userIn, err := e.provider.IsUserInMesh(userID)
	if err != nil {
		return ErrCheckFailed
	}
	deviceIn, err := e.provider.IsDeviceInMesh(deviceID)
	if err != nil {
		return ErrCheckFailed
	}
	if !userIn || !deviceIn {
		return ErrAccessDenied
	}
	return nil
}

// ClientMessage maps an AllowConnection error to the wire-level code sent
// back to the rejected client.
func ClientMessage(err error) string {
	switch {
	case errors.Is(err, ErrAccessDenied):
		return "MESH_ACCESS_DENIED"
	case errors.Is(err, ErrCheckFailed):
		return "MESH_CHECK_ERROR"
	default:
		return ""
	}
}
