package planeapi

import (
	"net/http"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/authz"
	"github.com/edda-mesh/bifrost-heimdall/internal/mesh"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// meshRoleResolver adapts a mesh.Registry to authz.RoleResolver: an
// inactive or unrecorded device carries no role.
type meshRoleResolver struct{ reg *mesh.Registry }

func (m meshRoleResolver) RoleForDevice(deviceID string) (string, error) {
	membership, ok, err := m.reg.Get(deviceID)
	if err != nil {
		return "", err
	}
	if !ok || !membership.Active {
		return "", nil
	}
	return string(membership.Role), nil
}

type evaluatePermissionRequest struct {
	UserID       string            `json:"user_id"`
	DeviceID     string            `json:"device_id"`
	ResourceType string            `json:"resource_type"`
	Action       string            `json:"action"`
	ClientIP     string            `json:"client_ip"`
	Context      map[string]string `json:"context"`
}

// evaluatePermission resolves the grants applicable to the requesting
// user and to the mesh role their device carries, and evaluates both
// against the requested resource/action. The caller never supplies a
// grant directly.
func (h *handlers) evaluatePermission(w http.ResponseWriter, r *http.Request) {
	var req evaluatePermissionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errMissingDeviceID)
		return
	}

	decision, err := h.deps.Authz.CheckPermission(h.deps.Grants, meshRoleResolver{reg: h.deps.MeshReg}, req.UserID, req.DeviceID, authz.Request{
		ResourceType: req.ResourceType,
		Action:       req.Action,
		ClientIP:     req.ClientIP,
		Context:      req.Context,
		Now:          time.Now(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.Decision{"decision": decision})
}

type addGrantRequest struct {
	Grant models.PermissionGrant `json:"grant"`
}

// addGrant records a permission grant under its subject (a user ID or a
// mesh role name), making it available to subsequent evaluatePermission
// calls for that subject.
func (h *handlers) addGrant(w http.ResponseWriter, r *http.Request) {
	var req addGrantRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.Grant.Subject == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}
	h.deps.Grants.Add(req.Grant)
	writeJSON(w, http.StatusCreated, map[string]bool{"added": true})
}
