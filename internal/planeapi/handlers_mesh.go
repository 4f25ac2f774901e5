package planeapi

import (
	"net/http"

	"github.com/edda-mesh/bifrost-heimdall/internal/mesh"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

type validateConnectionRequest struct {
	UserID   string `json:"user_id"`
	DeviceID string `json:"device_id"`
}

func (h *handlers) validateConnection(w http.ResponseWriter, r *http.Request) {
	var req validateConnectionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := h.deps.MeshEnf.AllowConnection(req.UserID, req.DeviceID)
	if err != nil {
		writeJSON(w, http.StatusForbidden, map[string]string{"code": mesh.ClientMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": true})
}

type approveDeviceRequest struct {
	DeviceID  string          `json:"device_id"`
	OwnerUser string          `json:"owner_user"`
	Role      models.MeshRole `json:"role"`
}

func (h *handlers) approveDevice(w http.ResponseWriter, r *http.Request) {
	var req approveDeviceRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errMissingDeviceID)
		return
	}

	if err := h.deps.MeshReg.ApproveDevice(req.DeviceID, req.OwnerUser, req.Role); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"approved": true})
}

type rejectDeviceRequest struct {
	DeviceID string `json:"device_id"`
}

func (h *handlers) rejectDevice(w http.ResponseWriter, r *http.Request) {
	var req rejectDeviceRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := h.deps.MeshReg.RejectDevice(req.DeviceID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"rejected": true})
}
