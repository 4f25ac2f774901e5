package planeapi

import (
	"net/http"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/challenge"
	"github.com/edda-mesh/bifrost-heimdall/internal/cryptoutil"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

type handlers struct {
	deps Deps
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerDeviceRequest struct {
	DeviceID  string `json:"device_id"`
	UserID    string `json:"user_id"`
	PublicKey []byte `json:"public_key"`
}

// registerDevice binds a device ID to the Ed25519 public key it will
// later prove possession of during the challenge/proof handshake. The
// Plane trusts only keys recorded here, never one a proof itself carries.
func (h *handlers) registerDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errMissingDeviceID)
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errMissingUserID)
		return
	}
	if err := cryptoutil.ValidatePublicKey(req.PublicKey); err != nil {
		writeError(w, http.StatusBadRequest, errBadPublicKey)
		return
	}

	d := models.Device{
		DeviceID:     req.DeviceID,
		UserID:       req.UserID,
		PublicKey:    req.PublicKey,
		RegisteredAt: time.Now(),
		MeshRole:     models.RoleNone,
		Active:       true,
	}
	if err := h.deps.Store.PutDevice(r.Context(), d); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]bool{"registered": true})
}

type issueChallengeRequest struct {
	DeviceID string `json:"device_id"`
}

type issueChallengeResponse struct {
	ChallengeID string `json:"challenge_id"`
	Nonce       []byte `json:"nonce"`
	ExpiresAt   string `json:"expires_at"`
}

func (h *handlers) issueChallenge(w http.ResponseWriter, r *http.Request) {
	var req issueChallengeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errMissingDeviceID)
		return
	}

	c, err := h.deps.Challenges.Issue(req.DeviceID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, issueChallengeResponse{
		ChallengeID: c.ChallengeID,
		Nonce:       c.Nonce,
		ExpiresAt:   c.ExpiresAt.Format(timeLayout),
	})
}

type verifyProofRequest struct {
	ChallengeID string `json:"challenge_id"`
	UserID      string `json:"user_id"`
	DeviceID    string `json:"device_id"`
	Timestamp   int64  `json:"timestamp"`
	Signature   []byte `json:"signature"`
}

type verifyProofResponse struct {
	Verified     bool         `json:"verified"`
	SessionToken models.Token `json:"session_token"`
	RefreshToken models.Token `json:"refresh_token"`
}

// verifyProof checks a device's signed challenge response and, on
// success, mints the session+refresh token pair the device authenticates
// subsequent traffic with.
func (h *handlers) verifyProof(w http.ResponseWriter, r *http.Request) {
	var req verifyProofRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err := h.deps.Challenges.VerifyProof(challenge.Proof{
		ChallengeID: req.ChallengeID,
		UserID:      req.UserID,
		DeviceID:    req.DeviceID,
		Timestamp:   req.Timestamp,
		Signature:   req.Signature,
	})
	if err != nil {
		h.deps.Log.Debug().Str("device_id", req.DeviceID).Err(err).Msg("proof verification failed")
		writeError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}

	session, err := h.deps.Tokens.Mint(models.TokenSession, req.DeviceID, req.UserID, models.TokenPayload{}, h.deps.SessionTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	refresh, err := h.deps.Tokens.Mint(models.TokenRefresh, req.DeviceID, req.UserID, models.TokenPayload{}, h.deps.RefreshTTL)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.deps.Leaks != nil {
		h.deps.Leaks.RecordUsage(session.TokenID, req.DeviceID)
	}

	writeJSON(w, http.StatusOK, verifyProofResponse{Verified: true, SessionToken: session, RefreshToken: refresh})
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"
