package planeapi

import (
	"net/http"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

type mintTokenRequest struct {
	Kind     models.TokenKind    `json:"kind"`
	DeviceID string              `json:"device_id"`
	UserID   string              `json:"user_id"`
	Payload  models.TokenPayload `json:"payload"`
	TTL      string              `json:"ttl"`
}

func (h *handlers) mintToken(w http.ResponseWriter, r *http.Request) {
	var req mintTokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ttl, err := time.ParseDuration(req.TTL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	tok, err := h.deps.Tokens.Mint(req.Kind, req.DeviceID, req.UserID, req.Payload, ttl)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if h.deps.Leaks != nil {
		h.deps.Leaks.RecordUsage(tok.TokenID, req.DeviceID)
	}
	writeJSON(w, http.StatusCreated, tok)
}

type tokenEnvelopeRequest struct {
	Token models.Token `json:"token"`
}

func (h *handlers) validateToken(w http.ResponseWriter, r *http.Request) {
	var req tokenEnvelopeRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if h.deps.Leaks != nil {
		h.deps.Leaks.RecordUsage(req.Token.TokenID, req.Token.SubjectDevice)
		if alert := h.deps.Leaks.CheckAnomaly(req.Token.TokenID); alert != nil {
			h.deps.Log.Warn().
				Str("token_id", alert.TokenID).
				Int("distinct_devices", alert.DistinctDevices).
				Time("first_seen", alert.FirstSeen).
				Time("last_seen", alert.LastSeen).
				Msg("token leak suspected")
		}
	}

	decision, err := h.deps.Tokens.Validate(req.Token)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"decision": decision, "error": errUnauthenticated.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"decision": decision})
}

type rotateTokenRequest struct {
	Token models.Token `json:"token"`
	TTL   string       `json:"ttl"`
}

func (h *handlers) rotateToken(w http.ResponseWriter, r *http.Request) {
	var req rotateTokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ttl, err := time.ParseDuration(req.TTL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	fresh, err := h.deps.Tokens.Rotate(req.Token, ttl)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, fresh)
}

type renewTokenRequest struct {
	RefreshToken models.Token `json:"refresh_token"`
	SessionTTL   string       `json:"session_ttl"`
}

func (h *handlers) renewToken(w http.ResponseWriter, r *http.Request) {
	var req renewTokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	ttl, err := time.ParseDuration(req.SessionTTL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	session, err := h.deps.Tokens.RenewWithRefreshToken(req.RefreshToken, ttl)
	if err != nil {
		writeError(w, http.StatusUnauthorized, errUnauthenticated)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type revokeTokenRequest struct {
	TokenID string `json:"token_id"`
}

func (h *handlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	var req revokeTokenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.TokenID == "" {
		writeError(w, http.StatusBadRequest, errMissingTokenID)
		return
	}
	if err := h.deps.Tokens.Revoke(req.TokenID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
