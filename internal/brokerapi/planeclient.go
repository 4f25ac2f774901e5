package brokerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// TokenPair is the session+refresh credentials the Plane mints on a
// successful proof.
type TokenPair struct {
	Session models.Token
	Refresh models.Token
}

// PlaneClient is the Broker's view of the Authorization Plane: the subset
// of Plane-facing interfaces a live connection's handshake needs.
type PlaneClient interface {
	IssueChallenge(ctx context.Context, deviceID string) (models.Challenge, error)
	VerifyProof(ctx context.Context, challengeID, userID, deviceID string, timestamp int64, signature []byte) (TokenPair, error)
	ValidateConnection(ctx context.Context, userID, deviceID string) error
}

// HTTPPlaneClient calls the Plane's REST surface over HTTP.
type HTTPPlaneClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewHTTPPlaneClient creates a client targeting the Plane's base URL
// (e.g. "http://heimdall:7100").
func NewHTTPPlaneClient(baseURL string) *HTTPPlaneClient {
	return &HTTPPlaneClient{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: 5 * time.Second}}
}

func (c *HTTPPlaneClient) postJSON(ctx context.Context, path string, body, out interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brokerapi: plane returned status %d for %s", resp.StatusCode, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *HTTPPlaneClient) IssueChallenge(ctx context.Context, deviceID string) (models.Challenge, error) {
	var resp struct {
		ChallengeID string `json:"challenge_id"`
		Nonce       []byte `json:"nonce"`
	}
	if err := c.postJSON(ctx, "/v1/challenges", map[string]string{"device_id": deviceID}, &resp); err != nil {
		return models.Challenge{}, err
	}
	return models.Challenge{ChallengeID: resp.ChallengeID, Nonce: resp.Nonce, IssuedToDevice: deviceID}, nil
}

func (c *HTTPPlaneClient) VerifyProof(ctx context.Context, challengeID, userID, deviceID string, timestamp int64, signature []byte) (TokenPair, error) {
	var resp struct {
		SessionToken models.Token `json:"session_token"`
		RefreshToken models.Token `json:"refresh_token"`
	}
	if err := c.postJSON(ctx, "/v1/proofs", map[string]interface{}{
		"challenge_id": challengeID,
		"user_id":      userID,
		"device_id":    deviceID,
		"timestamp":    timestamp,
		"signature":    signature,
	}, &resp); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Session: resp.SessionToken, Refresh: resp.RefreshToken}, nil
}

func (c *HTTPPlaneClient) ValidateConnection(ctx context.Context, userID, deviceID string) error {
	return c.postJSON(ctx, "/v1/connections/validate", map[string]string{"user_id": userID, "device_id": deviceID}, nil)
}
