package brokerapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/anomaly"
	"github.com/edda-mesh/bifrost-heimdall/internal/config"
	"github.com/edda-mesh/bifrost-heimdall/internal/connection"
	"github.com/edda-mesh/bifrost-heimdall/internal/queue"
	"github.com/edda-mesh/bifrost-heimdall/internal/ratelimit"
	"github.com/edda-mesh/bifrost-heimdall/internal/relay"
	"github.com/edda-mesh/bifrost-heimdall/internal/routing"
	"github.com/edda-mesh/bifrost-heimdall/internal/version"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type fakePlaneClient struct {
	verifyErr  error
	meshErr    error
	challengeID string
}

func (f *fakePlaneClient) IssueChallenge(ctx context.Context, deviceID string) (models.Challenge, error) {
	return models.Challenge{ChallengeID: f.challengeID, IssuedToDevice: deviceID, Nonce: []byte("nonce")}, nil
}

func (f *fakePlaneClient) VerifyProof(ctx context.Context, challengeID, userID, deviceID string, timestamp int64, signature []byte) (TokenPair, error) {
	if f.verifyErr != nil {
		return TokenPair{}, f.verifyErr
	}
	return TokenPair{
		Session: models.Token{TokenID: "sess-" + deviceID, Kind: models.TokenSession, SubjectDevice: deviceID, SubjectUser: userID},
		Refresh: models.Token{TokenID: "refresh-" + deviceID, Kind: models.TokenRefresh, SubjectDevice: deviceID, SubjectUser: userID},
	}, nil
}

func (f *fakePlaneClient) ValidateConnection(ctx context.Context, userID, deviceID string) error {
	return f.meshErr
}

func newTestServer(t *testing.T, plane PlaneClient) (*httptest.Server, *connection.Registry, *queue.Manager) {
	registry := connection.NewRegistry()
	queues := queue.NewManager(config.QueueConfig{MaxPerDevice: 10, Overflow: config.OverflowEvictOldest})
	deps := Deps{
		Registry:    registry,
		Status:      connection.NewStatusTracker(),
		RateLimiter: ratelimit.New(ratelimit.Config{PerMinute: 1000, PerHour: 10000}),
		Anomalies:   func(deviceID string) *anomaly.Detector { return anomaly.New(anomaly.Config{WindowSize: 50, WindowDuration: time.Minute, AlertThreshold: 1000, MaxReasonable: 1000}) },
		Router:      routing.NewRouter(registry, relay.NopClient{}, relay.NopClient{}),
		Queues:      queues,
		Plane:       plane,
		Log:         zerolog.Nop(),
	}
	srv := httptest.NewServer(NewRouter(deps))
	return srv, registry, queues
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

var testFrameNames = map[models.MessageType]string{
	models.MsgVersionNegotiation: "VERSION_NEGOTIATION",
	models.MsgChallengeRequest:   "CHALLENGE_REQUEST",
	models.MsgChallengeProof:     "CHALLENGE_PROOF",
}

func sendFrame(t *testing.T, conn *websocket.Conn, msgType models.MessageType, payload interface{}) {
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	env := map[string]interface{}{
		"message_id":   "m1",
		"message_type": testFrameNames[msgType],
		"payload":      json.RawMessage(body),
	}
	require.NoError(t, conn.WriteJSON(env))
}

func readFrame(t *testing.T, conn *websocket.Conn) (string, map[string]interface{}) {
	var env struct {
		Type    string                 `json:"message_type"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&env))
	return env.Type, env.Payload
}

func TestFullHandshakeSucceeds(t *testing.T) {
	plane := &fakePlaneClient{challengeID: "chal1"}
	srv, registry, _ := newTestServer(t, plane)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	sendFrame(t, conn, models.MsgVersionNegotiation, map[string]interface{}{"versions": version.SupportedVersions()})
	typ, _ := readFrame(t, conn)
	require.Equal(t, "VERSION_NEGOTIATION", typ)

	sendFrame(t, conn, models.MsgChallengeRequest, map[string]interface{}{"device_id": "dev1"})
	typ, payload := readFrame(t, conn)
	require.Equal(t, "CHALLENGE_RESPONSE", typ)
	require.Equal(t, "chal1", payload["challenge_id"])

	sendFrame(t, conn, models.MsgChallengeProof, map[string]interface{}{
		"user_id":    "user1",
		"timestamp":  time.Now().Unix(),
		"signature":  []byte("sig"),
	})
	typ, payload = readFrame(t, conn)
	require.Equal(t, "AUTHENTICATION_RESULT", typ)
	require.Equal(t, true, payload["success"])

	require.Eventually(t, func() bool {
		_, ok := registry.ByDevice("dev1")
		return ok
	}, time.Second, 10*time.Millisecond)
}

func TestHandshakeAbortsOnBadProof(t *testing.T) {
	plane := &fakePlaneClient{challengeID: "chal1", verifyErr: require.AnError}
	srv, registry, _ := newTestServer(t, plane)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	sendFrame(t, conn, models.MsgVersionNegotiation, map[string]interface{}{"versions": version.SupportedVersions()})
	readFrame(t, conn)

	sendFrame(t, conn, models.MsgChallengeRequest, map[string]interface{}{"device_id": "dev1"})
	readFrame(t, conn)

	sendFrame(t, conn, models.MsgChallengeProof, map[string]interface{}{
		"user_id":    "user1",
		"timestamp":  time.Now().Unix(),
		"signature":  []byte("sig"),
	})
	typ, _ := readFrame(t, conn)
	require.Equal(t, "ERROR", typ)

	require.Never(t, func() bool {
		_, ok := registry.ByDevice("dev1")
		return ok
	}, 200*time.Millisecond, 20*time.Millisecond)
}

func connectDevice(t *testing.T, srv *httptest.Server, deviceID string) *websocket.Conn {
	conn := dial(t, srv)
	sendFrame(t, conn, models.MsgVersionNegotiation, map[string]interface{}{"versions": version.SupportedVersions()})
	readFrame(t, conn)
	sendFrame(t, conn, models.MsgChallengeRequest, map[string]interface{}{"device_id": deviceID})
	readFrame(t, conn)
	sendFrame(t, conn, models.MsgChallengeProof, map[string]interface{}{
		"user_id":    "user-" + deviceID,
		"timestamp":  time.Now().Unix(),
		"signature":  []byte("sig"),
	})
	readFrame(t, conn)
	return conn
}

func TestOfflineMessageQueuesThenDrainsOnReconnect(t *testing.T) {
	plane := &fakePlaneClient{challengeID: "chal1"}
	srv, registry, queues := newTestServer(t, plane)
	defer srv.Close()

	sender := connectDevice(t, srv, "sender")
	defer sender.Close()

	envelope := map[string]interface{}{
		"message_id":       "m-offline",
		"message_type":     "MESSAGE",
		"source_device_id": "sender",
		"target_device_id": "offline-dev",
		"payload":          json.RawMessage(`{"body":"hi"}`),
	}
	require.NoError(t, sender.WriteJSON(envelope))

	require.Eventually(t, func() bool {
		return queues.Len("offline-dev") == 1
	}, time.Second, 10*time.Millisecond)

	receiver := connectDevice(t, srv, "offline-dev")
	defer receiver.Close()

	require.Eventually(t, func() bool {
		_, ok := registry.ByDevice("offline-dev")
		return ok
	}, time.Second, 10*time.Millisecond)

	typ, payload := readFrame(t, receiver)
	require.Equal(t, "MESSAGE", typ)
	require.Equal(t, "hi", payload["body"])

	require.Eventually(t, func() bool {
		return queues.Len("offline-dev") == 0
	}, time.Second, 10*time.Millisecond)
}

func TestHandshakeAbortsOnMeshDenial(t *testing.T) {
	plane := &fakePlaneClient{challengeID: "chal1", meshErr: require.AnError}
	srv, registry, _ := newTestServer(t, plane)
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	sendFrame(t, conn, models.MsgVersionNegotiation, map[string]interface{}{"versions": version.SupportedVersions()})
	readFrame(t, conn)
	sendFrame(t, conn, models.MsgChallengeRequest, map[string]interface{}{"device_id": "dev1"})
	readFrame(t, conn)
	sendFrame(t, conn, models.MsgChallengeProof, map[string]interface{}{
		"user_id":    "user1",
		"timestamp":  time.Now().Unix(),
		"signature":  []byte("sig"),
	})
	typ, _ := readFrame(t, conn)
	require.Equal(t, "ERROR", typ)

	require.Never(t, func() bool {
		_, ok := registry.ByDevice("dev1")
		return ok
	}, 200*time.Millisecond, 20*time.Millisecond)
}
