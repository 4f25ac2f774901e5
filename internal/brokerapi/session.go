package brokerapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/edda-mesh/bifrost-heimdall/internal/anomaly"
	"github.com/edda-mesh/bifrost-heimdall/internal/connection"
	"github.com/edda-mesh/bifrost-heimdall/internal/message"
	"github.com/edda-mesh/bifrost-heimdall/internal/natutil"
	"github.com/edda-mesh/bifrost-heimdall/internal/queue"
	"github.com/edda-mesh/bifrost-heimdall/internal/ratelimit"
	"github.com/edda-mesh/bifrost-heimdall/internal/routing"
	"github.com/edda-mesh/bifrost-heimdall/internal/version"
	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var errHandshakeAborted = errors.New("brokerapi: handshake aborted")

// Session drives one device's WebSocket lifecycle: version negotiation,
// challenge/proof authentication and mesh enforcement (both delegated to
// the Plane), registration, and the steady-state read/route loop.
type Session struct {
	conn        *websocket.Conn
	registry    *connection.Registry
	status      *connection.StatusTracker
	rateLimiter *ratelimit.Limiter
	anomalies   func(deviceID string) *anomaly.Detector
	router      *routing.Router
	queues      *queue.Manager
	plane       PlaneClient
	nat         natutil.STUNClient
	log         zerolog.Logger
	connectedAt time.Time
	// handle is set once the connection is registered; from then on every
	// frame this session writes goes through the handle's send lock.
	handle *connection.Handle

	connectionID    string
	deviceID        string
	userID          string
	protocolVersion int
}

// Run executes the handshake and, on success, the message loop. It always
// closes the socket and unregisters the connection before returning.
func (s *Session) Run() {
	defer s.cleanup()

	ctx := context.Background()
	if err := s.handshake(ctx); err != nil {
		s.log.Warn().Err(err).Msg("broker: handshake failed")
		return
	}

	handle := connection.NewHandle(s.connectionID, s.deviceID, s.userID, s.conn, s.connectedAt)
	s.registry.Register(handle)
	s.handle = handle
	s.status.Set(s.connectionID, models.StatusActive)
	s.log.Info().Str("device_id", s.deviceID).Str("user_id", s.userID).Msg("broker: device connected")

	if s.queues != nil {
		delivered, failed := s.queues.DeliverTo(s.deviceID, func(entry models.OfflineQueueEntry) error {
			env, ok := entry.Message.(message.Envelope)
			if !ok {
				return fmt.Errorf("brokerapi: queued entry for %s has unexpected type", s.deviceID)
			}
			return s.router.Direct(s.deviceID, env)
		})
		if delivered > 0 || failed > 0 {
			s.log.Info().Str("device_id", s.deviceID).Int("delivered", delivered).Int("failed", failed).Msg("broker: drained offline queue")
		}
	}

	s.readLoop(ctx)
}

func (s *Session) cleanup() {
	if s.connectionID != "" {
		s.registry.Unregister(s.connectionID)
		s.status.Forget(s.connectionID)
	}
	s.conn.Close()
}

// handshake runs the three-step authentication sequence. Each step reads
// exactly one frame of the expected type; any deviation aborts the
// connection with an ERROR frame.
func (s *Session) handshake(ctx context.Context) error {
	s.connectionID = uuid.NewString()

	_, err := s.negotiateVersion()
	if err != nil {
		s.writeError(err)
		return err
	}

	deviceID, err := s.readChallengeRequest()
	if err != nil {
		s.writeError(err)
		return err
	}

	challenge, err := s.plane.IssueChallenge(ctx, deviceID)
	if err != nil {
		s.writeError(err)
		return err
	}
	if err := s.writeFrame(models.MsgChallengeResponse, map[string]interface{}{
		"challenge_id": challenge.ChallengeID,
		"nonce":        challenge.Nonce,
	}); err != nil {
		return err
	}

	userID, tokens, err := s.readAndVerifyProof(ctx, challenge.ChallengeID, deviceID)
	if err != nil {
		s.writeError(err)
		return err
	}

	if err := s.plane.ValidateConnection(ctx, userID, deviceID); err != nil {
		s.writeError(err)
		return err
	}

	s.deviceID = deviceID
	s.userID = userID

	directPathAvailable := false
	if s.nat != nil {
		if _, natType, err := s.nat.GetPublicIPAndNATType(ctx); err != nil {
			s.log.Debug().Str("device_id", deviceID).Err(err).Msg("broker: NAT discovery failed, assuming relay-only path")
		} else {
			directPathAvailable = natType == natutil.NatFullCone || natType == natutil.NatRestrictedCone || natType == natutil.NatPortRestrictedCone
		}
	}

	return s.writeFrame(models.MsgAuthenticationResult, map[string]interface{}{
		"success":               true,
		"session_token":         tokens.Session,
		"refresh_token":         tokens.Refresh,
		"direct_path_available": directPathAvailable,
	})
}

func (s *Session) negotiateVersion() (version.Triple, error) {
	var frame struct {
		Versions []version.Triple `json:"versions"`
	}
	if err := s.readFrame(models.MsgVersionNegotiation, &frame); err != nil {
		return version.Triple{}, err
	}
	negotiated, err := version.Negotiate(frame.Versions, version.SupportedVersions())
	if err != nil {
		return version.Triple{}, err
	}
	s.protocolVersion = int(negotiated.Major)
	if err := s.writeFrame(models.MsgVersionNegotiation, map[string]interface{}{
		"selected": negotiated,
	}); err != nil {
		return version.Triple{}, err
	}
	return negotiated, nil
}

func (s *Session) readChallengeRequest() (string, error) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := s.readFrame(models.MsgChallengeRequest, &req); err != nil {
		return "", err
	}
	deviceID := message.Sanitize(req.DeviceID)
	if deviceID == "" {
		return "", errors.New("brokerapi: empty device_id in challenge request")
	}
	return deviceID, nil
}

func (s *Session) readAndVerifyProof(ctx context.Context, challengeID, deviceID string) (string, TokenPair, error) {
	var proof struct {
		UserID    string `json:"user_id"`
		Timestamp int64  `json:"timestamp"`
		Signature []byte `json:"signature"`
	}
	if err := s.readFrame(models.MsgChallengeProof, &proof); err != nil {
		return "", TokenPair{}, err
	}
	userID := message.Sanitize(proof.UserID)
	tokens, err := s.plane.VerifyProof(ctx, challengeID, userID, deviceID, proof.Timestamp, proof.Signature)
	if err != nil {
		return "", TokenPair{}, err
	}
	return userID, tokens, nil
}

// readLoop consumes frames after a successful handshake: validating,
// sanitizing, rate limiting, scoring for anomalies, and routing each one.
func (s *Session) readLoop(ctx context.Context) {
	limiterKey := "device:" + s.deviceID
	detector := s.anomalies(s.deviceID)

	for {
		var env message.Envelope
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			s.log.Info().Str("device_id", s.deviceID).Err(err).Msg("broker: connection closed")
			return
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			s.log.Debug().Err(err).Msg("broker: malformed frame")
			continue
		}

		if err := s.rateLimiter.Allow(limiterKey); err != nil {
			s.log.Warn().Str("device_id", s.deviceID).Err(err).Msg("broker: rate limit exceeded")
			s.writeError(err)
			continue
		}

		if detector != nil {
			detector.Record()
			if alert := detector.CheckAlert(); alert != nil {
				s.status.Set(s.connectionID, models.StatusSuspicious)
				s.log.Warn().Str("device_id", s.deviceID).Float64("score", alert.Score).Msg("broker: anomalous message rate")
			}
		}

		env = message.SanitizeEnvelope(env)
		if err := message.Validate(env); err != nil {
			s.writeError(err)
			continue
		}

		if err := s.router.RouteWithFallback(ctx, env.TargetDeviceID, env); err != nil {
			s.log.Warn().Str("target_device_id", env.TargetDeviceID).Err(err).Msg("broker: routing failed, queuing for later delivery")
			if s.queues != nil {
				if !s.queues.Enqueue(env.TargetDeviceID, env) {
					s.writeError(fmt.Errorf("brokerapi: offline queue full for %s", env.TargetDeviceID))
				}
			}
		}
	}
}

func (s *Session) readFrame(want models.MessageType, into interface{}) error {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return err
	}
	var env message.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return err
	}
	gotType, err := message.ParseType(env.Type)
	if err != nil {
		return err
	}
	if gotType != want {
		return fmt.Errorf("brokerapi: expected frame type %d, got %d: %w", want, gotType, errHandshakeAborted)
	}
	if len(env.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(env.Payload, into)
}

func (s *Session) writeFrame(t models.MessageType, payload interface{}) error {
	typeName, err := message.MarshalJSON(t)
	if err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	env := struct {
		MessageID       string          `json:"message_id"`
		Type            json.RawMessage `json:"message_type"`
		Payload         json.RawMessage `json:"payload"`
		Timestamp       int64           `json:"timestamp"`
		ProtocolVersion int             `json:"protocol_version"`
	}{
		MessageID:       uuid.NewString(),
		Type:            typeName,
		Payload:         body,
		Timestamp:       time.Now().Unix(),
		ProtocolVersion: s.protocolVersion,
	}
	out, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if s.handle != nil {
		return s.handle.Send(websocket.TextMessage, out)
	}
	return s.conn.WriteMessage(websocket.TextMessage, out)
}

func (s *Session) writeError(cause error) {
	_ = s.writeFrame(models.MsgError, map[string]string{"error": cause.Error()})
}
