// Package message defines the wire-protocol frame envelope and the
// validation/sanitization rules applied to every inbound frame before it
// is routed.
package message

import (
	"encoding/json"
	"fmt"

	"github.com/edda-mesh/bifrost-heimdall/pkg/models"
)

// MaxIDLen bounds message_id/source_device_id/target_device_id after
// sanitization.
const MaxIDLen = 512

// MaxPayloadBytes bounds the serialized payload size of a single frame.
const MaxPayloadBytes = 256 * 1024

var typeNames = map[models.MessageType]string{
	models.MsgConnectionRequest:     "CONNECTION_REQUEST",
	models.MsgConnectionResponse:    "CONNECTION_RESPONSE",
	models.MsgMessage:               "MESSAGE",
	models.MsgHeartbeat:             "HEARTBEAT",
	models.MsgDisconnect:            "DISCONNECT",
	models.MsgError:                 "ERROR",
	models.MsgVersionNegotiation:    "VERSION_NEGOTIATION",
	models.MsgChallengeRequest:      "CHALLENGE_REQUEST",
	models.MsgChallengeResponse:     "CHALLENGE_RESPONSE",
	models.MsgChallengeProof:        "CHALLENGE_PROOF",
	models.MsgAuthenticationResult:  "AUTHENTICATION_RESULT",
}

var namesToType = func() map[string]models.MessageType {
	m := make(map[string]models.MessageType, len(typeNames))
	for k, v := range typeNames {
		m[v] = k
	}
	return m
}()

// MarshalJSON renders a MessageType as its screaming-snake-case wire name.
func MarshalJSON(t models.MessageType) ([]byte, error) {
	name, ok := typeNames[t]
	if !ok {
		return nil, fmt.Errorf("message: unknown message type %d", t)
	}
	return json.Marshal(name)
}

// ParseType maps a wire-format message_type string back to its enum
// value. Matching is strict-case: the wire name must be the exact
// screaming-snake-case spelling MarshalJSON produces, not a
// case-insensitive fold of it.
func ParseType(name string) (models.MessageType, error) {
	t, ok := namesToType[name]
	if !ok {
		return 0, fmt.Errorf("message: unrecognized message_type %q", name)
	}
	return t, nil
}

// Envelope is the on-wire frame shared by every message type. Timestamp
// is epoch seconds and ProtocolVersion is the negotiated major version,
// both per the wire format rather than Go-native time/string types.
type Envelope struct {
	MessageID       string          `json:"message_id"`
	Type            string          `json:"message_type"`
	SourceDeviceID  string          `json:"source_device_id"`
	TargetDeviceID  string          `json:"target_device_id"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	Timestamp       int64           `json:"timestamp"`
	ProtocolVersion int             `json:"protocol_version"`
}
