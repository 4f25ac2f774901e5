package message

import (
	"errors"
	"strings"
)

// Validation errors, grounded on the original validator's distinct failure
// reasons so callers can map each to a specific client-facing ERROR frame.
var (
	ErrEmptyMessageID      = errors.New("message: message_id must not be empty")
	ErrEmptySourceDeviceID = errors.New("message: source_device_id must not be empty")
	ErrEmptyTargetDeviceID = errors.New("message: target_device_id must not be empty")
	ErrPayloadTooLarge     = errors.New("message: payload exceeds maximum size")
)

// Validate checks the structural invariants every frame must satisfy
// before it's handed to the router.
func Validate(e Envelope) error {
	if strings.TrimSpace(e.MessageID) == "" {
		return ErrEmptyMessageID
	}
	if strings.TrimSpace(e.SourceDeviceID) == "" {
		return ErrEmptySourceDeviceID
	}
	if strings.TrimSpace(e.TargetDeviceID) == "" {
		return ErrEmptyTargetDeviceID
	}
	if len(e.Payload) > MaxPayloadBytes {
		return ErrPayloadTooLarge
	}
	return nil
}

// Sanitize strips control characters (preserving \n, \r, \t), trims
// surrounding whitespace, and truncates to MaxIDLen. Applied to every
// identifier field pulled from client input before it's logged, stored, or
// echoed back.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	out := strings.TrimSpace(b.String())
	if len(out) > MaxIDLen {
		out = out[:MaxIDLen]
	}
	return out
}

// SanitizeEnvelope applies Sanitize to every identifier field in place.
func SanitizeEnvelope(e Envelope) Envelope {
	e.MessageID = Sanitize(e.MessageID)
	e.SourceDeviceID = Sanitize(e.SourceDeviceID)
	e.TargetDeviceID = Sanitize(e.TargetDeviceID)
	return e
}
