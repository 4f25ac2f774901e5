package message

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateRejectsEmptyMessageID(t *testing.T) {
	err := Validate(Envelope{SourceDeviceID: "a", TargetDeviceID: "b"})
	require.ErrorIs(t, err, ErrEmptyMessageID)
}

func TestValidateRejectsEmptyDeviceIDs(t *testing.T) {
	err := Validate(Envelope{MessageID: "m1", TargetDeviceID: "b"})
	require.ErrorIs(t, err, ErrEmptySourceDeviceID)

	err = Validate(Envelope{MessageID: "m1", SourceDeviceID: "a"})
	require.ErrorIs(t, err, ErrEmptyTargetDeviceID)
}

func TestValidateRejectsOversizedPayload(t *testing.T) {
	big := make([]byte, MaxPayloadBytes+1)
	err := Validate(Envelope{MessageID: "m1", SourceDeviceID: "a", TargetDeviceID: "b", Payload: big})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestValidateAcceptsWellFormedEnvelope(t *testing.T) {
	err := Validate(Envelope{MessageID: "m1", SourceDeviceID: "a", TargetDeviceID: "b"})
	require.NoError(t, err)
}

func TestSanitizeStripsControlCharsButKeepsNewlineTabCR(t *testing.T) {
	in := "hello\x00\x01world\nline2\tend\r"
	out := Sanitize(in)
	require.Equal(t, "helloworld\nline2\tend", out)
	require.NotContains(t, out, "\x00")
	require.Contains(t, out, "\n")
	require.Contains(t, out, "\t")
}

func TestSanitizeTruncatesToMaxIDLen(t *testing.T) {
	in := strings.Repeat("a", MaxIDLen+100)
	out := Sanitize(in)
	require.Len(t, out, MaxIDLen)
}

func TestParseTypeRoundTrip(t *testing.T) {
	for _, name := range []string{"CONNECTION_REQUEST", "HEARTBEAT", "CHALLENGE_PROOF"} {
		typ, err := ParseType(name)
		require.NoError(t, err)
		encoded, err := MarshalJSON(typ)
		require.NoError(t, err)
		require.JSONEq(t, `"`+name+`"`, string(encoded))
	}
}

func TestParseTypeRejectsUnknown(t *testing.T) {
	_, err := ParseType("NOT_A_TYPE")
	require.Error(t, err)
}

func TestParseTypeIsStrictCase(t *testing.T) {
	_, err := ParseType("heartbeat")
	require.Error(t, err)
	_, err = ParseType("Heartbeat")
	require.Error(t, err)
}
