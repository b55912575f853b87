package a2a

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/event"
)

func TestPartRoundTripsThroughWire(t *testing.T) {
	cases := []event.Part{
		event.TextPart{Text: "hello"},
		event.DataPart{Data: json.RawMessage(`{"a":1}`)},
		event.ImagePart{MIMEType: "image/png", Bytes: []byte{1, 2, 3}},
		event.ToolCallPart{ToolCallID: "tc1", ToolName: "search", Input: json.RawMessage(`{"q":"go"}`)},
		event.ToolResultPart{ToolCallID: "tc1", ToolName: "search", Parts: []event.Part{event.TextPart{Text: "result"}}},
		event.ArtifactPart{ID: "a1", Path: "/tmp/out.txt", MIMEType: "text/plain", Size: 42},
	}

	for _, p := range cases {
		wire := partToWire(p)
		back, err := wireToPart(wire)
		require.NoError(t, err)
		assert.Equal(t, p, back)
	}
}

func TestMessageRoundTripsThroughWire(t *testing.T) {
	msg, err := event.NewMessage("", event.RoleUser, event.TextPart{Text: "hi"})
	require.NoError(t, err)

	wire := messageToWire(msg)
	back, err := wireToMessage(wire)
	require.NoError(t, err)

	assert.Equal(t, msg.Role, back.Role)
	assert.Equal(t, msg.Parts, back.Parts)
}

func TestWireToMessageDefaultsRoleToUser(t *testing.T) {
	msg, err := wireToMessage(WireMessage{Parts: []WirePart{{Type: "text", Text: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, event.RoleUser, msg.Role)
}

func TestWireToPartUnknownTypeErrors(t *testing.T) {
	_, err := wireToPart(WirePart{Type: "bogus"})
	assert.Error(t, err)
}
