package tool

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/execctx"
)

func TestFinalDefinitionSetsResultOnExecCtx(t *testing.T) {
	ec := newTestExecCtx(t)
	def := FinalDefinition()

	parts, err := def.Handler(context.Background(), ec, json.RawMessage(`{"result":"the answer"}`))
	require.NoError(t, err)
	assert.Equal(t, "the answer", parts[0].(event.TextPart).Text)
	assert.Equal(t, parts, ec.GetFinalResult())
}

func TestTransferToAgentDefinitionNotifiesAndRequiresName(t *testing.T) {
	ec := newTestExecCtx(t)
	var got TransferHandoff
	def := TransferToAgentDefinition(func(_ *execctx.Context, h TransferHandoff) { got = h })

	_, err := def.Handler(context.Background(), ec, json.RawMessage(`{"agent_name":"billing","message":"needs refund"}`))
	require.NoError(t, err)
	assert.Equal(t, "billing", got.AgentName)
	assert.Equal(t, "needs refund", got.Message)

	_, err = def.Handler(context.Background(), ec, json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestArtifactToolDefinitionPersistsContent(t *testing.T) {
	ec := newTestExecCtx(t)
	store := newMemArtifactStore()
	def := ArtifactToolDefinition(store)

	parts, err := def.Handler(context.Background(), ec, json.RawMessage(`{"filename":"report.txt","content":"hello"}`))
	require.NoError(t, err)
	artifact := parts[0].(event.ArtifactPart)
	assert.Equal(t, "report.txt", artifact.ID)
	assert.Len(t, store.puts, 1)
}

func TestArtifactToolDefinitionRequiresStore(t *testing.T) {
	ec := newTestExecCtx(t)
	def := ArtifactToolDefinition(nil)

	_, err := def.Handler(context.Background(), ec, json.RawMessage(`{"filename":"x","content":"y"}`))
	assert.Error(t, err)
}
