package a2a

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/store/inmem"
)

func TestCheckRequiredSecretsReportsAllMissing(t *testing.T) {
	auth := inmem.NewToolAuthStore([]byte("key"))
	auth.PutSecret("GITHUB_TOKEN", "present")

	err := checkRequiredSecrets(context.Background(), auth, testDef("GITHUB_TOKEN"))
	assert.NoError(t, err)

	err = checkRequiredSecrets(context.Background(), auth, testDef("GITHUB_TOKEN", "SLACK_TOKEN", "JIRA_TOKEN"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "SLACK_TOKEN")
	assert.Contains(t, err.Error(), "JIRA_TOKEN")
	assert.NotContains(t, err.Error(), "GITHUB_TOKEN")
}

func testDef(secrets ...string) store.AgentDefinition {
	return store.AgentDefinition{RequiredSecrets: secrets}
}

func TestValidateMessageRejectsEmptyParts(t *testing.T) {
	err := validateMessage(event.Message{Role: event.RoleUser}, "task-1")
	assert.ErrorIs(t, err, event.ErrEmptyMessageParts)
}

func TestValidateMessageRejectsToolResultWithoutTaskID(t *testing.T) {
	msg := event.Message{Role: event.RoleTool, Parts: []event.Part{event.ToolResultPart{ToolCallID: "tc1"}}}
	err := validateMessage(msg, "")
	assert.ErrorIs(t, err, event.ErrToolResultMissingTaskID)
}

func TestValidateMessageAcceptsToolResultWithTaskID(t *testing.T) {
	msg := event.Message{Role: event.RoleTool, Parts: []event.Part{event.ToolResultPart{ToolCallID: "tc1"}}}
	assert.NoError(t, validateMessage(msg, "task-1"))
}
