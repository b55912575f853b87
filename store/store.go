// Package store defines the persistence trait contracts the core engine
// consumes as narrow interfaces. The core never imports a concrete backing
// (Redis, MongoDB, SQLite); those live in the store/redisstore, store/mongostore,
// and store/sqlitestore subpackages and are wired together only at the
// cmd/agentd composition root.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/task"
)

// Sentinel errors returned by store implementations. Callers use errors.Is.
var (
	ErrThreadNotFound = errors.New("thread not found")
	ErrTaskNotFound   = errors.New("task not found")
	ErrAgentNotFound  = errors.New("agent not found")
	ErrNoPendingCall  = errors.New("no pending external tool call")
	ErrSecretNotFound = errors.New("secret not found")
)

type (
	// ThreadStore persists Thread records.
	ThreadStore interface {
		CreateThread(ctx context.Context, t task.Thread) (task.Thread, error)
		GetThread(ctx context.Context, id string) (task.Thread, error)
		UpdateThread(ctx context.Context, t task.Thread) error
		DeleteThread(ctx context.Context, id string) error
		ListThreads(ctx context.Context, agentID string) ([]task.Thread, error)
		// UpdateThreadWithMessage bumps UpdatedAt and merges attributes derived
		// from an incoming message in one atomic step.
		UpdateThreadWithMessage(ctx context.Context, id string, updatedAt time.Time, attrs map[string]any) error
	}

	// HistoryFilter narrows TaskStore.GetHistory results.
	HistoryFilter struct {
		Limit int
		Since time.Time
	}

	// TaskStore persists Task records and their message history.
	TaskStore interface {
		CreateTask(ctx context.Context, t task.Task) (task.Task, error)
		GetTask(ctx context.Context, id string) (task.Task, error)
		UpdateTaskStatus(ctx context.Context, id string, status task.Status, statusMessage string) error
		AddMessageToTask(ctx context.Context, taskID string, msg event.Message) error
		AddEventToTask(ctx context.Context, taskID string, e event.Event) error
		// CancelTask marks the task Cancelled. Idempotent: a no-op returning
		// the current state when the task is already terminal.
		CancelTask(ctx context.Context, id string) (task.Task, error)
		ListTasks(ctx context.Context, threadID string) ([]task.Task, error)
		GetHistory(ctx context.Context, threadID string, filter HistoryFilter) ([]event.Message, error)
	}

	// ScratchpadStore persists the append-only per-task scratchpad.
	ScratchpadStore interface {
		AddEntry(ctx context.Context, threadID, taskID string, entry event.ScratchpadEntry) error
		ClearEntries(ctx context.Context, threadID, taskID string) error
		GetEntries(ctx context.Context, threadID, taskID string, limit int) ([]event.ScratchpadEntry, error)
		GetAllEntries(ctx context.Context, threadID string, limit int) ([]event.ScratchpadEntry, error)
	}

	// SessionStore is a namespaced key/value store with optional per-key
	// expiry, scoped per thread.
	SessionStore interface {
		Get(ctx context.Context, threadID, key string) (string, bool, error)
		Set(ctx context.Context, threadID, key, value string, ttl time.Duration) error
		Delete(ctx context.Context, threadID, key string) error
	}

	// AgentDefinition is the catalog record for a registered agent. Kind
	// selects which orchestrator strategy runs it; only the field matching
	// Kind is meaningful.
	AgentDefinition struct {
		Name             string
		Description      string
		Kind             AgentKind
		ToolFormat       string
		ReasoningDepth   string
		ExecutionMode    string
		MaxIterations    int
		ChildAgentIDs    []string // SequentialWorkflow / DagWorkflow
		DependsOn        map[string][]string // DagWorkflow: node -> dependencies
		RequiredSecrets  []string
		UsesBrowser      bool
		ReflectionEnabled bool
	}

	// AgentKind discriminates AgentDefinition variants.
	AgentKind string

	// AgentStore persists the agent catalog.
	AgentStore interface {
		Register(ctx context.Context, def AgentDefinition) error
		Get(ctx context.Context, name string) (AgentDefinition, error)
		Update(ctx context.Context, def AgentDefinition) error
		List(ctx context.Context) ([]AgentDefinition, error)
		Clear(ctx context.Context) error
	}

	// ExternalToolCallsStore implements the rendezvous: a one-shot channel
	// keyed by ToolCallID on which the client delivers a ToolResponse.
	ExternalToolCallsStore interface {
		// RegisterExternalToolCall opens a rendezvous slot and returns a
		// channel the caller can wait on (with its own timeout).
		RegisterExternalToolCall(ctx context.Context, toolCallID string) (<-chan event.ToolResponse, error)
		// CompleteExternalToolCall delivers the client's response. Returns
		// ErrNoPendingCall if no slot is registered for the id.
		CompleteExternalToolCall(ctx context.Context, toolCallID string, resp event.ToolResponse) error
		RemoveToolCall(ctx context.Context, toolCallID string)
		ListPending(ctx context.Context) []string
	}

	// ToolAuthStore is the opaque secret/session boundary for OAuth2 flows.
	// The core never inspects token contents; it only calls ResolveSession.
	ToolAuthStore interface {
		ResolveSession(ctx context.Context, provider, user string) (token string, err error)
		RequiredSecrets(ctx context.Context, provider string) ([]string, error)
		HasSecret(ctx context.Context, key string) bool
	}
)

const (
	AgentStandard           AgentKind = "standard"
	AgentSequentialWorkflow AgentKind = "sequential_workflow"
	AgentDagWorkflow        AgentKind = "dag_workflow"
	AgentCustom             AgentKind = "custom"
)
