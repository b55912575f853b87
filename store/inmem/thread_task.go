// Package inmem provides process-local, mutex-guarded implementations of
// every store trait. They back unit tests and give cmd/agentd a zero-config
// default before an operator wires Redis/MongoDB/SQLite.
package inmem

import (
	"context"
	"sync"
	"time"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/store"
	"github.com/agentmesh/runtime/task"
)

// ThreadTaskStore implements store.ThreadStore and store.TaskStore together
// since tasks always nest under a thread and the teacher's equivalent
// (runtime/a2a inMemoryTaskStore) keeps them colocated for the same reason.
type ThreadTaskStore struct {
	mu      sync.RWMutex
	threads map[string]task.Thread
	tasks   map[string]task.Task
	history map[string][]event.Message // keyed by threadID
}

// NewThreadTaskStore creates an empty store.
func NewThreadTaskStore() *ThreadTaskStore {
	return &ThreadTaskStore{
		threads: make(map[string]task.Thread),
		tasks:   make(map[string]task.Task),
		history: make(map[string][]event.Message),
	}
}

func (s *ThreadTaskStore) CreateThread(_ context.Context, t task.Thread) (task.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.threads[t.ID]; ok {
		return existing, nil
	}
	s.threads[t.ID] = t
	return t, nil
}

func (s *ThreadTaskStore) GetThread(_ context.Context, id string) (task.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	if !ok {
		return task.Thread{}, store.ErrThreadNotFound
	}
	return t, nil
}

func (s *ThreadTaskStore) UpdateThread(_ context.Context, t task.Thread) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.threads[t.ID]; !ok {
		return store.ErrThreadNotFound
	}
	s.threads[t.ID] = t
	return nil
}

func (s *ThreadTaskStore) DeleteThread(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.threads, id)
	delete(s.history, id)
	return nil
}

func (s *ThreadTaskStore) ListThreads(_ context.Context, agentID string) ([]task.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.Thread
	for _, t := range s.threads {
		if agentID == "" || t.AgentID == agentID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *ThreadTaskStore) UpdateThreadWithMessage(_ context.Context, id string, updatedAt time.Time, attrs map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.threads[id]
	if !ok {
		return store.ErrThreadNotFound
	}
	t.UpdatedAt = updatedAt
	if t.Attributes == nil {
		t.Attributes = map[string]any{}
	}
	for k, v := range attrs {
		t.Attributes[k] = v
	}
	s.threads[id] = t
	return nil
}

func (s *ThreadTaskStore) CreateTask(_ context.Context, t task.Task) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t
	return t, nil
}

func (s *ThreadTaskStore) GetTask(_ context.Context, id string) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, store.ErrTaskNotFound
	}
	return t, nil
}

func (s *ThreadTaskStore) UpdateTaskStatus(_ context.Context, id string, status task.Status, statusMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return store.ErrTaskNotFound
	}
	t.Status = status
	t.StatusMessage = statusMessage
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = t
	return nil
}

func (s *ThreadTaskStore) AddMessageToTask(_ context.Context, taskID string, msg event.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return store.ErrTaskNotFound
	}
	s.history[t.ThreadID] = append(s.history[t.ThreadID], msg)
	return nil
}

func (s *ThreadTaskStore) AddEventToTask(_ context.Context, taskID string, _ event.Event) error {
	s.mu.RLock()
	_, ok := s.tasks[taskID]
	s.mu.RUnlock()
	if !ok {
		return store.ErrTaskNotFound
	}
	return nil
}

func (s *ThreadTaskStore) CancelTask(_ context.Context, id string) (task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, store.ErrTaskNotFound
	}
	if t.Status.Terminal() {
		return t, nil
	}
	t.Status = task.StatusCancelled
	t.UpdatedAt = time.Now().UTC()
	s.tasks[id] = t
	return t, nil
}

func (s *ThreadTaskStore) ListTasks(_ context.Context, threadID string) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.Task
	for _, t := range s.tasks {
		if t.ThreadID == threadID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *ThreadTaskStore) GetHistory(_ context.Context, threadID string, filter store.HistoryFilter) ([]event.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.history[threadID]
	if filter.Limit > 0 && len(msgs) > filter.Limit {
		msgs = msgs[len(msgs)-filter.Limit:]
	}
	out := make([]event.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

var _ store.ThreadStore = (*ThreadTaskStore)(nil)
var _ store.TaskStore = (*ThreadTaskStore)(nil)
