package inmem

import (
	"context"
	"sync"

	"github.com/agentmesh/runtime/store"
)

// AgentStore is a process-local implementation of store.AgentStore, modeled
// on the registry's memory-backed toolset store.
type AgentStore struct {
	mu    sync.RWMutex
	defs  map[string]store.AgentDefinition
}

// NewAgentStore creates an empty agent catalog.
func NewAgentStore() *AgentStore {
	return &AgentStore{defs: make(map[string]store.AgentDefinition)}
}

func (s *AgentStore) Register(_ context.Context, def store.AgentDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs[def.Name] = def
	return nil
}

func (s *AgentStore) Get(_ context.Context, name string) (store.AgentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.defs[name]
	if !ok {
		return store.AgentDefinition{}, store.ErrAgentNotFound
	}
	return d, nil
}

func (s *AgentStore) Update(ctx context.Context, def store.AgentDefinition) error {
	return s.Register(ctx, def)
}

func (s *AgentStore) List(_ context.Context) ([]store.AgentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.AgentDefinition, 0, len(s.defs))
	for _, d := range s.defs {
		out = append(out, d)
	}
	return out, nil
}

func (s *AgentStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = make(map[string]store.AgentDefinition)
	return nil
}
