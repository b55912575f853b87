package inmem

import (
	"context"
	"sync"

	"github.com/agentmesh/runtime/event"
	"github.com/agentmesh/runtime/store"
)

// RendezvousStore implements store.ExternalToolCallsStore as a map of
// one-shot channels guarded by a mutex. Each slot is consumed exactly once;
// CompleteExternalToolCall closes the channel after sending so a second
// delivery attempt fails fast instead of blocking forever.
type RendezvousStore struct {
	mu    sync.Mutex
	slots map[string]chan event.ToolResponse
}

// NewRendezvousStore creates an empty rendezvous store.
func NewRendezvousStore() *RendezvousStore {
	return &RendezvousStore{slots: make(map[string]chan event.ToolResponse)}
}

func (s *RendezvousStore) RegisterExternalToolCall(_ context.Context, toolCallID string) (<-chan event.ToolResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan event.ToolResponse, 1)
	s.slots[toolCallID] = ch
	return ch, nil
}

func (s *RendezvousStore) CompleteExternalToolCall(_ context.Context, toolCallID string, resp event.ToolResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.slots[toolCallID]
	if !ok {
		return store.ErrNoPendingCall
	}
	ch <- resp
	close(ch)
	delete(s.slots, toolCallID)
	return nil
}

func (s *RendezvousStore) RemoveToolCall(_ context.Context, toolCallID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.slots[toolCallID]; ok {
		close(ch)
		delete(s.slots, toolCallID)
	}
}

func (s *RendezvousStore) ListPending(_ context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.slots))
	for id := range s.slots {
		out = append(out, id)
	}
	return out
}
