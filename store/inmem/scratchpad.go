package inmem

import (
	"context"
	"sync"

	"github.com/agentmesh/runtime/event"
)

// ScratchpadStore is a process-local, mutex-guarded implementation of
// store.ScratchpadStore, keyed by (threadID, taskID).
type ScratchpadStore struct {
	mu      sync.RWMutex
	byTask  map[string][]event.ScratchpadEntry // key: threadID+"/"+taskID
	byThread map[string][]event.ScratchpadEntry
}

// NewScratchpadStore creates an empty scratchpad store.
func NewScratchpadStore() *ScratchpadStore {
	return &ScratchpadStore{
		byTask:   make(map[string][]event.ScratchpadEntry),
		byThread: make(map[string][]event.ScratchpadEntry),
	}
}

func key(threadID, taskID string) string { return threadID + "/" + taskID }

func (s *ScratchpadStore) AddEntry(_ context.Context, threadID, taskID string, entry event.ScratchpadEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(threadID, taskID)
	s.byTask[k] = append(s.byTask[k], entry)
	s.byThread[threadID] = append(s.byThread[threadID], entry)
	return nil
}

func (s *ScratchpadStore) ClearEntries(_ context.Context, threadID, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byTask, key(threadID, taskID))
	return nil
}

func (s *ScratchpadStore) GetEntries(_ context.Context, threadID, taskID string, limit int) ([]event.ScratchpadEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.byTask[key(threadID, taskID)]
	return tail(entries, limit), nil
}

func (s *ScratchpadStore) GetAllEntries(_ context.Context, threadID string, limit int) ([]event.ScratchpadEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.byThread[threadID]
	return tail(entries, limit), nil
}

func tail(entries []event.ScratchpadEntry, limit int) []event.ScratchpadEntry {
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	out := make([]event.ScratchpadEntry, len(entries))
	copy(out, entries)
	return out
}
