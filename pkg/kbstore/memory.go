package kbstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/promptlab/agentloop/pkg/rag"
)

// MemoryStore keeps knowledge bases in-process for fast prototyping and
// tests.
type MemoryStore struct {
	mu    sync.RWMutex
	bases map[string]*rag.KnowledgeBase
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bases: make(map[string]*rag.KnowledgeBase)}
}

// Get returns a deep copy of the knowledge base with the given ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*rag.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kb, ok := s.bases[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneKB(kb), nil
}

// Put stores a deep copy of the knowledge base, replacing any previous
// version under the same ID.
func (s *MemoryStore) Put(ctx context.Context, kb *rag.KnowledgeBase) error {
	if kb == nil || strings.TrimSpace(kb.ID) == "" {
		return fmt.Errorf("kbstore: knowledge base ID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bases[kb.ID] = cloneKB(kb)
	return nil
}

// Delete removes the knowledge base. Deleting an unknown ID is a no-op.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bases, id)
	return nil
}

// SetVectors atomically replaces the vector set of an existing knowledge
// base. Passing nil vectors clears the index.
func (s *MemoryStore) SetVectors(ctx context.Context, id string, vectors *rag.VectorSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kb, ok := s.bases[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	kb.Vectors = cloneVectors(vectors)
	return nil
}

// List returns deep copies of every stored knowledge base, ordered by ID.
func (s *MemoryStore) List(ctx context.Context) ([]*rag.KnowledgeBase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*rag.KnowledgeBase, 0, len(s.bases))
	for _, kb := range s.bases {
		out = append(out, cloneKB(kb))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
