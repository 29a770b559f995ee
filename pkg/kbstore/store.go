// Package kbstore persists knowledge bases. Two backends ship: an
// in-process store for prototyping and tests, and a BadgerDB store for
// durable indexes that survive restarts.
package kbstore

import (
	"context"
	"errors"

	"github.com/promptlab/agentloop/pkg/rag"
)

// ErrNotFound reports a lookup for a knowledge base that does not exist.
var ErrNotFound = errors.New("kbstore: knowledge base not found")

// Store is the persistence port for knowledge bases. Implementations
// return deep copies so callers can mutate results freely, and
// SetVectors swaps a complete vector set in one step so readers never
// observe a partially indexed knowledge base.
type Store interface {
	Get(ctx context.Context, id string) (*rag.KnowledgeBase, error)
	Put(ctx context.Context, kb *rag.KnowledgeBase) error
	Delete(ctx context.Context, id string) error
	SetVectors(ctx context.Context, id string, vectors *rag.VectorSet) error
	List(ctx context.Context) ([]*rag.KnowledgeBase, error)
}

func cloneKB(kb *rag.KnowledgeBase) *rag.KnowledgeBase {
	if kb == nil {
		return nil
	}
	out := &rag.KnowledgeBase{ID: kb.ID}
	if kb.Files != nil {
		out.Files = make([]rag.File, len(kb.Files))
		copy(out.Files, kb.Files)
	}
	out.Vectors = cloneVectors(kb.Vectors)
	return out
}

func cloneVectors(vs *rag.VectorSet) *rag.VectorSet {
	if vs == nil {
		return nil
	}
	out := &rag.VectorSet{ModelID: vs.ModelID, ProviderID: vs.ProviderID}
	if vs.Chunks != nil {
		out.Chunks = make([]rag.Chunk, len(vs.Chunks))
		for i, c := range vs.Chunks {
			out.Chunks[i] = c
			if c.Embedding != nil {
				out.Chunks[i].Embedding = make([]float32, len(c.Embedding))
				copy(out.Chunks[i].Embedding, c.Embedding)
			}
		}
	}
	return out
}
