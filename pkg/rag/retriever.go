package rag

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/promptlab/agentloop/pkg/model"
)

const defaultTopK = 5

// RetrieveOptions tunes one retrieval. TopK defaults to 5; MinSimilarity
// of zero keeps every chunk.
type RetrieveOptions struct {
	TopK          int
	MinSimilarity float32
}

// ScoredChunk pairs a chunk with its cosine similarity to the query.
type ScoredChunk struct {
	Chunk
	Similarity float32
}

// Retriever finds the chunks most similar to a query embedding.
type Retriever struct {
	embedder model.Embedder
}

// NewRetriever builds a retriever over the given embedding port.
func NewRetriever(embedder model.Embedder) *Retriever {
	return &Retriever{embedder: embedder}
}

// Retrieve embeds the query once and scores it against every chunk,
// returning at most TopK chunks with similarity >= MinSimilarity in
// descending similarity order. An unindexed knowledge base yields an
// empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, kb *KnowledgeBase, modelID string, opts RetrieveOptions) ([]ScoredChunk, error) {
	if !kb.Indexed() || len(kb.Vectors.Chunks) == 0 {
		return nil, nil
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	vectors, err := r.embedder.Embed(ctx, modelID, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed query: got %d vectors", len(vectors))
	}
	queryVec := vectors[0]

	scored := make([]ScoredChunk, 0, len(kb.Vectors.Chunks))
	for _, chunk := range kb.Vectors.Chunks {
		sim := Cosine(queryVec, chunk.Embedding)
		if sim < opts.MinSimilarity {
			continue
		}
		scored = append(scored, ScoredChunk{Chunk: chunk, Similarity: sim})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Similarity != scored[j].Similarity {
			return scored[i].Similarity > scored[j].Similarity
		}
		if scored[i].FileID != scored[j].FileID {
			return scored[i].FileID < scored[j].FileID
		}
		return scored[i].Index < scored[j].Index
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// Cosine computes cosine similarity between two vectors. Mismatched or
// zero-magnitude vectors score 0.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
