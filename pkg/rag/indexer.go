package rag

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/promptlab/agentloop/pkg/model"
)

// Stage names reported through ProgressFunc.
type Stage string

const (
	StageChunking  Stage = "chunking"
	StageEmbedding Stage = "embedding"
)

// ProgressFunc receives fire-and-forget progress notifications. The
// indexer never blocks on its return value.
type ProgressFunc func(stage Stage, current, total int)

const defaultEmbedBatch = 16

// IndexerOptions tunes an Indexer. The zero value selects the default
// chunker, batch size, and no rate limiting.
type IndexerOptions struct {
	Chunker   *Chunker
	BatchSize int

	// EmbedsPerSecond throttles embedding batches when positive,
	// protecting rate-limited providers during large re-indexes.
	EmbedsPerSecond float64
}

// Indexer embeds knowledge-base files into a fresh vector set.
type Indexer struct {
	embedder model.Embedder
	chunker  *Chunker
	batch    int
	limiter  *rate.Limiter
}

// NewIndexer builds an indexer over the given embedding port.
func NewIndexer(embedder model.Embedder, opts IndexerOptions) *Indexer {
	chunker := opts.Chunker
	if chunker == nil {
		chunker = NewChunker(0, -1)
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultEmbedBatch
	}
	var limiter *rate.Limiter
	if opts.EmbedsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.EmbedsPerSecond), 1)
	}
	return &Indexer{embedder: embedder, chunker: chunker, batch: batch, limiter: limiter}
}

// Index chunks every file and embeds the chunks, returning a complete
// vector set. On error or cancellation nothing is returned and the
// knowledge base is left untouched, so readers only ever observe the
// previous complete index or the new one.
func (ix *Indexer) Index(ctx context.Context, kb *KnowledgeBase, modelID, providerID string, onProgress ProgressFunc) (*VectorSet, error) {
	if kb == nil {
		return nil, fmt.Errorf("rag: knowledge base is nil")
	}

	var chunks []Chunk
	for fi, file := range kb.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i, part := range ix.chunker.Split(file.Text) {
			chunks = append(chunks, Chunk{FileID: file.ID, Index: i, Text: part})
		}
		notify(onProgress, StageChunking, fi+1, len(kb.Files))
	}

	for done := 0; done < len(chunks); done += ix.batch {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if ix.limiter != nil {
			if err := ix.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		end := done + ix.batch
		if end > len(chunks) {
			end = len(chunks)
		}
		texts := make([]string, 0, end-done)
		for _, c := range chunks[done:end] {
			texts = append(texts, c.Text)
		}
		vectors, err := ix.embedder.Embed(ctx, modelID, texts)
		if err != nil {
			return nil, fmt.Errorf("embed batch: %w", err)
		}
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embed batch: got %d vectors for %d texts", len(vectors), len(texts))
		}
		for i := range vectors {
			chunks[done+i].Embedding = vectors[i]
		}
		notify(onProgress, StageEmbedding, end, len(chunks))
	}

	return &VectorSet{ModelID: modelID, ProviderID: providerID, Chunks: chunks}, nil
}

func notify(fn ProgressFunc, stage Stage, current, total int) {
	if fn != nil {
		fn(stage, current, total)
	}
}
