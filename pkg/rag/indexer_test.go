package rag

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func testIndexerOpts(batch int) IndexerOptions {
	return IndexerOptions{Chunker: newChunker(nil, 4, 1), BatchSize: batch}
}

func TestIndexProducesVectorSet(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	kb := &KnowledgeBase{ID: "kb1", Files: []File{
		{ID: "f1", Name: "a.md", Text: "one two three four five six"},
		{ID: "f2", Name: "b.md", Text: "short"},
	}}

	vs, err := NewIndexer(emb, testIndexerOpts(8)).Index(context.Background(), kb, "embed-small", "openai", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if vs.ModelID != "embed-small" || vs.ProviderID != "openai" {
		t.Fatalf("wrong model/provider: %q %q", vs.ModelID, vs.ProviderID)
	}
	if len(vs.Chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(vs.Chunks))
	}
	for i, c := range vs.Chunks {
		if len(c.Embedding) == 0 {
			t.Fatalf("chunk %d has no embedding", i)
		}
	}
	if vs.Chunks[0].FileID != "f1" || vs.Chunks[0].Index != 0 {
		t.Fatalf("wrong first chunk identity: %s/%d", vs.Chunks[0].FileID, vs.Chunks[0].Index)
	}
	if vs.Chunks[2].FileID != "f2" || vs.Chunks[2].Index != 0 {
		t.Fatalf("wrong last chunk identity: %s/%d", vs.Chunks[2].FileID, vs.Chunks[2].Index)
	}
	// Index never mutates the knowledge base itself.
	if kb.Vectors != nil {
		t.Fatal("knowledge base mutated during indexing")
	}
}

func TestIndexBatchesEmbeddings(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	kb := &KnowledgeBase{ID: "kb1", Files: []File{
		{ID: "f1", Text: strings.Repeat("word ", 40)},
	}}

	vs, err := NewIndexer(emb, testIndexerOpts(2)).Index(context.Background(), kb, "embed-small", "openai", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantCalls := (len(vs.Chunks) + 1) / 2
	if emb.calls != wantCalls {
		t.Fatalf("expected %d embed calls for %d chunks, got %d", wantCalls, len(vs.Chunks), emb.calls)
	}
}

func TestIndexProgressOrdering(t *testing.T) {
	emb := &fakeEmbedder{vectors: map[string][]float32{}}
	kb := &KnowledgeBase{ID: "kb1", Files: []File{
		{ID: "f1", Text: "one two three four five six"},
		{ID: "f2", Text: "seven eight"},
	}}

	type tick struct {
		stage          Stage
		current, total int
	}
	var ticks []tick
	_, err := NewIndexer(emb, testIndexerOpts(2)).Index(context.Background(), kb, "embed-small", "openai", func(stage Stage, current, total int) {
		ticks = append(ticks, tick{stage, current, total})
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sawEmbedding := false
	for _, tk := range ticks {
		if tk.stage == StageEmbedding {
			sawEmbedding = true
		}
		if sawEmbedding && tk.stage == StageChunking {
			t.Fatal("chunking progress after embedding started")
		}
		if tk.current < 1 || tk.current > tk.total {
			t.Fatalf("current %d out of range for total %d", tk.current, tk.total)
		}
	}
	if !sawEmbedding {
		t.Fatal("no embedding progress reported")
	}
	last := ticks[len(ticks)-1]
	if last.stage != StageEmbedding || last.current != last.total {
		t.Fatalf("final tick not a complete embedding tick: %+v", last)
	}
}

func TestIndexEmbedErrorLeavesKBUntouched(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	kb := &KnowledgeBase{ID: "kb1", Files: []File{{ID: "f1", Text: "one two three"}}}

	vs, err := NewIndexer(&fakeEmbedder{err: wantErr}, testIndexerOpts(2)).Index(context.Background(), kb, "embed-small", "openai", nil)
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped embed error, got %v", err)
	}
	if vs != nil {
		t.Fatal("expected nil vector set on error")
	}
	if kb.Vectors != nil {
		t.Fatal("knowledge base mutated on failed index")
	}
}

func TestIndexCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	kb := &KnowledgeBase{ID: "kb1", Files: []File{{ID: "f1", Text: "one two three"}}}
	vs, err := NewIndexer(&fakeEmbedder{vectors: map[string][]float32{}}, testIndexerOpts(2)).Index(ctx, kb, "embed-small", "openai", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if vs != nil {
		t.Fatal("expected nil vector set on cancellation")
	}
	if kb.Vectors != nil {
		t.Fatal("knowledge base mutated on cancelled index")
	}
}

func TestIndexEmptyKB(t *testing.T) {
	vs, err := NewIndexer(&fakeEmbedder{}, testIndexerOpts(2)).Index(context.Background(), &KnowledgeBase{ID: "kb1"}, "embed-small", "openai", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vs.Chunks) != 0 {
		t.Fatalf("expected empty chunk list, got %d", len(vs.Chunks))
	}
}
