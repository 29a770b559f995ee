package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/promptlab/agentloop/pkg/engine"
	"github.com/promptlab/agentloop/pkg/event"
	"github.com/promptlab/agentloop/pkg/kbstore"
	"github.com/promptlab/agentloop/pkg/model"
	"github.com/promptlab/agentloop/pkg/model/openaicompat"
	"github.com/promptlab/agentloop/pkg/rag"
	"github.com/promptlab/agentloop/pkg/tool"
)

// wireRequest mirrors the subset of the chat completions request the
// fake server inspects.
type wireRequest struct {
	Messages []struct {
		Role       string          `json:"role"`
		Content    json.RawMessage `json:"content"`
		ToolCallID string          `json:"tool_call_id"`
	} `json:"messages"`
	Tools []struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	} `json:"tools"`
}

// fakeOpenAI scripts a two-turn conversation: first a tool call, then a
// plain answer that echoes the tool result it was fed.
func fakeOpenAI(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/embeddings" {
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode embeddings request: %v", err)
			}
			fmt.Fprint(w, `{"data":[`)
			for i, text := range req.Input {
				if i > 0 {
					fmt.Fprint(w, ",")
				}
				// Texts mentioning shipping point one way, the rest another.
				vec := `[0.1,0.9]`
				if strings.Contains(strings.ToLower(text), "shipping") {
					vec = `[0.9,0.1]`
				}
				fmt.Fprintf(w, `{"index":%d,"embedding":%s}`, i, vec)
			}
			fmt.Fprint(w, `]}`)
			return
		}

		var req wireRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode chat request: %v", err)
		}
		switch calls.Add(1) {
		case 1:
			if len(req.Tools) != 1 || req.Tools[0].Function.Name != "add" {
				t.Errorf("tools not forwarded: %+v", req.Tools)
			}
			fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"","tool_calls":[{"id":"c1","type":"function","function":{"name":"add","arguments":"{\"a\":1,\"b\":2}"}}]},"finish_reason":"tool_calls"}]}`)
		default:
			last := req.Messages[len(req.Messages)-1]
			if last.Role != "tool" || last.ToolCallID != "c1" {
				t.Errorf("tool result not fed back: %+v", last)
			}
			var content string
			if err := json.Unmarshal(last.Content, &content); err != nil {
				t.Errorf("tool content not a string: %s", last.Content)
			}
			fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":"the sum is %s"},"finish_reason":"stop"}]}`, content)
		}
	}))
}

func TestLoopAgainstFakeServer(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOpenAI(t, &calls)
	defer srv.Close()

	provider, err := openaicompat.New(openaicompat.Options{BaseURL: srv.URL, Model: "gpt-test"})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	addTool := tool.Tool{
		Kind: tool.KindFunction,
		Name: "add",
		Parameters: &tool.JSONSchema{
			Type: "object",
			Properties: map[string]any{
				"a": map[string]any{"type": "number"},
				"b": map[string]any{"type": "number"},
			},
			Required: []string{"a", "b"},
		},
		Body: "return args.a + args.b;",
	}

	eng := engine.New(provider, nil, engine.Config{MaxIterations: 5})
	res := eng.Run(context.Background(), engine.RunRequest{
		SystemPrompt: "use the add tool",
		UserMessage:  ptr("add 1 and 2"),
		Tools:        []tool.Tool{addTool},
	})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	final := res.Messages[len(res.Messages)-1]
	if final.Content != "the sum is 3" {
		t.Fatalf("unexpected final answer: %q", final.Content)
	}
	if calls.Load() != 2 {
		t.Fatalf("expected 2 model calls, got %d", calls.Load())
	}
}

func TestIndexRetrieveAugmentAnswer(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOpenAI(t, &calls)
	defer srv.Close()

	provider, err := openaicompat.New(openaicompat.Options{BaseURL: srv.URL, Model: "gpt-test"})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	ctx := context.Background()
	store := kbstore.NewMemoryStore()
	kb := &rag.KnowledgeBase{ID: "docs", Files: []rag.File{
		{ID: "f1", Name: "shipping.md", Text: "Orders ship within two business days. Shipping is free over 50 euro."},
		{ID: "f2", Name: "returns.md", Text: "Returns are accepted within 30 days of delivery."},
	}}
	if err := store.Put(ctx, kb); err != nil {
		t.Fatalf("put kb: %v", err)
	}

	vectors, err := rag.NewIndexer(provider, rag.IndexerOptions{}).Index(ctx, kb, "embed-small", provider.Name(), nil)
	if err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := store.SetVectors(ctx, "docs", vectors); err != nil {
		t.Fatalf("set vectors: %v", err)
	}

	stored, err := store.Get(ctx, "docs")
	if err != nil {
		t.Fatalf("get kb: %v", err)
	}
	query := "When does shipping happen?"
	chunks, err := rag.NewRetriever(provider).Retrieve(ctx, query, stored, "embed-small", rag.RetrieveOptions{TopK: 1, MinSimilarity: 0.5})
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if len(chunks) != 1 || !strings.Contains(chunks[0].Text, "ship") {
		t.Fatalf("unexpected retrieval: %+v", chunks)
	}

	augmented := rag.FormatContextMessage(chunks, 1, query)
	if !strings.Contains(augmented, "business days") || !strings.HasSuffix(augmented, "Question: "+query) {
		t.Fatalf("unexpected augmented message:\n%s", augmented)
	}

	// The augmented prompt flows through the ordinary loop unchanged.
	eng := engine.New(provider, nil, engine.Config{})
	res := eng.Run(ctx, engine.RunRequest{
		SystemPrompt: "answer from the provided context",
		UserMessage:  &augmented,
		Tools: []tool.Tool{{
			Kind:       tool.KindFunction,
			Name:       "add",
			Parameters: &tool.JSONSchema{Type: "object"},
			Body:       "return args.a + args.b;",
		}},
	})
	if !res.Success {
		t.Fatalf("run failed: %s", res.Error)
	}
	if res.Messages[len(res.Messages)-1].Role != model.RoleAssistant {
		t.Fatalf("unexpected transcript tail: %+v", res.Messages)
	}
}

// fakeStreamingOpenAI answers every chat request with a two-delta SSE
// stream, the shape RunEvents consumes.
func fakeStreamingOpenAI(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\",\"content\":\"free \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"shipping\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
}

func TestRunEventsServedAsSSE(t *testing.T) {
	srv := fakeStreamingOpenAI(t)
	defer srv.Close()

	provider, err := openaicompat.New(openaicompat.Options{BaseURL: srv.URL, Model: "gpt-test"})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	ctx := context.Background()
	eng := engine.New(provider, nil, engine.Config{})
	feed := eng.RunEvents(ctx, engine.RunRequest{UserMessage: ptr("shipping policy?")})

	var buf bytes.Buffer
	if err := event.NewStreamWriter(&buf).StreamEvents(ctx, feed); err != nil {
		t.Fatalf("stream events: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"event: stream_delta",
		`"content":"free "`,
		"event: message_appended",
		"event: done",
		"event: complete",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("SSE output missing %q:\n%s", want, out)
		}
	}
	// Deltas arrive before the transcript update and terminal frames.
	if strings.Index(out, "event: stream_delta") > strings.Index(out, "event: done") {
		t.Fatal("stream deltas ordered after the done frame")
	}
}

func TestIndexingProgressOverBus(t *testing.T) {
	var calls atomic.Int32
	srv := fakeOpenAI(t, &calls)
	defer srv.Close()

	provider, err := openaicompat.New(openaicompat.Options{BaseURL: srv.URL, Model: "gpt-test"})
	if err != nil {
		t.Fatalf("provider: %v", err)
	}

	ctx := context.Background()
	progress := make(chan event.Event, 32)
	bus := event.NewBus(progress, make(chan event.Event, 4), nil)

	kb := &rag.KnowledgeBase{ID: "docs", Files: []rag.File{
		{ID: "f1", Name: "shipping.md", Text: "Orders ship within two business days."},
		{ID: "f2", Name: "returns.md", Text: "Returns are accepted within 30 days."},
	}}
	onProgress := func(stage rag.Stage, current, total int) {
		if err := bus.Emit(event.New(event.TypeProgress, "index-docs", event.ProgressData{
			Stage:   string(stage),
			Current: current,
			Total:   total,
		})); err != nil {
			t.Errorf("emit progress: %v", err)
		}
	}
	if _, err := rag.NewIndexer(provider, rag.IndexerOptions{}).Index(ctx, kb, "embed-small", provider.Name(), onProgress); err != nil {
		t.Fatalf("index: %v", err)
	}
	close(progress)

	stages := map[string]int{}
	var lastEmbedding event.ProgressData
	for evt := range progress {
		data, ok := evt.Data.(event.ProgressData)
		if !ok {
			t.Fatalf("unexpected payload on progress channel: %+v", evt)
		}
		stages[data.Stage]++
		if data.Stage == string(rag.StageEmbedding) {
			lastEmbedding = data
		}
	}
	if stages[string(rag.StageChunking)] == 0 || stages[string(rag.StageEmbedding)] == 0 {
		t.Fatalf("expected both indexing stages reported, got %v", stages)
	}
	if lastEmbedding.Current != lastEmbedding.Total {
		t.Fatalf("embedding did not finish: %+v", lastEmbedding)
	}
}

func ptr(s string) *string { return &s }
