package model

import (
	"context"
	"encoding/json"
)

// ToolDefinition describes a callable tool in the schema providers expect.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// ChatRequest is one model invocation: the full history plus tool and
// response-format settings.
type ChatRequest struct {
	Messages   []Message
	Tools      []ToolDefinition
	JSONSchema json.RawMessage
	JSONStrict bool
}

// Delta is one incremental fragment of a streamed assistant turn. Content
// fragments concatenate in arrival order; ToolCall amends the in-progress
// call addressed by its slot index.
type Delta struct {
	Role     Role
	Content  string
	ToolCall *ToolCallDelta
}

// ToolCallDelta amends one tool-call slot. ID replaces the slot's id when
// non-empty; Name and Arguments are incremental substrings that append to
// the slot's running values.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// DeltaFunc receives streamed deltas. Returning an error stops the stream.
type DeltaFunc func(Delta) error

// Provider is the model port implemented per vendor outside this core.
// Implementations must honor ctx cancellation and surface vendor errors
// as a single error with a human-readable message.
type Provider interface {
	Name() string

	// ChatComplete performs a blocking call and returns the finished
	// assistant message.
	ChatComplete(ctx context.Context, req ChatRequest) (Message, error)

	// ChatStream invokes fn once per delta; the caller finalizes the
	// fragments into a message.
	ChatStream(ctx context.Context, req ChatRequest, fn DeltaFunc) error
}

// Embedder is the embedding port used by RAG indexing and retrieval.
type Embedder interface {
	Embed(ctx context.Context, modelID string, texts []string) ([][]float32, error)
}
