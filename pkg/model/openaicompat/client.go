// Package openaicompat adapts any OpenAI-compatible chat completions
// endpoint to the model.Provider and model.Embedder ports. It speaks the
// /chat/completions wire format for blocking and SSE-streamed calls and
// /embeddings for vectors, so one adapter covers OpenAI itself plus the
// many local and hosted servers that mirror its API.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/promptlab/agentloop/pkg/model"
)

const providerName = "openai-compat"

var dataPrefix = []byte("data: ")

// Options configures a Client. BaseURL and Model are required; APIKey is
// optional for local servers that skip auth.
type Options struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	MaxTokens   *int
	HTTPClient  *http.Client
}

// Client talks to one OpenAI-compatible endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature *float64
	maxTokens   *int
	client      *http.Client
}

// New validates the options and builds a client.
func New(opts Options) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("openaicompat: base URL is required")
	}
	if strings.TrimSpace(opts.Model) == "" {
		return nil, errors.New("openaicompat: model is required")
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{
		baseURL:     baseURL,
		apiKey:      opts.APIKey,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		client:      client,
	}, nil
}

// Name identifies this provider in logs and vector-set metadata.
func (c *Client) Name() string {
	return providerName
}

// ChatComplete performs one blocking completion call.
func (c *Client) ChatComplete(ctx context.Context, req model.ChatRequest) (model.Message, error) {
	body, err := c.requestBody(req, false)
	if err != nil {
		return model.Message{}, err
	}
	res, err := c.post(ctx, "/chat/completions", body, false)
	if err != nil {
		return model.Message{}, err
	}
	defer res.Body.Close()

	var parsed chatCompletion
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return model.Message{}, fmt.Errorf("openaicompat: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return model.Message{}, errors.New("openaicompat: response has no choices")
	}
	return parsed.Choices[0].Message.toMessage(), nil
}

// ChatStream performs one SSE-streamed completion call, invoking fn per
// delta in arrival order.
func (c *Client) ChatStream(ctx context.Context, req model.ChatRequest, fn model.DeltaFunc) error {
	body, err := c.requestBody(req, true)
	if err != nil {
		return err
	}
	res, err := c.post(ctx, "/chat/completions", body, true)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	scanner := bufio.NewScanner(res.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(bytes.TrimPrefix(line, dataPrefix))
		if string(payload) == "[DONE]" {
			return nil
		}

		var chunk chatCompletionChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			// Some servers interleave non-JSON keepalives; skip them.
			continue
		}
		for _, choice := range chunk.Choices {
			for _, delta := range choice.deltas() {
				if err := fn(delta); err != nil {
					return err
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("openaicompat: read stream: %w", err)
	}
	return nil
}

// Embed requests embeddings for texts in one call, preserving order.
func (c *Client) Embed(ctx context.Context, modelID string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if strings.TrimSpace(modelID) == "" {
		modelID = c.model
	}
	body, err := json.Marshal(embeddingRequest{Model: modelID, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("openaicompat: encode request: %w", err)
	}
	res, err := c.post(ctx, "/embeddings", body, false)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	var parsed embeddingResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("openaicompat: decode response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("openaicompat: got %d embeddings for %d inputs", len(parsed.Data), len(texts))
	}
	out := make([][]float32, len(parsed.Data))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("openaicompat: embedding index %d out of range", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

func (c *Client) requestBody(req model.ChatRequest, stream bool) ([]byte, error) {
	wire := chatRequest{
		Model:       c.model,
		Messages:    wireMessages(req.Messages),
		Stream:      stream,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	for _, def := range req.Tools {
		wire.Tools = append(wire.Tools, toolSuper{
			Type: "function",
			Function: toolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	if len(req.JSONSchema) > 0 {
		wire.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchemaFormat{
				Name:   "response",
				Strict: req.JSONStrict,
				Schema: req.JSONSchema,
			},
		}
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: encode request: %w", err)
	}
	return body, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte, stream bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openaicompat: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
		req.Header.Set("Connection", "keep-alive")
	}

	res, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openaicompat: execute request: %w", err)
	}
	if res.StatusCode != http.StatusOK {
		defer res.Body.Close()
		payload, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("openaicompat: unexpected status %s: %s", res.Status, strings.TrimSpace(string(payload)))
	}
	return res, nil
}

func wireMessages(msgs []model.Message) []wireMessage {
	out := make([]wireMessage, 0, len(msgs))
	for _, msg := range msgs {
		wm := wireMessage{
			Role:       string(msg.Role),
			ToolCallID: msg.ToolCallID,
		}
		if len(msg.Images) > 0 {
			parts := []contentPart{{Type: "text", Text: msg.Content}}
			for _, img := range msg.Images {
				parts = append(parts, contentPart{
					Type: "image_url",
					ImageURL: &imageURL{
						URL: fmt.Sprintf("data:%s;base64,%s", img.MIME, base64.StdEncoding.EncodeToString(img.Data)),
					},
				})
			}
			wm.Content = parts
		} else {
			wm.Content = msg.Content
		}
		for _, call := range msg.ToolCalls {
			wm.ToolCalls = append(wm.ToolCalls, wireToolCall{
				ID:   call.ID,
				Type: call.Type,
				Function: wireFunc{
					Name:      call.Function.Name,
					Arguments: call.Function.Arguments,
				},
			})
		}
		out = append(out, wm)
	}
	return out
}

var _ model.Provider = (*Client)(nil)
var _ model.Embedder = (*Client)(nil)
