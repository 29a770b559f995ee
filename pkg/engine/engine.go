// Package engine drives the conversational tool-calling loop: it feeds
// the transcript to a model provider, executes requested tool calls, and
// repeats until the model answers in plain text or a stop condition
// fires. Stops are soft: the loop appends a control message and returns
// a transcript a caller can resume from.
package engine

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptlab/agentloop/pkg/event"
	"github.com/promptlab/agentloop/pkg/model"
	"github.com/promptlab/agentloop/pkg/sandbox"
	"github.com/promptlab/agentloop/pkg/stream"
	"github.com/promptlab/agentloop/pkg/tool"
)

// Soft-stop reasons. Each doubles as the result's Error string and the
// content of the control message appended to the transcript.
const (
	StopIterations = "Maximum tool execution iterations reached"
	StopAborted    = "Conversation aborted by user"
)

// RunRequest describes one conversational run. Either UserMessage or
// InitialMessages must be set; InitialMessages resumes a previous
// transcript verbatim.
type RunRequest struct {
	SystemPrompt    string
	UserMessage     *string
	Images          []model.Image
	InitialMessages []model.Message

	Tools         []tool.Tool
	MaxIterations int
	ToolTimeout   time.Duration

	JSONSchema json.RawMessage
	JSONStrict bool

	// Resume carries the bookmark of an earlier run so iteration
	// accounting continues across the boundary. The per-run loop
	// budget is unaffected; only the bookmark totals accumulate.
	Resume *event.Bookmark

	// OnStreamChunk enables streaming; it receives assistant text
	// fragments in arrival order, tagged with the role the provider
	// reported for the turn.
	OnStreamChunk func(content string, role model.Role)
	// OnMessageUpdate fires after every message appended to the
	// transcript, including tool results, with a snapshot of the
	// transcript so far.
	OnMessageUpdate func(messages []model.Message)
}

// RunResult is the outcome of one run. Messages always holds the full
// transcript up to the stopping point, so a failed or aborted run can
// still be inspected and resumed.
type RunResult struct {
	Success  bool
	Messages []model.Message
	Error    string
	Bookmark *event.Bookmark
}

type runState struct {
	Iterations int `json:"iterations"`
}

// Engine executes runs against one provider with one tool executor.
type Engine struct {
	provider model.Provider
	exec     *tool.Executor
	cfg      Config
}

// New builds an engine. A nil executor gets a default sandbox-backed
// one; an executor without an agent backend is wired to this engine so
// agent tools recurse through it.
func New(provider model.Provider, exec *tool.Executor, cfg Config) *Engine {
	cfg = cfg.Normalize()
	if exec == nil {
		exec = tool.NewExecutor(sandbox.New(cfg.SandboxTimeout, cfg.Env))
	}
	e := &Engine{provider: provider, exec: exec, cfg: cfg}
	if exec.Agents == nil {
		exec.Agents = e
	}
	return e
}

// Run executes the loop until the model stops requesting tools, the
// iteration cap is reached, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, req RunRequest) RunResult {
	messages := e.seedMessages(req)
	maxIters := req.MaxIterations
	if maxIters <= 0 {
		maxIters = e.cfg.MaxIterations
	}
	toolTimeout := req.ToolTimeout
	if toolTimeout <= 0 {
		toolTimeout = e.cfg.ToolTimeout
	}

	appendMsg := func(msg model.Message) {
		messages = append(messages, msg)
		if req.OnMessageUpdate != nil {
			req.OnMessageUpdate(model.CloneMessages(messages))
		}
	}

	iterations := 0
	for {
		if ctx.Err() != nil {
			appendMsg(controlMessage(StopAborted))
			return e.finish(req.Resume, messages, iterations,false, StopAborted)
		}

		assistant, err := e.modelTurn(ctx, req, messages)
		if err != nil {
			if ctx.Err() != nil {
				appendMsg(controlMessage(StopAborted))
				return e.finish(req.Resume, messages, iterations,false, StopAborted)
			}
			return e.finish(req.Resume, messages, iterations,false, err.Error())
		}
		iterations++
		appendMsg(assistant)

		if len(assistant.ToolCalls) == 0 {
			return e.finish(req.Resume, messages, iterations,true, "")
		}

		results, aborted := e.runTools(ctx, assistant.ToolCalls, req.Tools, toolTimeout)
		for _, msg := range results {
			appendMsg(msg)
		}
		if aborted {
			appendMsg(controlMessage(StopAborted))
			return e.finish(req.Resume, messages, iterations,false, StopAborted)
		}
		if iterations >= maxIters {
			appendMsg(controlMessage(StopIterations))
			return e.finish(req.Resume, messages, iterations,false, StopIterations)
		}
	}
}

// RunAgent drives a nested agent conversation for an agent tool. The
// nesting depth is tracked through ctx and capped by MaxAgentDepth.
func (e *Engine) RunAgent(ctx context.Context, spec *tool.AgentSpec, request string) (string, error) {
	ctx, err := descend(ctx, e.cfg.MaxAgentDepth)
	if err != nil {
		return "", err
	}

	res := e.Run(ctx, RunRequest{
		SystemPrompt:  spec.Instructions,
		UserMessage:   &request,
		Tools:         spec.Tools,
		MaxIterations: spec.MaxIterations,
	})
	if !res.Success {
		return "", &agentRunError{id: spec.ID, message: res.Error}
	}
	return lastAssistantContent(res.Messages), nil
}

func (e *Engine) seedMessages(req RunRequest) []model.Message {
	var messages []model.Message
	if len(req.InitialMessages) > 0 {
		messages = model.CloneMessages(req.InitialMessages)
	} else if strings.TrimSpace(req.SystemPrompt) != "" {
		messages = append(messages, model.Message{Role: model.RoleSystem, Content: req.SystemPrompt})
	}
	if req.UserMessage != nil {
		messages = append(messages, model.Message{
			Role:    model.RoleUser,
			Content: *req.UserMessage,
			Images:  req.Images,
		})
	}
	return messages
}

// modelTurn performs one provider call, streaming when the caller asks
// for chunks. Control messages never reach the provider.
func (e *Engine) modelTurn(ctx context.Context, req RunRequest, messages []model.Message) (model.Message, error) {
	chatReq := model.ChatRequest{
		Messages:   promptMessages(messages),
		Tools:      tool.Definitions(req.Tools),
		JSONSchema: req.JSONSchema,
		JSONStrict: req.JSONStrict,
	}

	if req.OnStreamChunk == nil {
		return e.provider.ChatComplete(ctx, chatReq)
	}

	agg := stream.NewAggregator()
	role := model.RoleAssistant
	err := e.provider.ChatStream(ctx, chatReq, func(d model.Delta) error {
		agg.Push(d)
		if d.Role != "" {
			role = d.Role
		}
		if d.Content != "" {
			req.OnStreamChunk(d.Content, role)
		}
		return ctx.Err()
	})
	if err != nil {
		return model.Message{}, err
	}
	return agg.Message(), nil
}

// runTools fans the calls out in parallel and collects results. On
// cancellation only results already settled are returned, in the order
// the model requested the calls.
func (e *Engine) runTools(ctx context.Context, calls []model.ToolCall, tools []tool.Tool, timeout time.Duration) ([]model.Message, bool) {
	type indexed struct {
		i   int
		msg model.Message
	}
	ch := make(chan indexed, len(calls))
	for i, call := range calls {
		go func(i int, call model.ToolCall) {
			ch <- indexed{i: i, msg: e.exec.Execute(ctx, call, tools, timeout)}
		}(i, call)
	}

	results := make([]*model.Message, len(calls))
	settled := 0
	aborted := false

collect:
	for settled < len(calls) {
		select {
		case r := <-ch:
			results[r.i] = &r.msg
			settled++
		case <-ctx.Done():
			aborted = true
			// Keep whatever already finished, without waiting.
			for {
				select {
				case r := <-ch:
					results[r.i] = &r.msg
					settled++
				default:
					break collect
				}
			}
		}
	}

	out := make([]model.Message, 0, settled)
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, aborted
}

func (e *Engine) finish(resume *event.Bookmark, messages []model.Message, iterations int, success bool, errMsg string) RunResult {
	bm := resumedBookmark(resume, messages, iterations)
	if bm == nil {
		fresh, err := event.NewBookmark(uuid.NewString(), int64(len(messages)), runState{Iterations: iterations})
		if err == nil {
			bm = fresh
		}
	}
	return RunResult{
		Success:  success,
		Messages: messages,
		Error:    errMsg,
		Bookmark: bm,
	}
}

// resumedBookmark carries a prior run's bookmark forward: position moves
// to the end of the combined transcript and the iteration total keeps
// accumulating. Returns nil when there is nothing to resume from or the
// prior state cannot be decoded.
func resumedBookmark(resume *event.Bookmark, messages []model.Message, iterations int) *event.Bookmark {
	if resume == nil {
		return nil
	}
	var prior runState
	if err := resume.Restore(&prior); err != nil {
		return nil
	}
	bm := resume.Clone()
	if err := bm.Advance(int64(len(messages))); err != nil {
		return nil
	}
	if err := bm.Snapshot(runState{Iterations: prior.Iterations + iterations}); err != nil {
		return nil
	}
	return bm
}

func controlMessage(content string) model.Message {
	return model.Message{Role: model.RoleControl, Content: content}
}

// promptMessages filters control messages out of the provider request so
// resumed transcripts replay cleanly.
func promptMessages(messages []model.Message) []model.Message {
	out := make([]model.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == model.RoleControl {
			continue
		}
		out = append(out, msg)
	}
	return out
}

func lastAssistantContent(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleAssistant && messages[i].Content != "" {
			return messages[i].Content
		}
	}
	return ""
}

var _ tool.AgentRunner = (*Engine)(nil)
