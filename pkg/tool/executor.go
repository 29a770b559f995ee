package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/promptlab/agentloop/pkg/model"
	"github.com/promptlab/agentloop/pkg/sandbox"
)

// MCPCaller forwards a tool call to a remote MCP server. Implemented by
// pkg/mcp; failures come back as ordinary errors.
type MCPCaller interface {
	CallTool(ctx context.Context, serverID, name string, args map[string]any, timeout time.Duration) (string, error)
}

// AgentRunner drives a nested agent sub-conversation. Implemented by the
// loop engine.
type AgentRunner interface {
	RunAgent(ctx context.Context, spec *AgentSpec, request string) (string, error)
}

// Executor resolves tool calls against an invocation's tool set and
// dispatches them to the matching backend. Execution never fails at the
// message level: every outcome, including errors, becomes the content of
// a tool message carrying the originating call's id.
type Executor struct {
	Sandbox *sandbox.Sandbox
	MCP     MCPCaller
	Agents  AgentRunner
}

// NewExecutor builds an executor around the given sandbox. MCP and agent
// backends are optional; calls routed to an absent backend produce error
// payloads.
func NewExecutor(sb *sandbox.Sandbox) *Executor {
	if sb == nil {
		sb = sandbox.New(0, nil)
	}
	return &Executor{Sandbox: sb}
}

// Execute runs one tool call and returns the tool message for it.
func (e *Executor) Execute(ctx context.Context, call model.ToolCall, tools []Tool, timeout time.Duration) model.Message {
	msg := model.Message{Role: model.RoleTool, ToolCallID: call.ID}

	t, ok := Resolve(tools, call.Function.Name)
	if !ok {
		msg.Content = errorContent(fmt.Sprintf("tool %q not found", call.Function.Name))
		return msg
	}

	switch t.Kind {
	case KindFunction:
		msg.Content = e.runFunction(ctx, t, call, timeout)
	case KindMCP:
		msg.Content = e.runMCP(ctx, t, call, timeout)
	case KindAgent:
		msg.Content = e.runAgent(ctx, t, call)
	default:
		msg.Content = errorContent(fmt.Sprintf("tool %q has unknown kind", t.Name))
	}
	return msg
}

func (e *Executor) runFunction(ctx context.Context, t Tool, call model.ToolCall, timeout time.Duration) string {
	args, err := parseArguments(call.Function.Arguments)
	if err != nil {
		return errorContent(fmt.Sprintf("invalid arguments: %v", err))
	}
	if err := t.Parameters.Validate(args); err != nil {
		return errorContent(fmt.Sprintf("invalid arguments: %v", err))
	}

	res := e.Sandbox.Execute(ctx, t.Body, args, timeout)
	if !res.Success {
		return errorContent(res.Error)
	}
	return renderValue(res.Value)
}

func (e *Executor) runMCP(ctx context.Context, t Tool, call model.ToolCall, timeout time.Duration) string {
	if e.MCP == nil {
		return errorContent("no MCP transport configured")
	}
	args, err := parseArguments(call.Function.Arguments)
	if err != nil {
		return errorContent(fmt.Sprintf("invalid arguments: %v", err))
	}
	name := t.RemoteName
	if name == "" {
		name = t.Name
	}
	out, err := e.MCP.CallTool(ctx, t.ServerID, name, args, timeout)
	if err != nil {
		return errorContent(err.Error())
	}
	return out
}

func (e *Executor) runAgent(ctx context.Context, t Tool, call model.ToolCall) string {
	if e.Agents == nil {
		return errorContent("no agent runner configured")
	}
	if t.Agent == nil {
		return errorContent(fmt.Sprintf("tool %q has no agent configuration", t.Name))
	}
	out, err := e.Agents.RunAgent(ctx, t.Agent, agentRequest(call.Function.Arguments))
	if err != nil {
		return errorContent(err.Error())
	}
	return out
}

// agentRequest extracts the "request" field from the call arguments. The
// raw argument string is used as-is when the field is absent or the
// payload is not valid JSON.
func agentRequest(arguments string) string {
	var payload struct {
		Request string `json:"request"`
	}
	if err := json.Unmarshal([]byte(arguments), &payload); err == nil && payload.Request != "" {
		return payload.Request
	}
	return arguments
}

func parseArguments(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

// renderValue converts a successful result into tool message content:
// strings pass through, everything else renders as compact JSON.
func renderValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	}
}

func errorContent(message string) string {
	data, err := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: message})
	if err != nil {
		return `{"error":"unrenderable error"}`
	}
	return string(data)
}
