// Package tool defines the tools visible to one loop invocation and the
// executor that dispatches model-requested calls to them. A tool is one
// of three variants: a local sandboxed function, a remote MCP tool, or a
// nested agent. The variant is fixed when the tool is declared, never
// re-derived at call sites.
package tool

import (
	"encoding/json"

	"github.com/promptlab/agentloop/pkg/model"
)

// Kind tags the tool variant.
type Kind int

const (
	KindFunction Kind = iota + 1
	KindMCP
	KindAgent
)

// String returns the variant name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindFunction:
		return "function"
	case KindMCP:
		return "mcp"
	case KindAgent:
		return "agent"
	default:
		return "unknown"
	}
}

// Tool declares one callable tool. Name must be unique within the set
// visible to a single loop invocation; the caller enforces uniqueness.
type Tool struct {
	Kind        Kind
	Name        string
	Description string

	// Parameters optionally constrains the arguments of a KindFunction
	// tool; it is also surfaced to the model for all variants.
	Parameters *JSONSchema

	// Body is the JavaScript function body of a KindFunction tool.
	Body string

	// ServerID and RemoteName route a KindMCP tool. RemoteName defaults
	// to Name when empty.
	ServerID   string
	RemoteName string

	// Agent describes the sub-conversation of a KindAgent tool.
	Agent *AgentSpec
}

// AgentSpec is the configuration of a nested agent invoked as a tool.
type AgentSpec struct {
	ID            string
	Instructions  string
	Tools         []Tool
	MaxIterations int
}

// Resolve finds a tool by name within one invocation's tool set.
func Resolve(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Definitions converts the tool set into the provider-facing schema.
func Definitions(tools []Tool) []model.ToolDefinition {
	if len(tools) == 0 {
		return nil
	}
	defs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		def := model.ToolDefinition{Name: t.Name, Description: t.Description}
		if t.Parameters != nil {
			if raw, err := json.Marshal(t.Parameters); err == nil {
				def.Parameters = raw
			}
		}
		defs = append(defs, def)
	}
	return defs
}
