// Package mcp connects the tool executor to remote MCP servers through
// the official Go SDK. A Client wraps one server connection; a Manager
// routes calls by server id and implements the executor's MCPCaller port.
package mcp

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/promptlab/agentloop/pkg/tool"
)

// transportBuilder is swapped in tests to stub the transport factory.
var transportBuilder = buildTransport

// Client lazily connects to a single MCP server described by a transport
// spec: "stdio://<command>", "sse://<url>", an http(s) URL (streamable
// transport), or a bare command line (stdio).
type Client struct {
	impl *mcpsdk.Client
	spec string

	mu      sync.Mutex
	session *mcpsdk.ClientSession
}

// NewClient builds a client for the given transport spec. No connection
// is attempted until the first call.
func NewClient(spec string) *Client {
	impl := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "agentloop", Version: "dev"}, nil)
	return &Client{impl: impl, spec: spec}
}

// connect returns the live session, dialing on first use. Only a
// successful session is kept; a failed attempt is retried on the next
// call so a transient dial error does not poison the client.
func (c *Client) connect(ctx context.Context) (*mcpsdk.ClientSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return c.session, nil
	}
	transport, err := transportBuilder(ctx, c.spec)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}
	session, err := c.impl.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	c.session = session
	return session, nil
}

// CallTool invokes a remote tool and flattens its content blocks into
// text. A result flagged IsError by the server comes back as an error.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	session, err := c.connect(ctx)
	if err != nil {
		return "", err
	}
	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return "", err
	}
	text := flattenContent(result.Content)
	if result.IsError {
		if text == "" {
			text = "remote tool reported an error"
		}
		return "", fmt.Errorf("tool %s: %s", name, text)
	}
	return text, nil
}

// Tools lists the server's tools as KindMCP declarations bound to the
// given server id.
func (c *Client) Tools(ctx context.Context, serverID string) ([]tool.Tool, error) {
	session, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	var tools []tool.Tool
	for remote, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool.Tool{
			Kind:        tool.KindMCP,
			Name:        remote.Name,
			Description: remote.Description,
			ServerID:    serverID,
			RemoteName:  remote.Name,
		})
	}
	return tools, nil
}

// Close tears down the session, if one was established.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

func flattenContent(blocks []mcpsdk.Content) string {
	var sb strings.Builder
	for _, block := range blocks {
		if text, ok := block.(*mcpsdk.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}

const (
	stdioPrefix = "stdio://"
	ssePrefix   = "sse://"
)

func buildTransport(ctx context.Context, spec string) (mcpsdk.Transport, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("transport spec is empty")
	}
	lowered := strings.ToLower(spec)
	switch {
	case strings.HasPrefix(lowered, stdioPrefix):
		return commandTransport(ctx, spec[len(stdioPrefix):])
	case strings.HasPrefix(lowered, ssePrefix):
		endpoint := spec[len(ssePrefix):]
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		return &mcpsdk.SSEClientTransport{Endpoint: endpoint}, nil
	case strings.HasPrefix(lowered, "http://"), strings.HasPrefix(lowered, "https://"):
		return &mcpsdk.StreamableClientTransport{Endpoint: spec}, nil
	default:
		return commandTransport(ctx, spec)
	}
}

func commandTransport(ctx context.Context, cmdSpec string) (mcpsdk.Transport, error) {
	parts := strings.Fields(strings.TrimSpace(cmdSpec))
	if len(parts) == 0 {
		return nil, fmt.Errorf("stdio command is empty")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	// #nosec G204 -- the command comes from the caller's server config.
	command := exec.CommandContext(ctx, parts[0], parts[1:]...)
	return &mcpsdk.CommandTransport{Command: command}, nil
}
