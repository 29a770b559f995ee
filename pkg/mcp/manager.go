package mcp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/promptlab/agentloop/pkg/tool"
)

// ErrUnknownServer reports calls routed to a server id that was never
// registered.
var ErrUnknownServer = errors.New("mcp: unknown server")

// Manager holds the clients for every configured MCP server and routes
// tool calls to them by server id.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{clients: make(map[string]*Client)}
}

// Register adds a server under the given id. Registering an id twice is
// an error; connections are established lazily on first use.
func (m *Manager) Register(serverID, transportSpec string) error {
	if serverID == "" {
		return errors.New("mcp: server id is empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.clients[serverID]; exists {
		return fmt.Errorf("mcp: server %q already registered", serverID)
	}
	m.clients[serverID] = NewClient(transportSpec)
	return nil
}

// CallTool implements tool.MCPCaller.
func (m *Manager) CallTool(ctx context.Context, serverID, name string, args map[string]any, timeout time.Duration) (string, error) {
	client, err := m.client(serverID)
	if err != nil {
		return "", err
	}
	return client.CallTool(ctx, name, args, timeout)
}

// Tools lists one server's tools as KindMCP declarations.
func (m *Manager) Tools(ctx context.Context, serverID string) ([]tool.Tool, error) {
	client, err := m.client(serverID)
	if err != nil {
		return nil, err
	}
	return client.Tools(ctx, serverID)
}

// Close shuts down every client, returning the joined errors.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for id, client := range m.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	m.clients = make(map[string]*Client)
	return errors.Join(errs...)
}

func (m *Manager) client(serverID string) (*Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	client, ok := m.clients[serverID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownServer, serverID)
	}
	return client, nil
}

var _ tool.MCPCaller = (*Manager)(nil)
