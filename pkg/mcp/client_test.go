package mcp

import (
	"context"
	"fmt"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

func TestBuildTransportSpecs(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name string
		spec string
		want string
	}{
		{name: "stdio scheme", spec: "stdio://node server.js", want: "command"},
		{name: "bare command", spec: "python -m my_server", want: "command"},
		{name: "sse scheme", spec: "sse://example.com/mcp", want: "sse"},
		{name: "sse with explicit scheme", spec: "sse://http://localhost:9000/mcp", want: "sse"},
		{name: "http streamable", spec: "https://example.com/mcp", want: "http"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport, err := buildTransport(ctx, tt.spec)
			if err != nil {
				t.Fatalf("buildTransport: %v", err)
			}
			switch tt.want {
			case "command":
				if _, ok := transport.(*mcpsdk.CommandTransport); !ok {
					t.Fatalf("expected command transport, got %T", transport)
				}
			case "sse":
				sse, ok := transport.(*mcpsdk.SSEClientTransport)
				if !ok {
					t.Fatalf("expected SSE transport, got %T", transport)
				}
				if sse.Endpoint == "" {
					t.Fatal("sse endpoint is empty")
				}
			case "http":
				if _, ok := transport.(*mcpsdk.StreamableClientTransport); !ok {
					t.Fatalf("expected streamable transport, got %T", transport)
				}
			}
		})
	}
}

func TestBuildTransportRejectsEmptySpecs(t *testing.T) {
	for _, spec := range []string{"", "   ", "stdio://"} {
		if _, err := buildTransport(context.Background(), spec); err == nil {
			t.Fatalf("expected error for spec %q", spec)
		}
	}
}

func TestSSESchemeGuess(t *testing.T) {
	transport, err := buildTransport(context.Background(), "sse://example.com/events")
	if err != nil {
		t.Fatalf("buildTransport: %v", err)
	}
	sse := transport.(*mcpsdk.SSEClientTransport)
	if sse.Endpoint != "https://example.com/events" {
		t.Fatalf("unexpected endpoint: %s", sse.Endpoint)
	}
}

func TestConnectFailureIsRetried(t *testing.T) {
	orig := transportBuilder
	defer func() { transportBuilder = orig }()

	// Each attempt sees a different dial error. A cached first error
	// would surface "dial 1" on every call.
	attempt := 0
	transportBuilder = func(ctx context.Context, spec string) (mcpsdk.Transport, error) {
		attempt++
		return nil, fmt.Errorf("dial %d", attempt)
	}

	c := NewClient("stdio://fake")
	if _, err := c.CallTool(context.Background(), "t", nil, 0); err == nil || !strings.Contains(err.Error(), "dial 1") {
		t.Fatalf("expected first dial error, got %v", err)
	}
	if _, err := c.CallTool(context.Background(), "t", nil, 0); err == nil || !strings.Contains(err.Error(), "dial 2") {
		t.Fatalf("expected fresh dial error on retry, got %v", err)
	}
	if attempt != 2 {
		t.Fatalf("expected 2 connection attempts, got %d", attempt)
	}
}

func TestFlattenContent(t *testing.T) {
	got := flattenContent([]mcpsdk.Content{
		&mcpsdk.TextContent{Text: "hello "},
		&mcpsdk.TextContent{Text: "world"},
	})
	if got != "hello world" {
		t.Fatalf("unexpected text: %q", got)
	}
	if flattenContent(nil) != "" {
		t.Fatal("expected empty string for no content")
	}
}
