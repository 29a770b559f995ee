package engine

import (
	"context"
	"fmt"
)

type depthKey struct{}

type agentRunError struct {
	id      string
	message string
}

func (e *agentRunError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("agent %q run failed", e.id)
	}
	return fmt.Sprintf("agent %q run failed: %s", e.id, e.message)
}

// descend increments the nesting depth carried by ctx, failing once the
// cap is exceeded so cyclic agent definitions cannot recurse forever.
func descend(ctx context.Context, maxDepth int) (context.Context, error) {
	depth, _ := ctx.Value(depthKey{}).(int)
	depth++
	if depth > maxDepth {
		return nil, fmt.Errorf("agent nesting depth %d exceeds limit %d", depth, maxDepth)
	}
	return context.WithValue(ctx, depthKey{}, depth), nil
}
