// Package stream merges incremental model-output deltas into complete
// assistant messages. Providers transmit tool calls as fragments addressed
// by a slot index; the aggregator reassembles them regardless of arrival
// order.
package stream

import (
	"sort"
	"strings"

	"github.com/promptlab/agentloop/pkg/model"
)

type slot struct {
	id   string
	name strings.Builder
	args strings.Builder
}

// Aggregator accumulates deltas for one assistant turn. The zero value is
// not usable; construct with NewAggregator.
type Aggregator struct {
	role    model.Role
	content strings.Builder
	slots   map[int]*slot
}

// NewAggregator returns an empty aggregator for a single model turn.
func NewAggregator() *Aggregator {
	return &Aggregator{slots: make(map[int]*slot)}
}

// Push merges one delta. Content fragments concatenate in arrival order.
// A tool-call delta lazily creates the slot for its index; later deltas
// for a seen index amend that slot and never shift others.
func (a *Aggregator) Push(d model.Delta) {
	if d.Role != "" {
		a.role = d.Role
	}
	if d.Content != "" {
		a.content.WriteString(d.Content)
	}
	tc := d.ToolCall
	if tc == nil {
		return
	}
	s := a.slots[tc.Index]
	if s == nil {
		s = &slot{}
		a.slots[tc.Index] = s
	}
	if tc.ID != "" {
		s.id = tc.ID
	}
	s.name.WriteString(tc.Name)
	s.args.WriteString(tc.Arguments)
}

// HasToolCalls reports whether any tool-call slot has been opened.
func (a *Aggregator) HasToolCalls() bool {
	return len(a.slots) > 0
}

// Message finalizes the accumulated fragments. Slots become tool calls in
// index order; a slot with empty arguments is still a valid call.
func (a *Aggregator) Message() model.Message {
	role := a.role
	if role == "" {
		role = model.RoleAssistant
	}
	msg := model.Message{Role: role, Content: a.content.String()}
	if len(a.slots) == 0 {
		return msg
	}

	indices := make([]int, 0, len(a.slots))
	for idx := range a.slots {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	msg.ToolCalls = make([]model.ToolCall, 0, len(indices))
	for _, idx := range indices {
		s := a.slots[idx]
		msg.ToolCalls = append(msg.ToolCalls, model.ToolCall{
			ID:   s.id,
			Type: "function",
			Function: model.FunctionCall{
				Name:      s.name.String(),
				Arguments: s.args.String(),
			},
		})
	}
	return msg
}
