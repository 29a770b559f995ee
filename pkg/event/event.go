// Package event carries the observable lifecycle of an agent run:
// stream deltas, transcript updates, progress ticks, and terminal
// outcomes. Events flow through channels or an SSE stream so hosts can
// render live output without polling.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/promptlab/agentloop/pkg/model"
)

// EventType tags the payload carried by an Event.
type EventType string

const (
	// TypeStreamDelta carries one incremental chunk of assistant text.
	TypeStreamDelta EventType = "stream_delta"
	// TypeMessageAppended reports a message added to the transcript.
	TypeMessageAppended EventType = "message_appended"
	// TypeProgress reports indexing or tool-execution progress.
	TypeProgress EventType = "progress"
	// TypeDone marks a run that finished, successfully or with a soft stop.
	TypeDone EventType = "done"
	// TypeError marks a run that failed outright.
	TypeError EventType = "error"
)

// Channel identifies one of the three physical delivery channels.
type Channel int

const (
	ChannelProgress Channel = iota + 1
	ChannelControl
	ChannelMonitor
)

// Event is one observable occurrence within a run.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Bookmark  *Bookmark `json:"bookmark,omitempty"`
}

// StreamDeltaData is the payload of TypeStreamDelta.
type StreamDeltaData struct {
	Content string `json:"content"`
}

// MessageAppendedData is the payload of TypeMessageAppended.
type MessageAppendedData struct {
	Message model.Message `json:"message"`
}

// ProgressData is the payload of TypeProgress.
type ProgressData struct {
	Stage   string `json:"stage"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
}

// DoneData is the payload of TypeDone.
type DoneData struct {
	Messages []model.Message `json:"messages"`
}

// ErrorData is the payload of TypeError.
type ErrorData struct {
	Message string `json:"message"`
}

// New constructs an event with a fresh ID and the current UTC time.
func New(typ EventType, runID string, data any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Data:      data,
	}
}

var errUnknownType = errors.New("event: unknown type")

// Validate checks that the event carries a known type and an ID.
func (e Event) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("event: id is empty")
	}
	if _, ok := channelForType(e.Type); !ok {
		return fmt.Errorf("%w: %s", errUnknownType, e.Type)
	}
	return nil
}

func normalizeEvent(evt Event) Event {
	if strings.TrimSpace(evt.ID) == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	} else {
		evt.Timestamp = evt.Timestamp.UTC()
	}
	return evt
}

func channelForType(typ EventType) (Channel, bool) {
	switch typ {
	case TypeStreamDelta, TypeProgress:
		return ChannelProgress, true
	case TypeDone, TypeError:
		return ChannelControl, true
	case TypeMessageAppended:
		return ChannelMonitor, true
	default:
		return 0, false
	}
}
