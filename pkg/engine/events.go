package engine

import (
	"context"

	"github.com/google/uuid"

	"github.com/promptlab/agentloop/pkg/event"
	"github.com/promptlab/agentloop/pkg/model"
)

// RunEvents executes the run in a goroutine and returns its event feed.
// The channel carries stream deltas, transcript updates, and exactly one
// terminal done or error event, then closes. Callbacks already set on
// req keep firing alongside the events. A consumer that stops reading
// does not wedge the run: once ctx is cancelled, pending sends are
// dropped and the channel closes.
func (e *Engine) RunEvents(ctx context.Context, req RunRequest) <-chan event.Event {
	runID := uuid.NewString()
	events := make(chan event.Event, e.cfg.StreamBuffer)

	emit := func(evt event.Event) {
		select {
		case events <- evt:
		case <-ctx.Done():
		}
	}

	userChunk := req.OnStreamChunk
	req.OnStreamChunk = func(content string, role model.Role) {
		emit(event.New(event.TypeStreamDelta, runID, event.StreamDeltaData{Content: content}))
		if userChunk != nil {
			userChunk(content, role)
		}
	}
	userUpdate := req.OnMessageUpdate
	req.OnMessageUpdate = func(messages []model.Message) {
		if len(messages) > 0 {
			emit(event.New(event.TypeMessageAppended, runID, event.MessageAppendedData{Message: messages[len(messages)-1]}))
		}
		if userUpdate != nil {
			userUpdate(messages)
		}
	}

	go func() {
		defer close(events)
		res := e.Run(ctx, req)
		if res.Success {
			done := event.New(event.TypeDone, runID, event.DoneData{Messages: res.Messages})
			done.Bookmark = res.Bookmark
			emit(done)
			return
		}
		emit(event.New(event.TypeError, runID, event.ErrorData{Message: res.Error}))
	}()

	return events
}
