package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

const defaultHeartbeat = 25 * time.Second

// Stream writes run events to an HTTP client as server-sent events.
type Stream struct {
	w         io.Writer
	flush     func()
	heartbeat time.Duration
	mu        sync.Mutex
}

// NewStream prepares an SSE response on the given writer.
func NewStream(w http.ResponseWriter) *Stream {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")

	var flushFn func()
	if f, ok := w.(http.Flusher); ok {
		flushFn = f.Flush
	}

	return &Stream{
		w:         w,
		flush:     flushFn,
		heartbeat: defaultHeartbeat,
	}
}

// NewStreamWriter wraps a plain writer, for tests and log capture.
func NewStreamWriter(w io.Writer) *Stream {
	return &Stream{w: w}
}

// SetHeartbeat adjusts the keepalive interval; <= 0 disables it.
func (s *Stream) SetHeartbeat(d time.Duration) {
	if d <= 0 {
		s.heartbeat = 0
		return
	}
	s.heartbeat = d
}

// StreamEvents drains the channel into the SSE response until the
// channel closes or the context is cancelled.
func (s *Stream) StreamEvents(ctx context.Context, events <-chan Event) error {
	if s == nil {
		return errors.New("event: stream is nil")
	}
	var ticker *time.Ticker
	if s.heartbeat > 0 {
		ticker = time.NewTicker(s.heartbeat)
		defer ticker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return s.write([]byte("event: complete\ndata: {}\n\n"))
			}
			if err := s.Send(evt); err != nil {
				return err
			}
		case <-heartbeatChan(ticker):
			if err := s.sendHeartbeat(); err != nil {
				return err
			}
		}
	}
}

// Send writes one event as an SSE frame.
func (s *Stream) Send(evt Event) error {
	if s == nil {
		return errors.New("event: stream is nil")
	}
	normalized := normalizeEvent(evt)
	body, err := json.Marshal(normalized)
	if err != nil {
		return fmt.Errorf("event: marshal SSE payload: %w", err)
	}

	frame := fmt.Sprintf("id: %s\nevent: %s\ndata: %s\n\n", normalized.ID, normalized.Type, body)
	return s.write([]byte(frame))
}

func (s *Stream) sendHeartbeat() error {
	if s == nil || s.w == nil || s.heartbeat <= 0 {
		return nil
	}
	payload := fmt.Sprintf(": ping %d\n\n", time.Now().Unix())
	return s.write([]byte(payload))
}

func (s *Stream) write(data []byte) error {
	if s == nil || s.w == nil {
		return errors.New("event: stream writer not configured")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.w.Write(data); err != nil {
		return err
	}
	if s.flush != nil {
		s.flush()
	}
	return nil
}

func heartbeatChan(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
