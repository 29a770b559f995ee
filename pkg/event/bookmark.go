package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Bookmark records a resumable position in a run: how many messages the
// transcript held plus an opaque state snapshot. A host can persist it
// and later rebuild the history to continue the conversation.
type Bookmark struct {
	ID       string `json:"id"`
	Position int64  `json:"position"`
	State    []byte `json:"state,omitempty"`
}

var errNilBookmark = errors.New("bookmark: nil reference")

// NewBookmark creates a bookmark; state is persisted as JSON.
func NewBookmark(id string, position int64, state any) (*Bookmark, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("bookmark: id is empty")
	}
	if position < 0 {
		return nil, fmt.Errorf("bookmark: invalid position %d", position)
	}
	snapshot, err := encodeState(state)
	if err != nil {
		return nil, err
	}
	return &Bookmark{ID: id, Position: position, State: snapshot}, nil
}

// Clone deep-copies the bookmark so callers never share the state slice.
func (b *Bookmark) Clone() *Bookmark {
	if b == nil {
		return nil
	}
	clone := *b
	if len(b.State) > 0 {
		clone.State = append([]byte(nil), b.State...)
	}
	return &clone
}

// Snapshot replaces the state with a fresh JSON snapshot.
func (b *Bookmark) Snapshot(state any) error {
	if b == nil {
		return errNilBookmark
	}
	snapshot, err := encodeState(state)
	if err != nil {
		return err
	}
	b.State = snapshot
	return nil
}

// Restore decodes the state snapshot into target.
func (b *Bookmark) Restore(target any) error {
	if b == nil || len(b.State) == 0 || target == nil {
		return nil
	}
	return json.Unmarshal(b.State, target)
}

// Advance moves the position forward; rollback is an error.
func (b *Bookmark) Advance(position int64) error {
	if b == nil {
		return errNilBookmark
	}
	if position < b.Position {
		return fmt.Errorf("bookmark: position rollback %d -> %d", b.Position, position)
	}
	b.Position = position
	return nil
}

func encodeState(state any) ([]byte, error) {
	switch v := state.(type) {
	case nil:
		return nil, nil
	case []byte:
		return append([]byte(nil), v...), nil
	case json.RawMessage:
		return append([]byte(nil), v...), nil
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("bookmark: marshal state: %w", err)
		}
		return data, nil
	}
}
