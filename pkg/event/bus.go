package event

import (
	"context"
	"errors"
	"fmt"
)

// Bus routes events to three physical channels by type: high-volume
// progress traffic (deltas, progress ticks), control outcomes (done,
// error), and transcript monitoring (appended messages). Callers own
// buffering and consumption policy for each channel.
type Bus struct {
	progress chan<- Event
	control  chan<- Event
	monitor  chan<- Event
}

var (
	errNilBus          = errors.New("event: bus is nil")
	errUnboundProgress = errors.New("event: progress channel not bound")
	errUnboundControl  = errors.New("event: control channel not bound")
	errUnboundMonitor  = errors.New("event: monitor channel not bound")
)

// NewBus builds a bus over the given channels. Any channel may be nil;
// emitting to an unbound channel is an error.
func NewBus(progress, control, monitor chan<- Event) *Bus {
	return &Bus{progress: progress, control: control, monitor: monitor}
}

// Emit normalizes, validates, and routes the event to its channel.
func (b *Bus) Emit(evt Event) error {
	if b == nil {
		return errNilBus
	}
	normalized := normalizeEvent(evt)
	if err := normalized.Validate(); err != nil {
		return err
	}

	ch, ok := channelForType(normalized.Type)
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownType, normalized.Type)
	}

	switch ch {
	case ChannelProgress:
		return b.dispatch(b.progress, normalized, errUnboundProgress)
	case ChannelControl:
		return b.dispatch(b.control, normalized, errUnboundControl)
	case ChannelMonitor:
		return b.dispatch(b.monitor, normalized, errUnboundMonitor)
	default:
		return fmt.Errorf("%w: %s", errUnknownType, normalized.Type)
	}
}

// Forward drains the feed into the bus until the feed closes or ctx is
// cancelled, routing each event to its channel.
func (b *Bus) Forward(ctx context.Context, events <-chan Event) error {
	if b == nil {
		return errNilBus
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				return nil
			}
			if err := b.Emit(evt); err != nil {
				return err
			}
		}
	}
}

func (b *Bus) dispatch(ch chan<- Event, evt Event, errUnbound error) error {
	if ch == nil {
		return errUnbound
	}
	ch <- evt
	return nil
}
