package ingest

import (
	"context"

	"github.com/quarrylabs/quarry/internal/domain"
)

// ChunkHandler accepts one delivered chunk event. A nil return is the
// acknowledgment; sources must only ack after the handler has accepted
// the event, never before.
type ChunkHandler func(ctx context.Context, c domain.Chunk) error

// EventSource delivers chunk-processing events. Delivery is at-least-once;
// the same chunk ID may arrive more than once and downstream writes must
// be overwritable. Implementations may push or poll, the pipeline only
// sees the deliver-and-acknowledge contract.
type EventSource interface {
	// Run delivers events to handle until ctx is done or the source is
	// exhausted. An event is acknowledged only when handle returns nil.
	Run(ctx context.Context, handle ChunkHandler) error
}

// ChannelSource adapts an in-process channel to the EventSource contract.
// Used by the document intake path and by tests.
type ChannelSource struct {
	events <-chan domain.Chunk
}

// NewChannelSource creates a source reading from events until it closes.
func NewChannelSource(events <-chan domain.Chunk) *ChannelSource {
	return &ChannelSource{events: events}
}

// Run implements EventSource. An event the handler refuses stays
// unacknowledged; redelivery is the upstream broker's concern.
func (s *ChannelSource) Run(ctx context.Context, handle ChunkHandler) error {
	for {
		select {
		case c, ok := <-s.events:
			if !ok {
				return nil
			}
			if err := handle(ctx, c); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				// handler refused the event; it stays unacknowledged
				continue
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
