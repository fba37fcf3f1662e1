package channel

import (
	"context"
	"errors"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// ErrBufferFull is returned when an event cannot be buffered. Emit never
// blocks the caller.
var ErrBufferFull = errors.New("event bus buffer full")

// MetricsSink records event bus metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	BufferSizeUpdate(size int)
	BufferCapacitySet(capacity int)
	EmitError()
}

type EventBus struct {
	ch      chan domain.TransitionEvent
	metrics MetricsSink
}

func NewEventBus(buffer int) *EventBus {
	return &EventBus{
		ch: make(chan domain.TransitionEvent, buffer),
	}
}

// WithMetrics attaches a metrics sink to the bus.
func (b *EventBus) WithMetrics(sink MetricsSink) *EventBus {
	b.metrics = sink
	if sink != nil {
		sink.BufferCapacitySet(cap(b.ch))
	}
	return b
}

// Emit buffers event or fails immediately with ErrBufferFull. The context
// is not consulted: an event for a transition the ledger already accepted
// is buffered even while the cycle that produced it is shutting down.
func (b *EventBus) Emit(_ context.Context, event domain.TransitionEvent) error {
	select {
	case b.ch <- event:
		if b.metrics != nil {
			b.metrics.BufferSizeUpdate(len(b.ch))
		}
		return nil
	default:
		if b.metrics != nil {
			b.metrics.EmitError()
		}
		return ErrBufferFull
	}
}

func (b *EventBus) Channel() <-chan domain.TransitionEvent {
	return b.ch
}

// Len returns the number of buffered events.
func (b *EventBus) Len() int {
	return len(b.ch)
}
