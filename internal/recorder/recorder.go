// Package recorder delivers transition events from the event bus to the
// configured sinks. Sinks are best-effort: a failing sink is logged and never
// affects the coordinator or the other sinks.
package recorder

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// Sink receives every transition event.
type Sink interface {
	Name() string
	Record(ctx context.Context, event domain.TransitionEvent) error
}

// MetricsSink records delivery metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	SinkDelivered(sink string, err error)
	BufferSizeUpdate(size int)
}

// DefaultDrainTimeout is the maximum time to wait for buffered events during shutdown.
const DefaultDrainTimeout = 10 * time.Second

type Recorder struct {
	sinks        []Sink
	metrics      MetricsSink
	drainTimeout time.Duration
	logger       *log.Entry
}

func New(sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:        sinks,
		drainTimeout: DefaultDrainTimeout,
		logger:       log.WithField("component", "recorder"),
	}
}

// WithMetrics attaches a metrics sink to the recorder.
func (r *Recorder) WithMetrics(sink MetricsSink) *Recorder {
	r.metrics = sink
	return r
}

func (r *Recorder) WithDrainTimeout(d time.Duration) *Recorder {
	if d > 0 {
		r.drainTimeout = d
	}
	return r
}

// Sinks returns the names of the configured sinks.
func (r *Recorder) Sinks() []string {
	names := make([]string, 0, len(r.sinks))
	for _, s := range r.sinks {
		names = append(names, s.Name())
	}
	return names
}

// Run processes events from the channel until context is cancelled.
// After cancellation, it drains remaining buffered events with a timeout.
func (r *Recorder) Run(ctx context.Context, ch <-chan domain.TransitionEvent) {
	r.logger.WithField("sinks", r.Sinks()).Info("recorder started")
	for {
		select {
		case <-ctx.Done():
			r.drain(ch)
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if r.metrics != nil {
				r.metrics.BufferSizeUpdate(len(ch))
			}
			r.Record(ctx, event)
		}
	}
}

// drain processes remaining events in the channel buffer after shutdown signal.
// Uses a background context since the main context is already cancelled.
func (r *Recorder) drain(ch <-chan domain.TransitionEvent) {
	drainCtx, cancel := context.WithTimeout(context.Background(), r.drainTimeout)
	defer cancel()

	count := 0
	defer func() {
		if count > 0 {
			r.logger.WithField("events", count).Info("drain complete")
		}
	}()

	for {
		select {
		case <-drainCtx.Done():
			r.logger.WithField("events", count).Warn("drain timeout")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			r.Record(drainCtx, event)
			count++
		default:
			return
		}
	}
}

// Record delivers event to every sink in order.
func (r *Recorder) Record(ctx context.Context, event domain.TransitionEvent) {
	for _, s := range r.sinks {
		err := s.Record(ctx, event)
		if r.metrics != nil {
			r.metrics.SinkDelivered(s.Name(), err)
		}
		if err != nil {
			r.logger.WithFields(log.Fields{
				"sink":       s.Name(),
				"trigger_id": event.TriggerID,
				"kind":       event.Kind,
				"outcome":    event.Outcome,
			}).WithError(err).Warn("sink failed")
		}
	}
}
