package channel

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

func newTestEvent(id uint64) domain.TransitionEvent {
	return domain.TransitionEvent{
		ID:         uuid.New(),
		CycleID:    uuid.New(),
		TriggerID:  id,
		Kind:       domain.TransitionStart,
		Outcome:    domain.OutcomeAccepted,
		OccurredAt: time.Now().UTC(),
	}
}

type countingMetrics struct {
	capacity   atomic.Int32
	lastSize   atomic.Int32
	emitErrors atomic.Int32
}

func (m *countingMetrics) BufferSizeUpdate(size int)      { m.lastSize.Store(int32(size)) }
func (m *countingMetrics) BufferCapacitySet(capacity int) { m.capacity.Store(int32(capacity)) }
func (m *countingMetrics) EmitError()                     { m.emitErrors.Add(1) }

func TestEventBus_EmitAndReceive(t *testing.T) {
	bus := NewEventBus(10)
	event := newTestEvent(7)

	if err := bus.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	select {
	case got := <-bus.Channel():
		if got.ID != event.ID {
			t.Errorf("ID = %v, want %v", got.ID, event.ID)
		}
		if got.TriggerID != 7 {
			t.Errorf("TriggerID = %d, want 7", got.TriggerID)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event on channel")
	}
}

func TestEventBus_BufferFullDoesNotBlock(t *testing.T) {
	metrics := &countingMetrics{}
	bus := NewEventBus(1).WithMetrics(metrics)
	ctx := context.Background()

	if err := bus.Emit(ctx, newTestEvent(1)); err != nil {
		t.Fatalf("first Emit failed: %v", err)
	}

	start := time.Now()
	err := bus.Emit(ctx, newTestEvent(2))
	if err != ErrBufferFull {
		t.Fatalf("second Emit error = %v, want ErrBufferFull", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Emit blocked for %v", elapsed)
	}
	if metrics.emitErrors.Load() != 1 {
		t.Errorf("emit errors = %d, want 1", metrics.emitErrors.Load())
	}
	if metrics.capacity.Load() != 1 {
		t.Errorf("capacity = %d, want 1", metrics.capacity.Load())
	}
	if bus.Len() != 1 {
		t.Errorf("Len() = %d, want 1", bus.Len())
	}
}

func TestEventBus_CancelledContextStillBuffers(t *testing.T) {
	bus := NewEventBus(10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := bus.Emit(ctx, newTestEvent(1)); err != nil {
		t.Fatalf("Emit error = %v, want nil", err)
	}
	if bus.Len() != 1 {
		t.Errorf("Len() = %d, want 1", bus.Len())
	}
}

func TestEventBus_ConcurrentEmit(t *testing.T) {
	const n = 100
	bus := NewEventBus(n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			if err := bus.Emit(context.Background(), newTestEvent(id)); err != nil {
				t.Errorf("Emit(%d) failed: %v", id, err)
			}
		}(uint64(i))
	}
	wg.Wait()

	seen := make(map[uint64]bool, n)
	for i := 0; i < n; i++ {
		seen[(<-bus.Channel()).TriggerID] = true
	}
	if len(seen) != n {
		t.Errorf("received %d distinct events, want %d", len(seen), n)
	}
}
