package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xGF/hyper-trigger-sub000/internal/cron"
	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/resilience"
)

// mockCycler counts cycles and can block or fail them.
type mockCycler struct {
	mu      sync.Mutex
	cycles  int
	resets  int
	block   chan struct{}
	onCycle func(n int) error
}

func (c *mockCycler) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	c.mu.Lock()
	c.cycles++
	n := c.cycles
	block := c.block
	onCycle := c.onCycle
	c.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return domain.CycleReport{}, ctx.Err()
		}
	}
	if onCycle != nil {
		return domain.CycleReport{}, onCycle(n)
	}
	return domain.CycleReport{}, nil
}

func (c *mockCycler) Reset() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resets++
	return 0
}

func (c *mockCycler) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cycles
}

type mockLayer struct {
	tripped atomic.Bool
	resets  atomic.Int32
}

func (l *mockLayer) Tripped() bool { return l.tripped.Load() }

func (l *mockLayer) Reset() {
	l.resets.Add(1)
	l.tripped.Store(false)
}

type mockProber struct {
	failures atomic.Int32 // remaining failures
	calls    atomic.Int32
}

func (p *mockProber) Ping(ctx context.Context) error {
	p.calls.Add(1)
	if p.failures.Load() > 0 {
		p.failures.Add(-1)
		return errors.New("dial tcp: connection refused")
	}
	return nil
}

type mockMetrics struct {
	skipped atomic.Int32
	probes  atomic.Int32
	halts   atomic.Int32
}

func (m *mockMetrics) TickSkipped() { m.skipped.Add(1) }

func (m *mockMetrics) Halted(halted bool) {
	if halted {
		m.halts.Add(1)
	}
}

func (m *mockMetrics) RecoveryProbe(success bool) { m.probes.Add(1) }

func fastConfig() Config {
	return Config{Schedule: cron.Every(5 * time.Millisecond), RecoveryInterval: 5 * time.Millisecond}
}

func runAsync(t *testing.T, s *Scheduler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func TestRun_FiresCyclesPeriodically(t *testing.T) {
	cycler := &mockCycler{}
	s := New(fastConfig(), cycler, &mockLayer{}, &mockProber{})

	cancel, done := runAsync(t, s)
	require.Eventually(t, func() bool { return cycler.count() >= 3 }, time.Second, time.Millisecond)
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_SkipsOverlappingTicks(t *testing.T) {
	cycler := &mockCycler{block: make(chan struct{})}
	metrics := &mockMetrics{}
	s := New(fastConfig(), cycler, &mockLayer{}, &mockProber{}).WithMetrics(metrics)

	cancel, done := runAsync(t, s)
	require.Eventually(t, func() bool { return metrics.skipped.Load() >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, cycler.count(), "a blocked cycle is never joined by another")

	close(cycler.block)
	require.Eventually(t, func() bool { return cycler.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	<-done
}

func TestRun_HaltsOnDegradationAndRecovers(t *testing.T) {
	layer := &mockLayer{}
	prober := &mockProber{}
	prober.failures.Store(2)
	metrics := &mockMetrics{}
	cycler := &mockCycler{onCycle: func(n int) error {
		if n == 1 {
			layer.tripped.Store(true)
			return resilience.ErrTransportDegraded
		}
		return nil
	}}
	s := New(fastConfig(), cycler, layer, prober).WithMetrics(metrics)

	cancel, done := runAsync(t, s)

	require.Eventually(t, func() bool { return layer.resets.Load() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return cycler.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, int32(3), prober.calls.Load(), "two failed probes then one success")
	assert.Equal(t, int32(1), metrics.halts.Load())
	assert.False(t, s.Halted())
}

func TestRun_NoCyclesWhileHalted(t *testing.T) {
	layer := &mockLayer{}
	prober := &mockProber{}
	prober.failures.Store(1 << 20)
	cycler := &mockCycler{onCycle: func(int) error {
		layer.tripped.Store(true)
		return resilience.ErrTransportDegraded
	}}
	s := New(fastConfig(), cycler, layer, prober)

	cancel, done := runAsync(t, s)
	require.Eventually(t, func() bool { return prober.calls.Load() >= 5 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, 1, cycler.count())
	assert.True(t, s.Halted())
}

func TestRun_CycleErrorWithoutTripKeepsCycling(t *testing.T) {
	cycler := &mockCycler{onCycle: func(int) error { return errors.New("scan: counter read failed") }}
	prober := &mockProber{}
	s := New(fastConfig(), cycler, &mockLayer{}, prober)

	cancel, done := runAsync(t, s)
	require.Eventually(t, func() bool { return cycler.count() >= 3 }, time.Second, time.Millisecond)
	cancel()
	<-done

	assert.False(t, s.Halted())
	assert.Zero(t, prober.calls.Load())
}

func TestRun_ShutdownWaitsForCycleAndClearsGuard(t *testing.T) {
	cycler := &mockCycler{block: make(chan struct{})}
	s := New(fastConfig(), cycler, &mockLayer{}, &mockProber{})

	cancel, done := runAsync(t, s)
	require.Eventually(t, func() bool { return cycler.count() == 1 }, time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	cycler.mu.Lock()
	defer cycler.mu.Unlock()
	assert.Equal(t, 1, cycler.resets)
}

func TestNextWait_UsesRecoveryIntervalWhileHalted(t *testing.T) {
	s := New(Config{Schedule: cron.Every(time.Minute), RecoveryInterval: 7 * time.Second}, &mockCycler{}, nil, nil)
	assert.Equal(t, time.Minute, s.nextWait())

	s.halted.Store(true)
	assert.Equal(t, 7*time.Second, s.nextWait())
}
