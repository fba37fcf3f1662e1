// Package monitor runs one monitoring cycle: scan the registry and read
// prices concurrently, then let the coordinator advance the active triggers.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/0xGF/hyper-trigger-sub000/internal/coordinator"
	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/oracle"
	"github.com/0xGF/hyper-trigger-sub000/internal/registry"
	"github.com/0xGF/hyper-trigger-sub000/internal/resilience"
)

type Scanner interface {
	Scan(ctx context.Context) (registry.Snapshot, error)
}

type PriceReader interface {
	Read(ctx context.Context) (oracle.Result, error)
}

// Gate reports whether the resilience layer halted remote calls.
type Gate interface {
	Tripped() bool
}

// MetricsSink records cycle metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	CycleCompleted(report domain.CycleReport)
	CycleFailed(stage string)
}

type Monitor struct {
	scanner Scanner
	prices  PriceReader
	coord   *coordinator.Coordinator
	gate    Gate
	metrics MetricsSink
	clock   func() time.Time
	logger  *log.Entry

	mu   sync.Mutex
	last *domain.CycleReport
}

func New(scanner Scanner, prices PriceReader, coord *coordinator.Coordinator, gate Gate) *Monitor {
	return &Monitor{
		scanner: scanner,
		prices:  prices,
		coord:   coord,
		gate:    gate,
		clock:   time.Now,
		logger:  log.WithField("component", "monitor"),
	}
}

// WithMetrics attaches a metrics sink to the monitor.
func (m *Monitor) WithMetrics(sink MetricsSink) *Monitor {
	m.metrics = sink
	return m
}

// WithClock replaces the time source. Used by tests.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.clock = now
	return m
}

func (m *Monitor) Coordinator() *coordinator.Coordinator {
	return m.coord
}

// LastReport returns the report of the most recent completed cycle.
func (m *Monitor) LastReport() (domain.CycleReport, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return domain.CycleReport{}, false
	}
	return *m.last, true
}

// Reset clears the coordinator's guard.
func (m *Monitor) Reset() int {
	return m.coord.Reset()
}

func (m *Monitor) tripped() bool {
	return m.gate != nil && m.gate.Tripped()
}

// RunCycle performs one monitoring cycle. A failed registry scan fails the
// cycle; an empty price batch does not. If the transport degraded during the
// reads no transition is attempted and the returned error matches
// resilience.ErrTransportDegraded.
func (m *Monitor) RunCycle(ctx context.Context) (domain.CycleReport, error) {
	report := domain.CycleReport{
		CycleID:   uuid.New(),
		StartedAt: m.clock().UTC(),
	}
	logger := m.logger.WithField("cycle_id", report.CycleID)

	var (
		snap   registry.Snapshot
		prices oracle.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := m.scanner.Scan(gctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		snap = s
		return nil
	})
	g.Go(func() error {
		p, err := m.prices.Read(gctx)
		if err != nil && !errors.Is(err, oracle.ErrNoPrices) {
			return fmt.Errorf("read prices: %w", err)
		}
		if errors.Is(err, oracle.ErrNoPrices) {
			logger.Warn("no feed could be priced this cycle")
		}
		prices = p
		return nil
	})
	err := g.Wait()

	if m.tripped() {
		m.fail("degraded")
		return report, degraded(err)
	}
	if err != nil {
		m.fail("read")
		return report, err
	}

	report.Scanned = snap.Scanned
	report.Active = len(snap.Active)
	report.ReadFailed = len(snap.Failed)
	report.FeedsPriced = len(prices.Prices)
	report.FeedsFailed = len(prices.Failed)

	res := m.coord.Process(ctx, report.CycleID, snap, prices.Prices)
	report.Started = res.Started
	report.Completed = res.Completed
	report.Failed = res.Failed
	report.Rejected = res.Rejected
	report.Unknown = res.Unknown
	report.Released = res.Released
	report.GuardSize = m.coord.Guard().Len()
	report.FinishedAt = m.clock().UTC()

	m.mu.Lock()
	m.last = &report
	m.mu.Unlock()
	if m.metrics != nil {
		m.metrics.CycleCompleted(report)
	}

	logger.WithFields(log.Fields{
		"scanned":   report.Scanned,
		"active":    report.Active,
		"priced":    report.FeedsPriced,
		"started":   report.Started,
		"completed": report.Completed,
		"failed":    report.Failed,
		"rejected":  report.Rejected,
		"unknown":   report.Unknown,
		"released":  report.Released,
		"guarded":   report.GuardSize,
		"duration":  report.Duration().String(),
	}).Info("cycle finished")

	if m.tripped() {
		return report, degraded(nil)
	}
	return report, nil
}

func (m *Monitor) fail(stage string) {
	if m.metrics != nil {
		m.metrics.CycleFailed(stage)
	}
}

func degraded(cause error) error {
	if cause != nil && errors.Is(cause, resilience.ErrTransportDegraded) {
		return cause
	}
	if cause != nil {
		return fmt.Errorf("%w: %v", resilience.ErrTransportDegraded, cause)
	}
	return fmt.Errorf("abort cycle: %w", resilience.ErrTransportDegraded)
}
