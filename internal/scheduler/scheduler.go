package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// Cycler runs monitoring cycles and owns the guard cleared on shutdown.
type Cycler interface {
	RunCycle(ctx context.Context) (domain.CycleReport, error)
	Reset() int
}

// Layer is the resilience layer's halt switch.
type Layer interface {
	Tripped() bool
	Reset()
}

// Prober is the lightweight connectivity check used while halted.
type Prober interface {
	Ping(ctx context.Context) error
}

type Schedule interface {
	Next(after time.Time) time.Time
}

// MetricsSink records scheduler metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	TickSkipped()
	Halted(halted bool)
	RecoveryProbe(success bool)
}

type Config struct {
	Schedule         Schedule
	RecoveryInterval time.Duration
	ProbeTimeout     time.Duration
}

type Scheduler struct {
	config  Config
	cycler  Cycler
	layer   Layer
	prober  Prober
	metrics MetricsSink
	clock   func() time.Time
	logger  *log.Entry

	running atomic.Bool
	halted  atomic.Bool
	wg      sync.WaitGroup
}

func New(config Config, cycler Cycler, layer Layer, prober Prober) *Scheduler {
	if config.RecoveryInterval <= 0 {
		config.RecoveryInterval = 30 * time.Second
	}
	return &Scheduler{
		config: config,
		cycler: cycler,
		layer:  layer,
		prober: prober,
		clock:  time.Now,
		logger: log.WithField("component", "scheduler"),
	}
}

// WithMetrics attaches a metrics sink to the scheduler.
func (s *Scheduler) WithMetrics(sink MetricsSink) *Scheduler {
	s.metrics = sink
	return s
}

// Halted reports whether cycling is stopped pending a successful probe.
func (s *Scheduler) Halted() bool {
	return s.halted.Load()
}

// Run fires cycles until ctx is cancelled. Ticks never overlap: a tick that
// finds the previous cycle or probe still running is skipped. While halted,
// ticks fire every RecoveryInterval and run the recovery probe instead of a
// cycle. On return the running cycle has finished and the guard is cleared.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.WithField("recovery_interval", s.config.RecoveryInterval).Info("scheduler started")

	for {
		timer := time.NewTimer(s.nextWait())
		select {
		case <-ctx.Done():
			timer.Stop()
			s.shutdown()
			return ctx.Err()
		case <-timer.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) nextWait() time.Duration {
	if s.Halted() {
		return s.config.RecoveryInterval
	}
	now := s.clock()
	wait := s.config.Schedule.Next(now).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("previous cycle still running, tick skipped")
		if s.metrics != nil {
			s.metrics.TickSkipped()
		}
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Store(false)

		if s.Halted() {
			s.recover(ctx)
			return
		}
		s.cycle(ctx)
	}()
}

func (s *Scheduler) cycle(ctx context.Context) {
	_, err := s.cycler.RunCycle(ctx)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		return
	}
	if s.layer != nil && s.layer.Tripped() {
		s.halted.Store(true)
		if s.metrics != nil {
			s.metrics.Halted(true)
		}
		s.logger.WithError(err).Error("transport degraded, halting cycles until the endpoint recovers")
		return
	}
	s.logger.WithError(err).Error("cycle failed")
}

func (s *Scheduler) recover(ctx context.Context) {
	pctx := ctx
	if s.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		pctx, cancel = context.WithTimeout(ctx, s.config.ProbeTimeout)
		defer cancel()
	}

	err := s.prober.Ping(pctx)
	if s.metrics != nil {
		s.metrics.RecoveryProbe(err == nil)
	}
	if err != nil {
		s.logger.WithError(err).Warn("recovery probe failed")
		return
	}

	if s.layer != nil {
		s.layer.Reset()
	}
	s.halted.Store(false)
	if s.metrics != nil {
		s.metrics.Halted(false)
	}
	s.logger.Info("transport recovered, resuming cycles")
}

func (s *Scheduler) shutdown() {
	s.wg.Wait()
	n := s.cycler.Reset()
	s.logger.WithField("released", n).Info("scheduler stopped")
}
