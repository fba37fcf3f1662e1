// Package coordinator drives triggers through the ledger's execution state
// machine, one step per trigger per cycle.
//
// The coordinator is the only writer of the guard registry. An intent is
// taken before start-execution is submitted and is released only when the
// ledger confirms a terminal transition, declines a call, or shows the
// trigger terminal. A call with an unknown outcome keeps the intent so the
// same transition is never submitted twice; the intent records which
// transition is pending until the ledger resolves it or StartGuardTTL passes.
package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/condition"
	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/guard"
	"github.com/0xGF/hyper-trigger-sub000/internal/ledger"
	"github.com/0xGF/hyper-trigger-sub000/internal/registry"
	"github.com/0xGF/hyper-trigger-sub000/internal/resilience"
)

// Ledger is the ledger surface the coordinator writes through.
type Ledger interface {
	GetTrigger(ctx context.Context, id uint64) (domain.Trigger, error)
	ledger.Writer
}

type EventEmitter interface {
	Emit(ctx context.Context, event domain.TransitionEvent) error
}

// MetricsSink records transition outcomes.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	TransitionRecorded(kind domain.TransitionKind, outcome domain.TransitionOutcome)
	GuardReleased(reason string)
}

// Gate reports whether remote calls are halted.
type Gate interface {
	Tripped() bool
}

type Config struct {
	// ExecutionTimeout is how long a trigger may stay executing before it
	// is marked failed.
	ExecutionTimeout time.Duration
	// StartGuardTTL is how long an unresolved intent survives while the
	// ledger still shows the status the transition was meant to change.
	// Zero keeps it until restart.
	StartGuardTTL time.Duration
}

// Result counts what one Process call did.
type Result struct {
	Started   int
	Completed int
	Failed    int
	Rejected  int
	Unknown   int
	Released  int
}

// Release reasons reported to metrics.
const (
	releaseTerminal  = "terminal"
	releaseRejected  = "rejected"
	releaseStale     = "stale_start"
	releaseNotSent   = "not_submitted"
	releaseNotFound  = "not_found"
	releaseConfirmed = "confirmed"
)

type Coordinator struct {
	config  Config
	ledger  Ledger
	probe   SettlementProbe
	guard   *guard.Registry
	emitter EventEmitter
	metrics MetricsSink
	gate    Gate
	clock   func() time.Time
	logger  *log.Entry
}

func New(config Config, l Ledger, probe SettlementProbe, g *guard.Registry) *Coordinator {
	if g == nil {
		g = guard.New()
	}
	return &Coordinator{
		config: config,
		ledger: l,
		probe:  probe,
		guard:  g,
		clock:  time.Now,
		logger: log.WithField("component", "coordinator"),
	}
}

// WithEmitter attaches the transition event emitter.
func (c *Coordinator) WithEmitter(e EventEmitter) *Coordinator {
	c.emitter = e
	return c
}

// WithMetrics attaches a metrics sink to the coordinator.
func (c *Coordinator) WithMetrics(m MetricsSink) *Coordinator {
	c.metrics = m
	return c
}

// WithGate stops a cycle early once the gate trips.
func (c *Coordinator) WithGate(g Gate) *Coordinator {
	c.gate = g
	return c
}

// WithClock replaces the time source. Used by tests.
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.clock = now
	return c
}

func (c *Coordinator) Guard() *guard.Registry {
	return c.guard
}

// Reset drops every intent. Safe because the ledger status is the durable
// guard; Executing triggers are adopted again on the next cycle.
func (c *Coordinator) Reset() int {
	n := c.guard.Clear()
	if n > 0 {
		c.logger.WithField("intents", n).Info("guard cleared")
	}
	return n
}

// Process advances every active trigger in snap, in ascending id order,
// using prices read this cycle. It then sweeps guarded ids the snapshot did
// not include. Per-trigger failures are logged and never abort the cycle.
func (c *Coordinator) Process(ctx context.Context, cycleID uuid.UUID, snap registry.Snapshot, prices map[uint32]decimal.Decimal) Result {
	var res Result
	logger := c.logger.WithField("cycle_id", cycleID)
	if p, ok := c.probe.(CycleProbe); ok {
		p.BeginCycle()
	}

	for _, t := range snap.Active {
		if ctx.Err() != nil || c.halted() {
			logger.Warn("stopping cycle early")
			return res
		}
		c.step(ctx, cycleID, t, prices, &res)
	}

	c.sweep(ctx, cycleID, snap, &res)
	return res
}

// expired reports whether an unresolved intent outlived StartGuardTTL.
func (c *Coordinator) expired(in guard.Intent, now time.Time) bool {
	return c.config.StartGuardTTL > 0 && in.Age(now) > c.config.StartGuardTTL
}

func (c *Coordinator) halted() bool {
	return c.gate != nil && c.gate.Tripped()
}

func (c *Coordinator) step(ctx context.Context, cycleID uuid.UUID, t domain.Trigger, prices map[uint32]decimal.Decimal, res *Result) {
	now := c.clock()
	logger := c.logger.WithFields(log.Fields{"cycle_id": cycleID, "trigger_id": t.ID})

	switch t.Status {
	case domain.TriggerStatusPending:
		if in, held := c.guard.Get(t.ID); held {
			if c.expired(in, now) {
				// The ledger still shows pending long after the start was
				// sent, so it never landed.
				c.release(t.ID, releaseStale, res)
				logger.WithField("phase", in.Phase).Info("stale start intent released")
			}
			return
		}
		if !condition.Lookup(t, prices) {
			return
		}
		if err := c.guard.Acquire(t.ID, now); err != nil {
			return
		}
		c.start(ctx, cycleID, t, logger, res)

	case domain.TriggerStatusExecuting:
		since := t.ExecutionStartedAt
		if since.IsZero() {
			since = now
		}
		if c.guard.Adopt(t.ID, since) {
			logger.Info("adopted executing trigger")
		}

		in, _ := c.guard.Get(t.ID)
		switch in.Phase {
		case guard.PhaseStarting:
			// An ambiguous start landed.
			_ = c.guard.Advance(t.ID, guard.PhaseExecuting, since)
			in, _ = c.guard.Get(t.ID)
		case guard.PhaseCompleting, guard.PhaseFailing:
			if !c.expired(in, now) {
				logger.WithField("phase", in.Phase).Debug("transition outcome unresolved, not resubmitting")
				return
			}
			// Nothing landed within the TTL; the transition may be sent again.
			logger.WithField("phase", in.Phase).Warn("unresolved transition expired")
			_ = c.guard.Advance(t.ID, guard.PhaseExecuting, since)
			in, _ = c.guard.Get(t.ID)
		}

		elapsed := t.ExecutionElapsed(now)
		if t.ExecutionStartedAt.IsZero() {
			elapsed = in.Age(now)
		}
		if elapsed > c.config.ExecutionTimeout {
			logger.WithField("elapsed", elapsed.Round(time.Second)).Warn("execution timed out")
			c.markFailed(ctx, cycleID, t, logger, res)
			return
		}
		c.poll(ctx, cycleID, t, logger, res)

	default:
		if c.guard.Has(t.ID) {
			c.release(t.ID, releaseTerminal, res)
			logger.WithField("status", t.Status).Info("trigger is no longer active, guard released")
		}
	}
}

func (c *Coordinator) start(ctx context.Context, cycleID uuid.UUID, t domain.Trigger, logger *log.Entry, res *Result) {
	err := c.ledger.StartExecution(ctx, t.ID)
	now := c.clock()

	if err != nil && resilience.NotAttempted(err) {
		c.release(t.ID, releaseNotSent, res)
		logger.WithError(err).Warn("start execution not submitted")
		return
	}

	outcome := classify(err)
	switch outcome {
	case domain.OutcomeAccepted:
		_ = c.guard.Advance(t.ID, guard.PhaseExecuting, now)
		res.Started++
		logger.WithFields(log.Fields{
			"threshold": t.ThresholdPrice,
			"direction": t.Direction,
		}).Info("execution started")
	case domain.OutcomeRejected:
		c.release(t.ID, releaseRejected, res)
		res.Rejected++
		logger.WithError(err).Warn("start execution rejected, trigger stays pending")
	default:
		res.Unknown++
		logger.WithError(err).Error("start execution outcome unknown, keeping guard")
	}
	c.emit(ctx, cycleID, t, domain.TransitionStart, outcome, "", decimal.Zero, err)
}

func (c *Coordinator) markFailed(ctx context.Context, cycleID uuid.UUID, t domain.Trigger, logger *log.Entry, res *Result) {
	err := c.ledger.MarkFailed(ctx, t.ID, domain.FailReasonTimeout)
	if err != nil && resilience.NotAttempted(err) {
		logger.WithError(err).Warn("mark failed not submitted")
		return
	}

	outcome := classify(err)
	switch outcome {
	case domain.OutcomeAccepted:
		c.release(t.ID, releaseConfirmed, res)
		res.Failed++
		logger.WithField("reason", domain.FailReasonTimeout).Info("trigger marked failed")
	case domain.OutcomeRejected:
		c.release(t.ID, releaseRejected, res)
		res.Rejected++
		logger.WithError(err).Warn("mark failed rejected")
	default:
		_ = c.guard.Advance(t.ID, guard.PhaseFailing, c.clock())
		res.Unknown++
		logger.WithError(err).Error("mark failed outcome unknown, keeping guard")
	}
	c.emit(ctx, cycleID, t, domain.TransitionFail, outcome, domain.FailReasonTimeout, decimal.Zero, err)
}

func (c *Coordinator) poll(ctx context.Context, cycleID uuid.UUID, t domain.Trigger, logger *log.Entry, res *Result) {
	if c.probe == nil {
		return
	}
	output, settled, err := c.probe.Settled(ctx, t)
	if err != nil {
		logger.WithError(err).Warn("settlement probe failed")
		return
	}
	if !settled {
		logger.Debug("execution not settled yet")
		return
	}

	err = c.ledger.CompleteExecution(ctx, t.ID, output)
	if err != nil && resilience.NotAttempted(err) {
		logger.WithError(err).Warn("complete execution not submitted")
		return
	}

	outcome := classify(err)
	switch outcome {
	case domain.OutcomeAccepted:
		c.release(t.ID, releaseConfirmed, res)
		res.Completed++
		logger.WithField("output", output).Info("execution completed")
	case domain.OutcomeRejected:
		c.release(t.ID, releaseRejected, res)
		res.Rejected++
		logger.WithError(err).Warn("complete execution rejected")
	default:
		_ = c.guard.Advance(t.ID, guard.PhaseCompleting, c.clock())
		res.Unknown++
		logger.WithError(err).Error("complete execution outcome unknown, keeping guard")
	}
	c.emit(ctx, cycleID, t, domain.TransitionComplete, outcome, "", output, err)
}

// release drops the intent for id. Confirmed terminal transitions are not
// counted in Released; their own counter already covers them.
func (c *Coordinator) release(id uint64, reason string, res *Result) {
	if !c.guard.Release(id) {
		return
	}
	if reason != releaseConfirmed && reason != releaseRejected {
		res.Released++
	}
	if c.metrics != nil {
		c.metrics.GuardReleased(reason)
	}
}

func (c *Coordinator) emit(ctx context.Context, cycleID uuid.UUID, t domain.Trigger, kind domain.TransitionKind, outcome domain.TransitionOutcome, reason string, output decimal.Decimal, err error) {
	if c.metrics != nil {
		c.metrics.TransitionRecorded(kind, outcome)
	}
	if c.emitter == nil {
		return
	}

	event := domain.TransitionEvent{
		ID:           uuid.New(),
		CycleID:      cycleID,
		TriggerID:    t.ID,
		Owner:        t.Owner,
		Kind:         kind,
		Outcome:      outcome,
		Reason:       reason,
		OutputAmount: output,
		OccurredAt:   c.clock().UTC(),
	}
	if err != nil {
		event.Error = err.Error()
	}

	if eerr := c.emitter.Emit(ctx, event); eerr != nil {
		c.logger.WithFields(log.Fields{
			"trigger_id": t.ID,
			"kind":       kind,
		}).WithError(eerr).Debug("transition event dropped")
	}
}

func classify(err error) domain.TransitionOutcome {
	switch {
	case err == nil:
		return domain.OutcomeAccepted
	case errors.Is(err, ledger.ErrRejected):
		return domain.OutcomeRejected
	default:
		return domain.OutcomeUnknown
	}
}
