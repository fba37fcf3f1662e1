// Package resilience wraps remote ledger calls with bounded retries and
// escalates exhausted transport failures.
//
// Two escalation policies exist. In ModeHalt (fail-stop) an exhausted
// operation trips the layer: every later call fails fast with
// ErrTransportDegraded until Reset, and the scheduler stops issuing cycles
// and probes connectivity instead. In ModeBreaker an exhausted operation only
// opens that operation's circuit breaker; other operations keep flowing.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/circuitbreaker"
	"github.com/0xGF/hyper-trigger-sub000/internal/ledger"
)

// ErrTransportDegraded signals that the remote endpoint is considered
// unreachable and cycling must stop.
var ErrTransportDegraded = errors.New("transport degraded")

type Mode string

const (
	ModeHalt    Mode = "halt"
	ModeBreaker Mode = "breaker"
)

type Policy struct {
	// MaxRetries bounds the attempts of one logical operation.
	MaxRetries int
	RetryDelay time.Duration
	Mode       Mode
}

// DefaultPolicy returns the fail-stop policy with 3 attempts 5s apart.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: 3, RetryDelay: 5 * time.Second, Mode: ModeHalt}
}

// MetricsSink records retry and escalation metrics.
// All methods must be non-blocking and fire-and-forget.
type MetricsSink interface {
	RetryAttempt(op string)
	TransportDegraded(op string)
}

// DegradedError is returned when an operation exhausted its attempts, or
// when the layer is tripped and refused to try.
type DegradedError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *DegradedError) Error() string {
	if e.Attempts == 0 {
		return fmt.Sprintf("%s: %v (%s not attempted)", ErrTransportDegraded, e.Err, e.Op)
	}
	return fmt.Sprintf("%s: %s failed after %d attempts: %v", ErrTransportDegraded, e.Op, e.Attempts, e.Err)
}

func (e *DegradedError) Unwrap() []error {
	return []error{ErrTransportDegraded, e.Err}
}

// NotAttempted reports whether err proves the call never reached the
// endpoint: the layer was tripped or the operation's breaker was open.
func NotAttempted(err error) bool {
	var derr *DegradedError
	if errors.As(err, &derr) && derr.Attempts == 0 {
		return true
	}
	return errors.Is(err, circuitbreaker.ErrCircuitOpen)
}

type Layer struct {
	policy  Policy
	breaker *circuitbreaker.CircuitBreaker
	metrics MetricsSink
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *log.Entry

	tripped atomic.Bool
	mu      sync.Mutex
	cause   error
}

func New(policy Policy) *Layer {
	if policy.MaxRetries < 1 {
		policy.MaxRetries = 1
	}
	if policy.Mode == "" {
		policy.Mode = ModeHalt
	}
	return &Layer{
		policy: policy,
		sleep:  sleepContext,
		logger: log.WithField("component", "resilience"),
	}
}

// WithBreaker attaches the per-operation breaker used by ModeBreaker.
func (l *Layer) WithBreaker(cb *circuitbreaker.CircuitBreaker) *Layer {
	l.breaker = cb
	return l
}

// WithMetrics attaches a metrics sink to the layer.
func (l *Layer) WithMetrics(sink MetricsSink) *Layer {
	l.metrics = sink
	return l
}

func (l *Layer) Policy() Policy {
	return l.policy
}

// Tripped reports whether the layer halted all remote calls.
func (l *Layer) Tripped() bool {
	return l.tripped.Load()
}

// Cause returns the error that tripped the layer, if any.
func (l *Layer) Cause() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cause
}

// Reset clears the trip and every breaker so counting starts afresh.
func (l *Layer) Reset() {
	l.mu.Lock()
	l.cause = nil
	l.mu.Unlock()
	l.tripped.Store(false)
	if l.breaker != nil {
		l.breaker.Reset()
	}
}

// Do runs fn with bounded retries. Permanent ledger answers and context
// cancellation are returned immediately. Transport errors are retried every
// RetryDelay; exhaustion escalates according to the policy.
func (l *Layer) Do(ctx context.Context, op string, fn func(context.Context) error) error {
	if l.Tripped() {
		return &DegradedError{Op: op, Err: l.Cause()}
	}
	if l.useBreaker() {
		if err := l.breaker.Allow(op); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	var err error
	for attempt := 1; attempt <= l.policy.MaxRetries; attempt++ {
		if attempt > 1 {
			if l.metrics != nil {
				l.metrics.RetryAttempt(op)
			}
			if serr := l.sleep(ctx, l.policy.RetryDelay); serr != nil {
				return serr
			}
		}

		err = fn(ctx)
		if err == nil || ledger.IsPermanent(err) {
			// The endpoint answered; transport is healthy for op.
			if l.useBreaker() {
				l.breaker.RecordSuccess(op)
			}
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		if l.Tripped() {
			return &DegradedError{Op: op, Attempts: attempt, Err: err}
		}

		l.logger.WithFields(log.Fields{
			"op":      op,
			"attempt": attempt,
			"max":     l.policy.MaxRetries,
		}).WithError(err).Debug("remote call failed")
	}

	return l.escalate(op, err)
}

func (l *Layer) useBreaker() bool {
	return l.policy.Mode == ModeBreaker && l.breaker != nil
}

func (l *Layer) escalate(op string, err error) error {
	derr := &DegradedError{Op: op, Attempts: l.policy.MaxRetries, Err: err}
	if l.metrics != nil {
		l.metrics.TransportDegraded(op)
	}

	if l.useBreaker() {
		if l.breaker.RecordFailure(op) {
			l.logger.WithField("op", op).WithError(err).Warn("circuit opened for operation")
		}
		return derr
	}

	l.mu.Lock()
	if l.cause == nil {
		l.cause = derr
	}
	l.mu.Unlock()
	if l.tripped.CompareAndSwap(false, true) {
		l.logger.WithField("op", op).WithError(err).Error("retries exhausted, halting remote calls")
	}
	return derr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
