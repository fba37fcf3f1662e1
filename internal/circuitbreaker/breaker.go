// Package circuitbreaker implements per-operation circuit breaking.
//
// Each key (a ledger operation name) is tracked independently: after
// threshold consecutive failures the breaker opens and rejects calls for
// cooldown, then lets a single probe through (half-open). A successful probe
// closes it; a failed one re-opens it.
package circuitbreaker

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type opState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*opState
	threshold int
	cooldown  time.Duration
	now       func() time.Time
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*opState),
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// WithClock replaces the time source. Used by tests.
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

func (cb *CircuitBreaker) Allow(key string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		return nil
	}

	switch s.state {
	case stateOpen:
		if cb.now().Sub(s.openedAt) >= cb.cooldown {
			s.state = stateHalfOpen
			return nil
		}
		return ErrCircuitOpen
	case stateHalfOpen:
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if s, ok := cb.states[key]; ok {
		s.state = stateClosed
		s.consecutiveFailures = 0
	}
}

// RecordFailure counts a failure for key and reports whether the breaker is
// open afterwards.
func (cb *CircuitBreaker) RecordFailure(key string) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[key]
	if !ok {
		s = &opState{}
		cb.states[key] = s
	}

	s.consecutiveFailures++
	if s.state == stateHalfOpen || s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = cb.now()
	}
	return s.state == stateOpen
}

// OpenKeys returns the keys whose breaker is not closed, sorted.
func (cb *CircuitBreaker) OpenKeys() []string {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var keys []string
	for k, s := range cb.states {
		if s.state != stateClosed {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Reset closes every breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.states = make(map[string]*opState)
}
