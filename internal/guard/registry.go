// Package guard tracks transition intents in flight, one per trigger id.
//
// The registry is process-local and advisory. The ledger's status field is
// the durable guard; the registry only prevents this process from submitting
// a second transition for a trigger while the first one is unresolved.
package guard

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	ErrHeld    = errors.New("intent already held")
	ErrNotHeld = errors.New("no intent held")
)

type Phase string

const (
	// PhaseStarting: start-execution was submitted but not confirmed.
	PhaseStarting Phase = "starting"
	// PhaseExecuting: the ledger shows the trigger executing.
	PhaseExecuting Phase = "executing"
	// PhaseCompleting: complete-execution was submitted but not confirmed.
	PhaseCompleting Phase = "completing"
	// PhaseFailing: mark-failed was submitted but not confirmed.
	PhaseFailing Phase = "failing"
)

type Intent struct {
	TriggerID uint64    `json:"trigger_id"`
	Phase     Phase     `json:"phase"`
	Since     time.Time `json:"since"`
}

// Age returns how long the intent has been in its current phase.
func (i Intent) Age(now time.Time) time.Duration {
	return now.Sub(i.Since)
}

type Registry struct {
	mu      sync.Mutex
	intents map[uint64]Intent
}

func New() *Registry {
	return &Registry{intents: make(map[uint64]Intent)}
}

// Acquire records a starting intent for id. It fails with ErrHeld if any
// intent for id exists.
func (r *Registry) Acquire(id uint64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.intents[id]; ok {
		return ErrHeld
	}
	r.intents[id] = Intent{TriggerID: id, Phase: PhaseStarting, Since: now}
	return nil
}

// Advance moves an existing intent to phase.
func (r *Registry) Advance(id uint64, phase Phase, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	if !ok {
		return ErrNotHeld
	}
	if in.Phase != phase {
		in.Phase = phase
		in.Since = now
	}
	r.intents[id] = in
	return nil
}

// Adopt records an executing intent for a trigger the ledger already shows
// executing. It reports whether a new intent was added.
func (r *Registry) Adopt(id uint64, since time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.intents[id]; ok {
		return false
	}
	r.intents[id] = Intent{TriggerID: id, Phase: PhaseExecuting, Since: since}
	return true
}

// Release removes the intent for id and reports whether one existed.
func (r *Registry) Release(id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.intents[id]; !ok {
		return false
	}
	delete(r.intents, id)
	return true
}

func (r *Registry) Get(id uint64) (Intent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.intents[id]
	return in, ok
}

func (r *Registry) Has(id uint64) bool {
	_, ok := r.Get(id)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.intents)
}

// IDs returns the guarded ids in ascending order.
func (r *Registry) IDs() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]uint64, 0, len(r.intents))
	for id := range r.intents {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns a copy of every intent ordered by trigger id.
func (r *Registry) Snapshot() []Intent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Intent, 0, len(r.intents))
	for _, in := range r.intents {
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggerID < out[j].TriggerID })
	return out
}

// Clear drops every intent and returns how many were held.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.intents)
	r.intents = make(map[uint64]Intent)
	return n
}
