package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransitionKind string

const (
	TransitionStart    TransitionKind = "start"
	TransitionComplete TransitionKind = "complete"
	TransitionFail     TransitionKind = "fail"
)

type TransitionOutcome string

const (
	// OutcomeAccepted: the ledger confirmed the transition.
	OutcomeAccepted TransitionOutcome = "accepted"
	// OutcomeRejected: the ledger declined the transition.
	OutcomeRejected TransitionOutcome = "rejected"
	// OutcomeUnknown: the call may or may not have landed.
	OutcomeUnknown TransitionOutcome = "unknown"
)

// FailReasonTimeout is the mark-failed reason for stalled executions.
const FailReasonTimeout = "timeout"

// TransitionEvent is emitted by the coordinator for every transition attempt.
type TransitionEvent struct {
	ID      uuid.UUID
	CycleID uuid.UUID

	TriggerID uint64
	Owner     string

	Kind    TransitionKind
	Outcome TransitionOutcome

	Reason       string
	OutputAmount decimal.Decimal
	Error        string

	OccurredAt time.Time
}

// Terminal reports whether the event confirms a terminal ledger transition.
func (e TransitionEvent) Terminal() bool {
	return e.Outcome == OutcomeAccepted && (e.Kind == TransitionComplete || e.Kind == TransitionFail)
}
