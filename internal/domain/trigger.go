package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TriggerStatus mirrors the ledger's status enum. The ledger owns it; the
// monitor only proposes transitions.
type TriggerStatus uint8

const (
	TriggerStatusPending TriggerStatus = iota
	TriggerStatusExecuting
	TriggerStatusCompleted
	TriggerStatusFailed
	TriggerStatusCancelled
)

func (s TriggerStatus) String() string {
	switch s {
	case TriggerStatusPending:
		return "pending"
	case TriggerStatusExecuting:
		return "executing"
	case TriggerStatusCompleted:
		return "completed"
	case TriggerStatusFailed:
		return "failed"
	case TriggerStatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Valid reports whether s is one of the known ledger statuses.
func (s TriggerStatus) Valid() bool {
	return s <= TriggerStatusCancelled
}

// Active reports whether the monitor still has work to do for the trigger.
func (s TriggerStatus) Active() bool {
	return s == TriggerStatusPending || s == TriggerStatusExecuting
}

// Terminal reports whether no further transition is possible.
func (s TriggerStatus) Terminal() bool {
	return s == TriggerStatusCompleted || s == TriggerStatusFailed || s == TriggerStatusCancelled
}

type Direction string

const (
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Trigger is a per-cycle snapshot of a conditional order read from the ledger.
type Trigger struct {
	ID         uint64
	Owner      string
	WatchIndex uint32

	TargetAsset string
	InputAmount decimal.Decimal
	MaxSlippage decimal.Decimal

	ThresholdPrice decimal.Decimal
	Direction      Direction

	Status TriggerStatus

	CreatedAt          time.Time
	ExecutionStartedAt time.Time // zero until the ledger accepts start-execution
	OutputAmount       decimal.Decimal
}

// ExecutionElapsed returns how long the trigger has been executing at now.
// It returns zero when the start time is unknown.
func (t Trigger) ExecutionElapsed(now time.Time) time.Duration {
	if t.ExecutionStartedAt.IsZero() {
		return 0
	}
	return now.Sub(t.ExecutionStartedAt)
}
