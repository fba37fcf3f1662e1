// Package ledger defines the monitor's view of the remote trigger registry.
//
// The ledger is authoritative for trigger state. Reads return snapshots;
// transitions are proposals the ledger may accept or reject. Callers must
// distinguish three outcomes of a transition call:
//
//   - nil: the ledger confirmed the transition
//   - an error matching ErrRejected: the ledger declined it
//   - any other error: the outcome is unknown, the call may have landed
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

var (
	// ErrRejected is returned when the ledger declines a transition.
	ErrRejected = errors.New("transition rejected by ledger")

	// ErrNotFound is returned when a trigger id does not exist.
	ErrNotFound = errors.New("trigger not found")

	// ErrUnknownOutcome is returned when a transition was submitted but its
	// result could not be observed.
	ErrUnknownOutcome = errors.New("transition outcome unknown")

	// ErrInvalidData is returned when the ledger answered with data the
	// monitor cannot decode.
	ErrInvalidData = errors.New("invalid ledger data")
)

// Reader is the read half of the ledger.
type Reader interface {
	// NextTriggerID returns the id the ledger will assign next. Existing ids
	// are 1..NextTriggerID-1.
	NextTriggerID(ctx context.Context) (uint64, error)
	GetTrigger(ctx context.Context, id uint64) (domain.Trigger, error)
	GetOraclePrice(ctx context.Context, feedIndex uint32) (decimal.Decimal, error)
	// GetSettlementBalance returns the worker's balance of asset, used to
	// infer that an off-ledger trade settled.
	GetSettlementBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Writer issues worker-initiated transitions. Cancellation is owner-initiated
// and never issued by the monitor.
type Writer interface {
	StartExecution(ctx context.Context, id uint64) error
	CompleteExecution(ctx context.Context, id uint64, outputAmount decimal.Decimal) error
	MarkFailed(ctx context.Context, id uint64, reason string) error
}

// Prober is a lightweight connectivity check.
type Prober interface {
	Ping(ctx context.Context) error
}

// Client is the full ledger surface used by the monitor.
type Client interface {
	Reader
	Writer
	Prober
}

// TransitionError describes a failed transition call.
type TransitionError struct {
	Op        string
	TriggerID uint64
	Err       error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s trigger %d: %v", e.Op, e.TriggerID, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// Rejected wraps reason as a rejection of op on trigger id.
func Rejected(op string, id uint64, reason string) error {
	return &TransitionError{Op: op, TriggerID: id, Err: fmt.Errorf("%w: %s", ErrRejected, reason)}
}

// IsPermanent reports whether err is a definitive answer from the ledger
// rather than a transport problem. Permanent errors are not retried.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrRejected) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnknownOutcome) ||
		errors.Is(err, ErrInvalidData)
}

// Operation names used for logging, metrics and per-operation breakers.
const (
	OpNextTriggerID        = "next_trigger_id"
	OpGetTrigger           = "get_trigger"
	OpGetOraclePrice       = "get_oracle_price"
	OpGetSettlementBalance = "get_settlement_balance"
	OpStartExecution       = "start_execution"
	OpCompleteExecution    = "complete_execution"
	OpMarkFailed           = "mark_failed"
	OpPing                 = "ping"
)
