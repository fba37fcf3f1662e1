package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/ledger"
)

// LedgerCall records one call made against a FakeLedger.
type LedgerCall struct {
	Op        string
	TriggerID uint64
	FeedIndex uint32
	Output    decimal.Decimal
	Reason    string
}

// FakeLedger is an in-memory ledger.Client enforcing the registry's
// transition rules: start needs Pending, complete and fail need Executing.
type FakeLedger struct {
	mu sync.Mutex

	now      func() time.Time
	triggers map[uint64]domain.Trigger
	next     uint64
	prices   map[uint32]decimal.Decimal
	balances map[string]decimal.Decimal

	failAll     error
	opErrs      map[string]error
	triggerErrs map[uint64]error
	priceErrs   map[uint32]error
	unknownOps  map[string]bool

	calls []LedgerCall
}

var _ ledger.Client = (*FakeLedger)(nil)

// NewFakeLedger creates an empty ledger whose accepted starts are stamped
// with now().
func NewFakeLedger(now func() time.Time) *FakeLedger {
	return &FakeLedger{
		now:         now,
		triggers:    make(map[uint64]domain.Trigger),
		next:        1,
		prices:      make(map[uint32]decimal.Decimal),
		balances:    make(map[string]decimal.Decimal),
		opErrs:      make(map[string]error),
		triggerErrs: make(map[uint64]error),
		priceErrs:   make(map[uint32]error),
		unknownOps:  make(map[string]bool),
	}
}

// AddTrigger stores t and advances the id counter past it.
func (l *FakeLedger) AddTrigger(t domain.Trigger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.triggers[t.ID] = t
	if t.ID >= l.next {
		l.next = t.ID + 1
	}
}

// SetStatus changes a trigger's status as an external actor would.
func (l *FakeLedger) SetStatus(id uint64, status domain.TriggerStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t := l.triggers[id]
	t.Status = status
	l.triggers[id] = t
}

// Trigger returns the stored trigger.
func (l *FakeLedger) Trigger(id uint64) domain.Trigger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.triggers[id]
}

func (l *FakeLedger) SetPrice(index uint32, price decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prices[index] = price
}

func (l *FakeLedger) SetBalance(asset string, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[asset] = balance
}

// FailAll makes every call return err until Heal.
func (l *FakeLedger) FailAll(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failAll = err
}

func (l *FakeLedger) Heal() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failAll = nil
}

// SetOpError makes every call of op return err. A nil err clears it.
func (l *FakeLedger) SetOpError(op string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.opErrs, op)
		return
	}
	l.opErrs[op] = err
}

func (l *FakeLedger) SetTriggerError(id uint64, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.triggerErrs[id] = err
}

func (l *FakeLedger) SetPriceError(index uint32, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.priceErrs[index] = err
}

// SetUnknownOutcome makes transitions of op land on the ledger but report
// ledger.ErrUnknownOutcome to the caller.
func (l *FakeLedger) SetUnknownOutcome(op string, unknown bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unknownOps[op] = unknown
}

// Calls returns the recorded calls of op, or every call when op is "".
func (l *FakeLedger) Calls(op string) []LedgerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LedgerCall
	for _, c := range l.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// CallCount returns how many times op was called.
func (l *FakeLedger) CallCount(op string) int {
	return len(l.Calls(op))
}

// ResetCalls forgets recorded calls.
func (l *FakeLedger) ResetCalls() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = nil
}

// record must be called with l.mu held.
func (l *FakeLedger) record(c LedgerCall) error {
	l.calls = append(l.calls, c)
	if l.failAll != nil {
		return l.failAll
	}
	return l.opErrs[c.Op]
}

func (l *FakeLedger) NextTriggerID(ctx context.Context) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record(LedgerCall{Op: ledger.OpNextTriggerID}); err != nil {
		return 0, err
	}
	return l.next, nil
}

func (l *FakeLedger) GetTrigger(ctx context.Context, id uint64) (domain.Trigger, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record(LedgerCall{Op: ledger.OpGetTrigger, TriggerID: id}); err != nil {
		return domain.Trigger{}, err
	}
	if err := l.triggerErrs[id]; err != nil {
		return domain.Trigger{}, err
	}
	t, ok := l.triggers[id]
	if !ok {
		return domain.Trigger{}, fmt.Errorf("trigger %d: %w", id, ledger.ErrNotFound)
	}
	return t, nil
}

func (l *FakeLedger) GetOraclePrice(ctx context.Context, feedIndex uint32) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record(LedgerCall{Op: ledger.OpGetOraclePrice, FeedIndex: feedIndex}); err != nil {
		return decimal.Decimal{}, err
	}
	if err := l.priceErrs[feedIndex]; err != nil {
		return decimal.Decimal{}, err
	}
	p, ok := l.prices[feedIndex]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("oracle %d: %w", feedIndex, ledger.ErrInvalidData)
	}
	return p, nil
}

func (l *FakeLedger) GetSettlementBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record(LedgerCall{Op: ledger.OpGetSettlementBalance, Reason: asset}); err != nil {
		return decimal.Decimal{}, err
	}
	return l.balances[asset], nil
}

func (l *FakeLedger) Ping(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.record(LedgerCall{Op: ledger.OpPing})
}

func (l *FakeLedger) StartExecution(ctx context.Context, id uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record(LedgerCall{Op: ledger.OpStartExecution, TriggerID: id}); err != nil {
		return err
	}
	return l.transition(ledger.OpStartExecution, id, domain.TriggerStatusPending, func(t *domain.Trigger) {
		t.Status = domain.TriggerStatusExecuting
		t.ExecutionStartedAt = l.now()
	})
}

func (l *FakeLedger) CompleteExecution(ctx context.Context, id uint64, output decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record(LedgerCall{Op: ledger.OpCompleteExecution, TriggerID: id, Output: output}); err != nil {
		return err
	}
	return l.transition(ledger.OpCompleteExecution, id, domain.TriggerStatusExecuting, func(t *domain.Trigger) {
		t.Status = domain.TriggerStatusCompleted
		t.OutputAmount = output
		// Completion pays the proceeds out of the worker balance.
		l.balances[t.TargetAsset] = l.balances[t.TargetAsset].Sub(output)
	})
}

func (l *FakeLedger) MarkFailed(ctx context.Context, id uint64, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.record(LedgerCall{Op: ledger.OpMarkFailed, TriggerID: id, Reason: reason}); err != nil {
		return err
	}
	return l.transition(ledger.OpMarkFailed, id, domain.TriggerStatusExecuting, func(t *domain.Trigger) {
		t.Status = domain.TriggerStatusFailed
	})
}

// transition must be called with l.mu held.
func (l *FakeLedger) transition(op string, id uint64, from domain.TriggerStatus, apply func(*domain.Trigger)) error {
	t, ok := l.triggers[id]
	if !ok {
		return ledger.Rejected(op, id, "no such trigger")
	}
	if t.Status != from {
		return ledger.Rejected(op, id, "trigger is "+t.Status.String())
	}
	apply(&t)
	l.triggers[id] = t
	if l.unknownOps[op] {
		return &ledger.TransitionError{Op: op, TriggerID: id, Err: ledger.ErrUnknownOutcome}
	}
	return nil
}
