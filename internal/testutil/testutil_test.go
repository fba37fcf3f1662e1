package testutil

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/ledger"
)

func TestFakeClock_Advance(t *testing.T) {
	fixed := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	clock := NewFakeClock(fixed)
	assert.Equal(t, fixed, clock.Now())

	clock.Advance(5 * time.Minute)
	assert.Equal(t, fixed.Add(5*time.Minute), clock.Now())
}

func TestTestContext_HasDeadline(t *testing.T) {
	ctx := TestContext(t)

	deadline, ok := ctx.Deadline()
	require.True(t, ok, "TestContext should have a deadline")

	remaining := time.Until(deadline)
	assert.True(t, remaining > 0 && remaining <= 6*time.Second, "deadline should be ~5s from now, got %v", remaining)
}

func TestFakeLedger_TransitionRules(t *testing.T) {
	ctx := TestContext(t)
	clock := NewFakeClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	l := NewFakeLedger(clock.Now)
	l.AddTrigger(domain.Trigger{ID: 1, Status: domain.TriggerStatusPending})

	next, err := l.NextTriggerID(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next)

	assert.ErrorIs(t, l.CompleteExecution(ctx, 1, Price("1")), ledger.ErrRejected)

	require.NoError(t, l.StartExecution(ctx, 1))
	assert.Equal(t, domain.TriggerStatusExecuting, l.Trigger(1).Status)
	assert.Equal(t, clock.Now(), l.Trigger(1).ExecutionStartedAt)

	assert.ErrorIs(t, l.StartExecution(ctx, 1), ledger.ErrRejected)

	require.NoError(t, l.MarkFailed(ctx, 1, domain.FailReasonTimeout))
	assert.Equal(t, domain.TriggerStatusFailed, l.Trigger(1).Status)
	assert.Equal(t, 2, l.CallCount(ledger.OpStartExecution))
}

func TestFakeLedger_FailAll(t *testing.T) {
	ctx := TestContext(t)
	l := NewFakeLedger(time.Now)
	boom := errors.New("connection reset")

	l.FailAll(boom)
	assert.ErrorIs(t, l.Ping(ctx), boom)

	l.Heal()
	assert.NoError(t, l.Ping(ctx))
	assert.Equal(t, 2, l.CallCount(ledger.OpPing))
}

func TestFakeLedger_UnknownOutcomeLands(t *testing.T) {
	ctx := TestContext(t)
	l := NewFakeLedger(time.Now)
	l.AddTrigger(domain.Trigger{ID: 3, Status: domain.TriggerStatusPending})
	l.SetUnknownOutcome(ledger.OpStartExecution, true)

	assert.ErrorIs(t, l.StartExecution(ctx, 3), ledger.ErrUnknownOutcome)
	assert.Equal(t, domain.TriggerStatusExecuting, l.Trigger(3).Status)
}
