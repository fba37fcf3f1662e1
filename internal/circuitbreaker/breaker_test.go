package circuitbreaker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xGF/hyper-trigger-sub000/internal/testutil"
)

const op = "get_trigger"

func newTestBreaker(threshold int) (*CircuitBreaker, *testutil.FakeClock) {
	clock := testutil.NewFakeClock(time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
	return New(threshold, 5*time.Second).WithClock(clock.Now), clock
}

func TestAllow_UnknownKey_Allowed(t *testing.T) {
	cb, _ := newTestBreaker(3)
	assert.NoError(t, cb.Allow(op))
}

func TestAllow_BelowThreshold_Allowed(t *testing.T) {
	cb, _ := newTestBreaker(3)
	assert.False(t, cb.RecordFailure(op))
	assert.False(t, cb.RecordFailure(op))
	assert.NoError(t, cb.Allow(op))
}

func TestAllow_AtThreshold_Open(t *testing.T) {
	cb, _ := newTestBreaker(3)
	cb.RecordFailure(op)
	cb.RecordFailure(op)
	assert.True(t, cb.RecordFailure(op))
	assert.ErrorIs(t, cb.Allow(op), ErrCircuitOpen)
	assert.Equal(t, []string{op}, cb.OpenKeys())
}

func TestAllow_OpenAfterCooldown_HalfOpen(t *testing.T) {
	cb, clock := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		cb.RecordFailure(op)
	}
	clock.Advance(5 * time.Second)

	require.NoError(t, cb.Allow(op), "probe allowed after cooldown")
	assert.ErrorIs(t, cb.Allow(op), ErrCircuitOpen, "second call rejected while half-open")
}

func TestRecordSuccess_ResetsToClosed(t *testing.T) {
	cb, clock := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		cb.RecordFailure(op)
	}
	clock.Advance(6 * time.Second)
	require.NoError(t, cb.Allow(op))

	cb.RecordSuccess(op)
	assert.NoError(t, cb.Allow(op))
	assert.Empty(t, cb.OpenKeys())
}

func TestRecordFailure_HalfOpenReOpens(t *testing.T) {
	cb, clock := newTestBreaker(3)
	for i := 0; i < 3; i++ {
		cb.RecordFailure(op)
	}
	clock.Advance(6 * time.Second)
	require.NoError(t, cb.Allow(op))

	assert.True(t, cb.RecordFailure(op))
	assert.ErrorIs(t, cb.Allow(op), ErrCircuitOpen)
}

func TestIndependentKeys(t *testing.T) {
	cb, _ := newTestBreaker(2)
	cb.RecordFailure("start_execution")
	cb.RecordFailure("start_execution")

	assert.ErrorIs(t, cb.Allow("start_execution"), ErrCircuitOpen)
	assert.NoError(t, cb.Allow("get_oracle_price"))
}

func TestReset(t *testing.T) {
	cb, _ := newTestBreaker(1)
	cb.RecordFailure(op)
	require.ErrorIs(t, cb.Allow(op), ErrCircuitOpen)

	cb.Reset()
	assert.NoError(t, cb.Allow(op))
}
