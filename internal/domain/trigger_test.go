package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTriggerStatus_Values(t *testing.T) {
	tests := []struct {
		status   TriggerStatus
		want     string
		active   bool
		terminal bool
	}{
		{TriggerStatusPending, "pending", true, false},
		{TriggerStatusExecuting, "executing", true, false},
		{TriggerStatusCompleted, "completed", false, true},
		{TriggerStatusFailed, "failed", false, true},
		{TriggerStatusCancelled, "cancelled", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.status.String())
			assert.Equal(t, tt.active, tt.status.Active())
			assert.Equal(t, tt.terminal, tt.status.Terminal())
			assert.True(t, tt.status.Valid())
		})
	}
}

func TestTriggerStatus_Unknown(t *testing.T) {
	s := TriggerStatus(9)
	assert.False(t, s.Valid())
	assert.False(t, s.Active())
	assert.False(t, s.Terminal())
	assert.Equal(t, "unknown(9)", s.String())
}

func TestTrigger_ExecutionElapsed(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	tr := Trigger{ExecutionStartedAt: start}
	assert.Equal(t, 3601*time.Second, tr.ExecutionElapsed(start.Add(3601*time.Second)))

	assert.Zero(t, Trigger{}.ExecutionElapsed(start))
}

func TestTransitionEvent_Terminal(t *testing.T) {
	assert.True(t, TransitionEvent{Kind: TransitionComplete, Outcome: OutcomeAccepted}.Terminal())
	assert.True(t, TransitionEvent{Kind: TransitionFail, Outcome: OutcomeAccepted}.Terminal())
	assert.False(t, TransitionEvent{Kind: TransitionStart, Outcome: OutcomeAccepted}.Terminal())
	assert.False(t, TransitionEvent{Kind: TransitionFail, Outcome: OutcomeUnknown}.Terminal())
}
