package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRejected_MatchesSentinel(t *testing.T) {
	err := Rejected(OpStartExecution, 7, "not pending")

	assert.ErrorIs(t, err, ErrRejected)
	assert.EqualError(t, err, "start_execution trigger 7: transition rejected by ledger: not pending")

	var te *TransitionError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, uint64(7), te.TriggerID)
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rejected", Rejected(OpMarkFailed, 1, "x"), true},
		{"not found", fmt.Errorf("read: %w", ErrNotFound), true},
		{"unknown outcome", &TransitionError{Op: OpStartExecution, TriggerID: 1, Err: ErrUnknownOutcome}, true},
		{"invalid data", ErrInvalidData, true},
		{"transport", errors.New("dial tcp: connection refused"), false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPermanent(tt.err))
		})
	}
}
