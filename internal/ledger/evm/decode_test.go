package evm

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/ledger"
)

func triggerOutput() []interface{} {
	return []interface{}{
		big.NewInt(42),
		common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		uint32(3),
		"ETH",
		big.NewInt(1_000_000),
		big.NewInt(50),
		big.NewInt(101_500_000),
		true,
		uint8(1),
		big.NewInt(1_700_000_000),
		big.NewInt(1_700_000_600),
		big.NewInt(0),
	}
}

func TestDecodeTrigger(t *testing.T) {
	tr, err := decodeTrigger(triggerOutput(), 6)
	require.NoError(t, err)

	assert.Equal(t, uint64(42), tr.ID)
	assert.Equal(t, common.HexToAddress("0x00000000000000000000000000000000000000aa").Hex(), tr.Owner)
	assert.Equal(t, uint32(3), tr.WatchIndex)
	assert.Equal(t, "ETH", tr.TargetAsset)
	assert.True(t, tr.InputAmount.Equal(decimal.NewFromInt(1_000_000)))
	assert.True(t, tr.ThresholdPrice.Equal(decimal.RequireFromString("101.5")))
	assert.Equal(t, domain.DirectionAbove, tr.Direction)
	assert.Equal(t, domain.TriggerStatusExecuting, tr.Status)
	assert.Equal(t, time.Unix(1_700_000_600, 0).UTC(), tr.ExecutionStartedAt)
}

func TestDecodeTrigger_BelowAndZeroTimes(t *testing.T) {
	out := triggerOutput()
	out[outIsAbove] = false
	out[outStatus] = uint8(0)
	out[outExecutionStartedAt] = big.NewInt(0)

	tr, err := decodeTrigger(out, 6)
	require.NoError(t, err)
	assert.Equal(t, domain.DirectionBelow, tr.Direction)
	assert.Equal(t, domain.TriggerStatusPending, tr.Status)
	assert.True(t, tr.ExecutionStartedAt.IsZero())
}

func TestDecodeTrigger_ZeroIDIsNotFound(t *testing.T) {
	out := triggerOutput()
	out[outID] = big.NewInt(0)

	_, err := decodeTrigger(out, 6)
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestDecodeTrigger_InvalidData(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]interface{}) []interface{}
	}{
		{"short", func(o []interface{}) []interface{} { return o[:5] }},
		{"bad status", func(o []interface{}) []interface{} { o[outStatus] = uint8(7); return o }},
		{"wrong type", func(o []interface{}) []interface{} { o[outOracleIndex] = "3"; return o }},
		{"nil big", func(o []interface{}) []interface{} { o[outTriggerPrice] = (*big.Int)(nil); return o }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeTrigger(tt.mutate(triggerOutput()), 6)
			assert.ErrorIs(t, err, ledger.ErrInvalidData)
		})
	}
}

func TestScalePrice(t *testing.T) {
	assert.True(t, scalePrice(big.NewInt(6_543_210), 4).Equal(decimal.RequireFromString("654.321")))
	assert.True(t, scalePrice(big.NewInt(100), 0).Equal(decimal.NewFromInt(100)))
}

func TestIsRevert(t *testing.T) {
	assert.True(t, isRevert(errors.New("execution reverted: not pending")))
	assert.True(t, isRevert(errors.New("Execution Reverted")))
	assert.False(t, isRevert(errors.New("dial tcp 127.0.0.1:8545: connection refused")))
	assert.False(t, isRevert(nil))
}

func TestSendError_BroadcastFailureIsUnknownOutcome(t *testing.T) {
	hash := common.HexToHash("0x01")
	err := sendError(ledger.OpMarkFailed, 7, hash, errors.New("read tcp 10.0.0.1:8545: i/o timeout"))

	require.ErrorIs(t, err, ledger.ErrUnknownOutcome)
	assert.True(t, ledger.IsPermanent(err), "a broadcast that may have landed must not be retried")
	assert.Contains(t, err.Error(), hash.Hex())

	var te *ledger.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, uint64(7), te.TriggerID)
}

func TestSendError_RevertIsRejected(t *testing.T) {
	err := sendError(ledger.OpCompleteExecution, 3, common.Hash{}, errors.New("execution reverted: not executing"))

	assert.ErrorIs(t, err, ledger.ErrRejected)
	assert.NotErrorIs(t, err, ledger.ErrUnknownOutcome)
}
