package evm

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/ledger"
)

func decodeTrigger(out []interface{}, priceDecimals int32) (domain.Trigger, error) {
	if len(out) != triggerOutputs {
		return domain.Trigger{}, fmt.Errorf("%w: getTrigger returned %d values, want %d", ledger.ErrInvalidData, len(out), triggerOutputs)
	}

	id, err := bigAt(out, outID)
	if err != nil {
		return domain.Trigger{}, err
	}
	if id.Sign() == 0 {
		return domain.Trigger{}, ledger.ErrNotFound
	}
	if !id.IsUint64() {
		return domain.Trigger{}, fmt.Errorf("%w: trigger id %s overflows uint64", ledger.ErrInvalidData, id)
	}

	user, ok := out[outUser].(common.Address)
	if !ok {
		return domain.Trigger{}, typeError(outUser, out[outUser])
	}
	oracleIndex, ok := out[outOracleIndex].(uint32)
	if !ok {
		return domain.Trigger{}, typeError(outOracleIndex, out[outOracleIndex])
	}
	targetAsset, ok := out[outTargetAsset].(string)
	if !ok {
		return domain.Trigger{}, typeError(outTargetAsset, out[outTargetAsset])
	}
	isAbove, ok := out[outIsAbove].(bool)
	if !ok {
		return domain.Trigger{}, typeError(outIsAbove, out[outIsAbove])
	}
	rawStatus, ok := out[outStatus].(uint8)
	if !ok {
		return domain.Trigger{}, typeError(outStatus, out[outStatus])
	}
	status := domain.TriggerStatus(rawStatus)
	if !status.Valid() {
		return domain.Trigger{}, fmt.Errorf("%w: trigger %s has status %d", ledger.ErrInvalidData, id, rawStatus)
	}

	var bigs [triggerOutputs]*big.Int
	for _, i := range []int{outInputAmount, outMaxSlippage, outTriggerPrice, outCreatedAt, outExecutionStartedAt, outOutputAmount} {
		v, err := bigAt(out, i)
		if err != nil {
			return domain.Trigger{}, err
		}
		bigs[i] = v
	}

	direction := domain.DirectionBelow
	if isAbove {
		direction = domain.DirectionAbove
	}

	return domain.Trigger{
		ID:                 id.Uint64(),
		Owner:              user.Hex(),
		WatchIndex:         oracleIndex,
		TargetAsset:        targetAsset,
		InputAmount:        decimal.NewFromBigInt(bigs[outInputAmount], 0),
		MaxSlippage:        decimal.NewFromBigInt(bigs[outMaxSlippage], 0),
		ThresholdPrice:     scalePrice(bigs[outTriggerPrice], priceDecimals),
		Direction:          direction,
		Status:             status,
		CreatedAt:          unixTime(bigs[outCreatedAt]),
		ExecutionStartedAt: unixTime(bigs[outExecutionStartedAt]),
		OutputAmount:       decimal.NewFromBigInt(bigs[outOutputAmount], 0),
	}, nil
}

func bigAt(out []interface{}, i int) (*big.Int, error) {
	v, ok := out[i].(*big.Int)
	if !ok || v == nil {
		return nil, typeError(i, out[i])
	}
	return v, nil
}

func typeError(i int, v interface{}) error {
	return fmt.Errorf("%w: output %d has type %T", ledger.ErrInvalidData, i, v)
}

func scalePrice(raw *big.Int, decimals int32) decimal.Decimal {
	return decimal.NewFromBigInt(raw, -decimals)
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

// isRevert reports whether err is the node telling us the contract reverted,
// as opposed to a transport failure.
func isRevert(err error) bool {
	if err == nil {
		return false
	}
	var de rpc.DataError
	if errors.As(err, &de) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

// sendError classifies a failed broadcast of a signed transaction. The node
// may already hold it, so only a revert counts as a refusal.
func sendError(op string, id uint64, hash common.Hash, err error) error {
	if isRevert(err) {
		return ledger.Rejected(op, id, err.Error())
	}
	return &ledger.TransitionError{
		Op:        op,
		TriggerID: id,
		Err:       fmt.Errorf("%w: send tx %s: %v", ledger.ErrUnknownOutcome, hash.Hex(), err),
	}
}
