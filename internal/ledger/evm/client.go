// Package evm implements ledger.Client against the trigger registry contract
// over JSON-RPC.
package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/ledger"
)

var errNoSigner = errors.New("evm: client has no signing key")

type Config struct {
	RPCURL          string
	ContractAddress string

	// PrivateKey is the hex worker key. Empty yields a read-only client.
	PrivateKey string

	// ChainID 0 asks the node.
	ChainID int64

	PriceDecimals  int32
	CallTimeout    time.Duration
	ReceiptTimeout time.Duration
}

// Client talks to the trigger registry contract.
type Client struct {
	eth      *ethclient.Client
	contract *bind.BoundContract
	address  common.Address

	auth *bind.TransactOpts
	from common.Address

	priceDecimals  int32
	callTimeout    time.Duration
	receiptTimeout time.Duration

	logger *log.Entry
}

var _ ledger.Client = (*Client)(nil)

// Dial connects to the RPC endpoint and binds the registry contract.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("evm: invalid contract address %q", cfg.ContractAddress)
	}

	parsed, err := abi.JSON(strings.NewReader(triggerRegistryABI))
	if err != nil {
		return nil, fmt.Errorf("evm: parse abi: %w", err)
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("evm: dial %s: %w", cfg.RPCURL, err)
	}

	address := common.HexToAddress(cfg.ContractAddress)
	c := &Client{
		eth:            eth,
		contract:       bind.NewBoundContract(address, parsed, eth, eth, eth),
		address:        address,
		priceDecimals:  cfg.PriceDecimals,
		callTimeout:    cfg.CallTimeout,
		receiptTimeout: cfg.ReceiptTimeout,
		logger:         log.WithField("component", "ledger"),
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = time.Minute
	}

	if cfg.PrivateKey == "" {
		c.logger.Warn("no signing key configured, client is read-only")
		return c, nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("evm: parse private key: %w", err)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		chainCtx, cancel := c.callContext(ctx)
		chainID, err = eth.ChainID(chainCtx)
		cancel()
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("evm: fetch chain id: %w", err)
		}
	}

	if err := c.setSigner(key, chainID); err != nil {
		eth.Close()
		return nil, err
	}

	c.logger.WithFields(log.Fields{
		"contract": address.Hex(),
		"from":     c.from.Hex(),
		"chain_id": chainID.String(),
	}).Info("ledger client ready")
	return c, nil
}

func (c *Client) setSigner(key *ecdsa.PrivateKey, chainID *big.Int) error {
	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return fmt.Errorf("evm: build transactor: %w", err)
	}
	c.auth = auth
	c.from = crypto.PubkeyToAddress(key.PublicKey)
	return nil
}

// From returns the worker address, or "" for a read-only client.
func (c *Client) From() string {
	if c.auth == nil {
		return ""
	}
	return c.from.Hex()
}

func (c *Client) Close() {
	c.eth.Close()
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout > 0 {
		return context.WithTimeout(ctx, c.callTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Client) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	var out []interface{}
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) NextTriggerID(ctx context.Context) (uint64, error) {
	out, err := c.call(ctx, methodNextTriggerID)
	if err != nil {
		return 0, fmt.Errorf("next trigger id: %w", err)
	}
	if len(out) != 1 {
		return 0, fmt.Errorf("%w: nextTriggerId returned %d values", ledger.ErrInvalidData, len(out))
	}
	next, err := bigAt(out, 0)
	if err != nil {
		return 0, err
	}
	if !next.IsUint64() {
		return 0, fmt.Errorf("%w: next trigger id %s overflows uint64", ledger.ErrInvalidData, next)
	}
	return next.Uint64(), nil
}

func (c *Client) GetTrigger(ctx context.Context, id uint64) (domain.Trigger, error) {
	out, err := c.call(ctx, methodGetTrigger, new(big.Int).SetUint64(id))
	if err != nil {
		if isRevert(err) {
			return domain.Trigger{}, fmt.Errorf("trigger %d: %w: %v", id, ledger.ErrNotFound, err)
		}
		return domain.Trigger{}, fmt.Errorf("get trigger %d: %w", id, err)
	}
	t, err := decodeTrigger(out, c.priceDecimals)
	if err != nil {
		return domain.Trigger{}, fmt.Errorf("trigger %d: %w", id, err)
	}
	return t, nil
}

func (c *Client) GetOraclePrice(ctx context.Context, feedIndex uint32) (decimal.Decimal, error) {
	out, err := c.call(ctx, methodGetOraclePrice, feedIndex)
	if err != nil {
		if isRevert(err) {
			return decimal.Decimal{}, fmt.Errorf("oracle %d: %w: %v", feedIndex, ledger.ErrInvalidData, err)
		}
		return decimal.Decimal{}, fmt.Errorf("oracle %d: %w", feedIndex, err)
	}
	if len(out) != 1 {
		return decimal.Decimal{}, fmt.Errorf("%w: getOraclePrice returned %d values", ledger.ErrInvalidData, len(out))
	}
	raw, ok := out[0].(uint64)
	if !ok {
		return decimal.Decimal{}, typeError(0, out[0])
	}
	return scalePrice(new(big.Int).SetUint64(raw), c.priceDecimals), nil
}

func (c *Client) GetSettlementBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	out, err := c.call(ctx, methodGetSettlementBalance, asset)
	if err != nil {
		if isRevert(err) {
			return decimal.Decimal{}, fmt.Errorf("balance %s: %w: %v", asset, ledger.ErrInvalidData, err)
		}
		return decimal.Decimal{}, fmt.Errorf("balance %s: %w", asset, err)
	}
	if len(out) != 1 {
		return decimal.Decimal{}, fmt.Errorf("%w: getSettlementBalance returned %d values", ledger.ErrInvalidData, len(out))
	}
	raw, err := bigAt(out, 0)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return decimal.NewFromBigInt(raw, 0), nil
}

func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	if _, err := c.eth.BlockNumber(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (c *Client) StartExecution(ctx context.Context, id uint64) error {
	return c.transact(ctx, ledger.OpStartExecution, id, methodStartExecution, new(big.Int).SetUint64(id))
}

func (c *Client) CompleteExecution(ctx context.Context, id uint64, outputAmount decimal.Decimal) error {
	if outputAmount.IsNegative() {
		return &ledger.TransitionError{
			Op:        ledger.OpCompleteExecution,
			TriggerID: id,
			Err:       fmt.Errorf("%w: negative output amount %s", ledger.ErrInvalidData, outputAmount),
		}
	}
	return c.transact(ctx, ledger.OpCompleteExecution, id, methodCompleteExecution,
		new(big.Int).SetUint64(id), outputAmount.BigInt())
}

func (c *Client) MarkFailed(ctx context.Context, id uint64, reason string) error {
	return c.transact(ctx, ledger.OpMarkFailed, id, methodMarkFailed, new(big.Int).SetUint64(id), reason)
}

// transact submits a transition and waits for its receipt. Gas estimation
// runs the call against current state, so a transition the contract would
// refuse fails before anything is broadcast. The transaction is signed
// first and broadcast separately: once it has been handed to the node, any
// error leaves the outcome unknown.
func (c *Client) transact(ctx context.Context, op string, id uint64, method string, params ...interface{}) error {
	if c.auth == nil {
		return &ledger.TransitionError{Op: op, TriggerID: id, Err: errNoSigner}
	}

	buildCtx, cancel := c.callContext(ctx)
	opts := *c.auth
	opts.Context = buildCtx
	opts.NoSend = true
	tx, err := c.contract.Transact(&opts, method, params...)
	cancel()
	if err != nil {
		if isRevert(err) {
			return ledger.Rejected(op, id, err.Error())
		}
		return &ledger.TransitionError{Op: op, TriggerID: id, Err: err}
	}

	sendCtx, cancel := c.callContext(ctx)
	err = c.eth.SendTransaction(sendCtx, tx)
	cancel()
	if err != nil {
		return sendError(op, id, tx.Hash(), err)
	}

	logger := c.logger.WithFields(log.Fields{"op": op, "trigger_id": id, "tx": tx.Hash().Hex()})
	logger.Debug("transaction submitted")

	waitCtx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, c.eth, tx)
	if err != nil {
		return &ledger.TransitionError{
			Op:        op,
			TriggerID: id,
			Err:       fmt.Errorf("%w: tx %s: %v", ledger.ErrUnknownOutcome, tx.Hash().Hex(), err),
		}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return ledger.Rejected(op, id, "reverted in tx "+tx.Hash().Hex())
	}

	logger.WithField("block", receipt.BlockNumber).Debug("transaction mined")
	return nil
}
