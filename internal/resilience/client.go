package resilience

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/ledger"
)

// Client routes every ledger call through a Layer.
type Client struct {
	next  ledger.Client
	layer *Layer
}

var _ ledger.Client = (*Client)(nil)

func WrapClient(next ledger.Client, layer *Layer) *Client {
	return &Client{next: next, layer: layer}
}

func (c *Client) Layer() *Layer {
	return c.layer
}

func (c *Client) NextTriggerID(ctx context.Context) (uint64, error) {
	var id uint64
	err := c.layer.Do(ctx, ledger.OpNextTriggerID, func(ctx context.Context) error {
		var err error
		id, err = c.next.NextTriggerID(ctx)
		return err
	})
	return id, err
}

func (c *Client) GetTrigger(ctx context.Context, id uint64) (domain.Trigger, error) {
	var t domain.Trigger
	err := c.layer.Do(ctx, ledger.OpGetTrigger, func(ctx context.Context) error {
		var err error
		t, err = c.next.GetTrigger(ctx, id)
		return err
	})
	return t, err
}

func (c *Client) GetOraclePrice(ctx context.Context, feedIndex uint32) (decimal.Decimal, error) {
	var p decimal.Decimal
	err := c.layer.Do(ctx, ledger.OpGetOraclePrice, func(ctx context.Context) error {
		var err error
		p, err = c.next.GetOraclePrice(ctx, feedIndex)
		return err
	})
	return p, err
}

func (c *Client) GetSettlementBalance(ctx context.Context, asset string) (decimal.Decimal, error) {
	var b decimal.Decimal
	err := c.layer.Do(ctx, ledger.OpGetSettlementBalance, func(ctx context.Context) error {
		var err error
		b, err = c.next.GetSettlementBalance(ctx, asset)
		return err
	})
	return b, err
}

func (c *Client) StartExecution(ctx context.Context, id uint64) error {
	return c.layer.Do(ctx, ledger.OpStartExecution, func(ctx context.Context) error {
		return c.next.StartExecution(ctx, id)
	})
}

func (c *Client) CompleteExecution(ctx context.Context, id uint64, output decimal.Decimal) error {
	return c.layer.Do(ctx, ledger.OpCompleteExecution, func(ctx context.Context) error {
		return c.next.CompleteExecution(ctx, id, output)
	})
}

func (c *Client) MarkFailed(ctx context.Context, id uint64, reason string) error {
	return c.layer.Do(ctx, ledger.OpMarkFailed, func(ctx context.Context) error {
		return c.next.MarkFailed(ctx, id, reason)
	})
}

// Ping bypasses the layer. It is the recovery probe and must reach the
// endpoint even while the layer is tripped.
func (c *Client) Ping(ctx context.Context) error {
	return c.next.Ping(ctx)
}
