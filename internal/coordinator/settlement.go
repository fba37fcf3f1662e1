package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// SettlementProbe decides whether the off-ledger trade behind an executing
// trigger has settled, and with what output amount.
type SettlementProbe interface {
	Settled(ctx context.Context, t domain.Trigger) (output decimal.Decimal, settled bool, err error)
}

// BalanceReader reads the worker's settlement balance of an asset.
type BalanceReader interface {
	GetSettlementBalance(ctx context.Context, asset string) (decimal.Decimal, error)
}

// CycleProbe is a SettlementProbe that keeps per-cycle state. BeginCycle
// is called once at the start of every Process call.
type CycleProbe interface {
	SettlementProbe
	BeginCycle()
}

// BalanceProbe treats the worker's balance of the trigger's target asset as
// the proceeds of its trade. Within one cycle a balance is handed out once:
// a settled trigger claims what is left of its asset, so two triggers on the
// same asset never report the same proceeds. An accepted complete-execution
// moves the proceeds off the worker balance, so claims only live for a cycle.
type BalanceProbe struct {
	src BalanceReader

	mu      sync.Mutex
	claimed map[string]decimal.Decimal
}

var _ CycleProbe = (*BalanceProbe)(nil)

func NewBalanceProbe(src BalanceReader) *BalanceProbe {
	return &BalanceProbe{src: src, claimed: make(map[string]decimal.Decimal)}
}

// BeginCycle forgets the previous cycle's claims.
func (p *BalanceProbe) BeginCycle() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.claimed = make(map[string]decimal.Decimal)
}

func (p *BalanceProbe) Settled(ctx context.Context, t domain.Trigger) (decimal.Decimal, bool, error) {
	if t.TargetAsset == "" {
		return decimal.Zero, false, fmt.Errorf("trigger %d has no target asset", t.ID)
	}
	bal, err := p.src.GetSettlementBalance(ctx, t.TargetAsset)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("read %s balance: %w", t.TargetAsset, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	available := bal.Sub(p.claimed[t.TargetAsset])
	if !available.IsPositive() {
		return decimal.Zero, false, nil
	}
	p.claimed[t.TargetAsset] = p.claimed[t.TargetAsset].Add(available)
	return available, true, nil
}
