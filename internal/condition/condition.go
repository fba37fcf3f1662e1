// Package condition decides whether a trigger's price threshold is met.
package condition

import (
	"github.com/shopspring/decimal"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// ShouldExecute reports whether price satisfies t's threshold. The boundary
// is inclusive in both directions. ok=false means no price was read this
// cycle, which never satisfies the condition.
func ShouldExecute(t domain.Trigger, price decimal.Decimal, ok bool) bool {
	if !ok {
		return false
	}
	switch t.Direction {
	case domain.DirectionAbove:
		return price.GreaterThanOrEqual(t.ThresholdPrice)
	case domain.DirectionBelow:
		return price.LessThanOrEqual(t.ThresholdPrice)
	default:
		return false
	}
}

// Lookup evaluates t against a per-cycle price map keyed by feed index.
func Lookup(t domain.Trigger, prices map[uint32]decimal.Decimal) bool {
	p, ok := prices[t.WatchIndex]
	return ShouldExecute(t, p, ok)
}
