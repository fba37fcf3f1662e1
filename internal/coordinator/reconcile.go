package coordinator

import (
	"context"
	"errors"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/0xGF/hyper-trigger-sub000/internal/ledger"
	"github.com/0xGF/hyper-trigger-sub000/internal/registry"
)

// sweep re-reads guarded triggers missing from the cycle's active snapshot.
// Those the ledger shows terminal (completed elsewhere, failed, or cancelled
// by their owner) are released without a transition call. Unreadable ones
// stay guarded until a later cycle can read them.
func (c *Coordinator) sweep(ctx context.Context, cycleID uuid.UUID, snap registry.Snapshot, res *Result) {
	for _, id := range c.guard.IDs() {
		if snap.Contains(id) {
			continue
		}
		if ctx.Err() != nil || c.halted() {
			return
		}

		logger := c.logger.WithFields(log.Fields{"cycle_id": cycleID, "trigger_id": id})

		t, err := c.ledger.GetTrigger(ctx, id)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				c.release(id, releaseNotFound, res)
				logger.Warn("guarded trigger not found on ledger, guard released")
				continue
			}
			logger.WithError(err).Warn("guarded trigger read failed, keeping guard")
			continue
		}

		if t.Status.Terminal() {
			c.release(id, releaseTerminal, res)
			logger.WithField("status", t.Status).Info("guarded trigger is terminal on ledger, guard released")
		}
	}
}
