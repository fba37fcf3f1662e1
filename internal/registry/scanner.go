// Package registry enumerates the active triggers held by the ledger.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/resilience"
)

// Source is the read surface the scanner needs.
type Source interface {
	NextTriggerID(ctx context.Context) (uint64, error)
	GetTrigger(ctx context.Context, id uint64) (domain.Trigger, error)
}

// Snapshot is a best-effort view of the registry for one cycle. Ids that
// could not be read are listed in Failed and retried next cycle.
type Snapshot struct {
	Active  []domain.Trigger
	Scanned int
	Failed  []uint64
	NextID  uint64
}

// Contains reports whether id is in the active set.
func (s Snapshot) Contains(id uint64) bool {
	i := sort.Search(len(s.Active), func(i int) bool { return s.Active[i].ID >= id })
	return i < len(s.Active) && s.Active[i].ID == id
}

type Scanner struct {
	src         Source
	concurrency int
	logger      *log.Entry
}

func NewScanner(src Source, concurrency int) *Scanner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Scanner{
		src:         src,
		concurrency: concurrency,
		logger:      log.WithField("component", "registry"),
	}
}

// Scan reads ids 1..NextTriggerID-1 and returns the Pending and Executing
// triggers in ascending id order. A failed counter read fails the scan. A
// failed single read is logged and skipped, unless the transport is
// degraded, in which case the scan stops and returns that error.
func (s *Scanner) Scan(ctx context.Context) (Snapshot, error) {
	next, err := s.src.NextTriggerID(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read trigger counter: %w", err)
	}

	snap := Snapshot{NextID: next}
	if next <= 1 {
		return snap, nil
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for id := uint64(1); id < next; id++ {
		if gctx.Err() != nil {
			break
		}
		id := id
		g.Go(func() error {
			t, err := s.src.GetTrigger(gctx, id)

			mu.Lock()
			defer mu.Unlock()
			snap.Scanned++
			if err != nil {
				if errors.Is(err, resilience.ErrTransportDegraded) {
					return err
				}
				snap.Failed = append(snap.Failed, id)
				s.logger.WithField("trigger_id", id).WithError(err).Warn("trigger read failed, skipping")
				return nil
			}
			if t.Status.Active() {
				snap.Active = append(snap.Active, t)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, fmt.Errorf("scan registry: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	sort.Slice(snap.Active, func(i, j int) bool { return snap.Active[i].ID < snap.Active[j].ID })
	sort.Slice(snap.Failed, func(i, j int) bool { return snap.Failed[i] < snap.Failed[j] })
	return snap, nil
}
