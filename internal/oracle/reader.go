// Package oracle reads current prices for the monitored feeds.
package oracle

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
)

// ErrNoPrices is returned with an empty result when every feed failed.
var ErrNoPrices = errors.New("no feed prices available")

// PriceSource reads one feed. Retries belong beneath this interface.
type PriceSource interface {
	GetOraclePrice(ctx context.Context, feedIndex uint32) (decimal.Decimal, error)
}

// Result holds one batch of prices keyed by feed index. A feed missing from
// Prices has no price this cycle.
type Result struct {
	Prices map[uint32]decimal.Decimal
	Failed []domain.Feed
}

// Price returns the price read for feedIndex.
func (r Result) Price(feedIndex uint32) (decimal.Decimal, bool) {
	p, ok := r.Prices[feedIndex]
	return p, ok
}

type Reader struct {
	src         PriceSource
	feeds       []domain.Feed
	concurrency int
	logger      *log.Entry
}

// New creates a reader for feeds. Feeds sharing an index are read once.
func New(src PriceSource, feeds []domain.Feed, concurrency int) *Reader {
	if concurrency < 1 {
		concurrency = 1
	}
	seen := make(map[uint32]bool, len(feeds))
	unique := make([]domain.Feed, 0, len(feeds))
	for _, f := range feeds {
		if seen[f.Index] {
			continue
		}
		seen[f.Index] = true
		unique = append(unique, f)
	}
	return &Reader{
		src:         src,
		feeds:       unique,
		concurrency: concurrency,
		logger:      log.WithField("component", "oracle"),
	}
}

func (r *Reader) Feeds() []domain.Feed {
	return append([]domain.Feed(nil), r.feeds...)
}

// Read fetches every feed concurrently. A failed or non-positive read leaves
// that feed absent and never aborts the batch. When no feed could be priced
// the empty result is returned with ErrNoPrices.
func (r *Reader) Read(ctx context.Context) (Result, error) {
	res := Result{Prices: make(map[uint32]decimal.Decimal, len(r.feeds))}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, f := range r.feeds {
		f := f
		g.Go(func() error {
			price, err := r.src.GetOraclePrice(ctx, f.Index)
			if err == nil && !price.IsPositive() {
				err = errNonPositive
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				res.Failed = append(res.Failed, f)
				r.logger.WithFields(log.Fields{
					"feed":  f.Symbol,
					"index": f.Index,
				}).WithError(err).Warn("feed read failed")
				return nil
			}
			res.Prices[f.Index] = price
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return res, err
	}
	sort.Slice(res.Failed, func(i, j int) bool { return res.Failed[i].Index < res.Failed[j].Index })

	if len(res.Prices) == 0 && len(r.feeds) > 0 {
		return res, ErrNoPrices
	}
	return res, nil
}

var errNonPositive = errors.New("non-positive price")
