package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/0xGF/hyper-trigger-sub000/internal/condition"
	"github.com/0xGF/hyper-trigger-sub000/internal/domain"
	"github.com/0xGF/hyper-trigger-sub000/internal/metrics"
	"github.com/0xGF/hyper-trigger-sub000/internal/oracle"
	"github.com/0xGF/hyper-trigger-sub000/internal/registry"
	"github.com/0xGF/hyper-trigger-sub000/internal/resilience"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect",
		Short: "Scan the registry and read prices once, without submitting transitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(true)
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			chain, err := dialLedger(ctx, cfg, false)
			if err != nil {
				return fmt.Errorf("dial ledger: %w", err)
			}
			defer chain.Close()
			client := resilience.WrapClient(chain, newLayer(cfg, metrics.NewNoopSink()))

			reader := oracle.New(client, cfg.Feeds, cfg.OracleConcurrency)
			snap, prices, err := readOnce(ctx, registry.NewScanner(client, cfg.ScanConcurrency), reader)
			if err != nil {
				return err
			}
			renderInspect(cmd.OutOrStdout(), snap, reader.Feeds(), prices)
			return nil
		},
	}
}

type scanner interface {
	Scan(ctx context.Context) (registry.Snapshot, error)
}

type priceReader interface {
	Read(ctx context.Context) (oracle.Result, error)
}

// readOnce runs one scan and one price read concurrently. An empty price
// batch is not an error here.
func readOnce(ctx context.Context, s scanner, p priceReader) (registry.Snapshot, oracle.Result, error) {
	var (
		snap   registry.Snapshot
		prices oracle.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		snap, err = s.Scan(gctx)
		if err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		r, err := p.Read(gctx)
		if err != nil && !errors.Is(err, oracle.ErrNoPrices) {
			return fmt.Errorf("read prices: %w", err)
		}
		prices = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return registry.Snapshot{}, oracle.Result{}, err
	}
	return snap, prices, nil
}

func renderInspect(w io.Writer, snap registry.Snapshot, feeds []domain.Feed, prices oracle.Result) {
	fmt.Fprintf(w, "Registry: %d scanned, %d active, %d unreadable (next id %d)\n\n",
		snap.Scanned, len(snap.Active), len(snap.Failed), snap.NextID)

	triggers := tablewriter.NewWriter(w)
	triggers.SetHeader([]string{"ID", "Owner", "Feed", "Direction", "Threshold", "Price", "Status", "Condition"})
	triggers.SetAutoWrapText(false)
	for _, t := range snap.Active {
		price := "-"
		if p, ok := prices.Price(t.WatchIndex); ok {
			price = p.String()
		}
		triggers.Append([]string{
			strconv.FormatUint(t.ID, 10),
			t.Owner,
			strconv.FormatUint(uint64(t.WatchIndex), 10),
			string(t.Direction),
			t.ThresholdPrice.String(),
			price,
			t.Status.String(),
			strconv.FormatBool(condition.Lookup(t, prices.Prices)),
		})
	}
	triggers.Render()

	fmt.Fprintln(w)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Symbol", "Index", "Price"})
	for _, f := range feeds {
		price := "unavailable"
		if p, ok := prices.Price(f.Index); ok {
			price = p.String()
		}
		table.Append([]string{f.Symbol, strconv.FormatUint(uint64(f.Index), 10), price})
	}
	table.Render()
}
