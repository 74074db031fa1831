package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emperorhan/collection-scanner/internal/cache"
	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/marketplace"
	"github.com/emperorhan/collection-scanner/internal/probe"
	"github.com/emperorhan/collection-scanner/internal/scanner"
	"github.com/emperorhan/collection-scanner/internal/store"
	"github.com/spf13/cobra"
)

type scanOptions struct {
	rpcURL       string
	contract     string
	chain        string
	pageSize     int
	batchSize    int
	batchDelay   time.Duration
	probeTimeout time.Duration
	owner        string
	jsonOut      bool
}

func newScanCmd(opts *globalOptions) *cobra.Command {
	so := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan [collection...]",
		Short: "Scan collections for active listings once",
		Long: `Scan the given collections, or with --owner the owner's stored
collections, and print the ones that currently have active listings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if so.rpcURL == "" || so.contract == "" {
				return fmt.Errorf("--rpc-url and --marketplace are required")
			}
			if len(args) == 0 && so.owner == "" {
				return fmt.Errorf("pass collection addresses or --owner")
			}

			refs, err := resolveScanTargets(cmd.Context(), opts, so.owner, args)
			if err != nil {
				return err
			}

			provider, closeProvider, err := opts.dialProvider(cmd.Context(), so.rpcURL, so.contract, so.chain, so.pageSize)
			if err != nil {
				return err
			}
			defer closeProvider()

			return runScan(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), provider, refs, so)
		},
	}

	f := cmd.Flags()
	f.StringVar(&so.rpcURL, "rpc-url", envOr("MARKETPLACE_RPC_URL", ""), "Marketplace JSON-RPC endpoint")
	f.StringVar(&so.contract, "marketplace", envOr("MARKETPLACE_ADDRESS", ""), "Marketplace contract address")
	f.StringVar(&so.chain, "chain", envOr("MARKETPLACE_CHAIN", string(model.ChainPolygon)), "Chain label")
	f.IntVar(&so.pageSize, "page-size", 100, "Listing ids fetched per marketplace call")
	f.IntVar(&so.batchSize, "batch-size", scanner.DefaultBatchSize, "Probes per batch")
	f.DurationVar(&so.batchDelay, "batch-delay", scanner.DefaultBatchDelay, "Pause between batches")
	f.DurationVar(&so.probeTimeout, "probe-timeout", 10*time.Second, "Per-probe timeout")
	f.StringVar(&so.owner, "owner", "", "Scan the owner's stored collections")
	f.BoolVar(&so.jsonOut, "json", false, "Print results as JSON")
	return cmd
}

func resolveScanTargets(ctx context.Context, opts *globalOptions, owner string, args []string) ([]model.CollectionRef, error) {
	if len(args) > 0 {
		return store.NewStaticSource(args).ListCollections(ctx)
	}
	repo, closeRepo, err := opts.openRepo(ctx)
	if err != nil {
		return nil, err
	}
	defer closeRepo()
	return store.NewOwnerSource(repo, owner).ListCollections(ctx)
}

type scanReport struct {
	Listed []model.CollectionRef `json:"listed"`
	Failed []string              `json:"failed,omitempty"`
}

// runScan writes progress to progress and the final report to out.
func runScan(ctx context.Context, out, progress io.Writer, provider marketplace.ListingsProvider, refs []model.CollectionRef, so *scanOptions) error {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sc := scanner.New(probe.New(provider, so.probeTimeout), cache.NewListingCache(len(refs)+1, cache.DefaultListingCacheTTL), scanner.Config{
		BatchSize:  so.batchSize,
		BatchDelay: so.batchDelay,
	}, logger)

	p := newPalette()
	var report scanReport
	obs := scanner.ObserverFuncs{
		Progress: func(ev event.Progress) {
			p.line(progress, p.muted, "%s: %d listed", ev.Status, len(ev.Results))
		},
		Warning: func(failed []string) { report.Failed = failed },
	}

	results, err := sc.Scan(ctx, refs, obs)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	report.Listed = results

	if so.jsonOut {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	p.line(out, p.heading, "%d of %d collections have active listings", len(results), len(refs))
	for _, r := range results {
		label := r.Address
		if r.Name != "" {
			label += " (" + r.Name + ")"
		}
		p.line(out, p.listed, "  %s", label)
	}
	if len(report.Failed) > 0 {
		p.line(out, p.warn, "could not check: %s", strings.Join(report.Failed, ", "))
	}
	return nil
}
