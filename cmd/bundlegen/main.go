// Command bundlegen proposes bundles from spreadsheet snapshots without a
// database. Each input workbook has a Products sheet and an optional Orders
// sheet; the ranked proposals are written to a new workbook.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bundlesync/engine/internal/application/bundling"
	domainbundling "github.com/bundlesync/engine/internal/domain/bundling"
	"github.com/bundlesync/engine/internal/infrastructure/config"
	"github.com/bundlesync/engine/internal/infrastructure/enrichment"
	"github.com/bundlesync/engine/internal/infrastructure/logger"
	"github.com/bundlesync/engine/internal/infrastructure/snapshot"
	"go.uber.org/zap"
)

func main() {
	var (
		out      string
		topN     int
		enrich   bool
		logLevel string
	)
	flag.StringVar(&out, "out", "bundles.xlsx", "Output workbook")
	flag.IntVar(&topN, "top", 50, "Number of proposals to keep, 0 for all")
	flag.BoolVar(&enrich, "enrich", false, "Ask the configured enrichment provider to pick and describe proposals")
	flag.StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: bundlegen [flags] <snapshot.xlsx>...\n\nFlags:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	log, err := logger.New(logger.Config{Level: logLevel, Format: "console", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = log.Sync()
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, flag.Args(), out, topN, enrich); err != nil {
		log.Fatal("Bundle generation failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, paths []string, out string, topN int, enrich bool) error {
	input, err := loadAll(ctx, paths)
	if err != nil {
		return err
	}
	for _, issue := range input.Skipped {
		log.Warn("row skipped",
			zap.String("file", issue.File),
			zap.String("sheet", issue.Sheet),
			zap.Int("row", issue.Row),
			zap.String("reason", issue.Reason),
		)
	}
	if input.Overridden > 0 {
		log.Warn("SKU present in several snapshots, later files win", zap.Int("skus", input.Overridden))
	}

	pricing, shape, err := cfg.Bundling.Generator()
	if err != nil {
		return err
	}

	var enricher domainbundling.Enricher
	if enrich {
		e, closeEnricher, err := enrichment.FromConfig(ctx, cfg.Enrichment, log)
		if err != nil {
			return err
		}
		defer func() { _ = closeEnricher() }()
		enricher = e
	}

	service := bundling.NewBundleService(nil, nil, nil, nil, enricher, bundling.Config{
		Pricing: pricing,
		Bundle:  shape,
		Selection: domainbundling.SelectionOptions{
			MaxCandidates: cfg.Enrichment.MaxCandidates,
			MaxSelected:   cfg.Enrichment.MaxSelected,
		},
	}, log)

	resp, err := service.GenerateBundles(ctx, bundling.GenerateRequest{
		Products: input.Products,
		Orders:   input.Orders,
		TopN:     topN,
		Enrich:   enrich,
	})
	if err != nil {
		return err
	}
	if err := snapshot.SaveProposals(out, resp.Candidates); err != nil {
		return err
	}

	log.Info("proposals written",
		zap.String("out", out),
		zap.Int("generated", resp.Generated),
		zap.Int("feasible", resp.Feasible),
		zap.Int("written", len(resp.Candidates)),
		zap.Bool("enriched", resp.Enriched),
	)
	return nil
}
