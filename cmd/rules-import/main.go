package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"

	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/geo-pricing/internal/domain/pricing"
	"github.com/xenking/geo-pricing/internal/storage/postgres"
)

const progressEvery = 1000

func main() {
	var (
		databaseURL string
		workers     int
		dryRun      bool
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&workers, "workers", 8, "concurrent table writes")
	flag.BoolVar(&dryRun, "dry-run", false, "parse and validate without writing")
	flag.Usage = func() {
		_, _ = os.Stderr.WriteString("usage: rules-import [flags] rules.csv[.gz] ...\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	files := flag.Args()
	if len(files) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" && !dryRun {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, files, databaseURL, workers, dryRun); err != nil {
		slog.Error("rules import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("rules import completed successfully")
}

func run(ctx context.Context, files []string, databaseURL string, workers int, dryRun bool) error {
	slog.Info("parsing rule files", slog.Int("files", len(files)))

	tables, err := parseFiles(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse rule files")
	}
	for key, t := range tables {
		if err := pricing.ValidateCountryPricing(key.productID, key.country, t.CountryPricing); err != nil {
			return errors.Wrapf(err, "table declared at %s", t.origin)
		}
	}
	slog.Info("rule tables parsed", slog.Int("tables", len(tables)))

	if dryRun || len(tables) == 0 {
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	svc, err := pricing.NewService(postgres.NewRuleStore(pool), postgres.NewMultiplierStore(pool), nil, nil, nil)
	if err != nil {
		return errors.Wrap(err, "create pricing service")
	}
	return writeTables(ctx, svc, tables, workers)
}

// parseFiles parses every file concurrently and merges the results in
// argument order.
func parseFiles(ctx context.Context, files []string) (map[ruleKey]*table, error) {
	results := make([]map[ruleKey]*table, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			tables, err := parseFile(ctx, path)
			if err != nil {
				return err
			}
			slog.Info("file parsed", slog.String("path", path), slog.Int("tables", len(tables)))
			results[i] = tables
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make(map[ruleKey]*table)
	for _, r := range results {
		if err := merge(merged, r); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// ruleWriter is the mutation surface used by the import. *pricing.Service
// implements it.
type ruleWriter interface {
	ReplaceCountryRules(ctx context.Context, productID, country string, rules pricing.CountryPricing) error
}

// writeTables replaces each country table in its own transaction, at most
// workers at a time.
func writeTables(ctx context.Context, w ruleWriter, tables map[ruleKey]*table, workers int) error {
	slog.Info("writing rule tables", slog.Int("count", len(tables)), slog.Int("workers", workers))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	var written atomic.Int64
	for key, t := range tables {
		g.Go(func() error {
			if err := w.ReplaceCountryRules(ctx, key.productID, key.country, t.CountryPricing); err != nil {
				return errors.Wrapf(err, "replace %s/%s", key.productID, key.country)
			}
			if n := written.Add(1); n%progressEvery == 0 {
				slog.Info("write progress", slog.Int64("written", n), slog.Int("total", len(tables)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("rule tables written", slog.Int64("count", written.Load()))
	return nil
}
